package domain

// Fingerprint captures the mutable attributes of a list item. A read mark is
// only valid while the stored fingerprint equals the item's current one.
type Fingerprint struct {
	UpdatedAt string
	Comments  string
}

// String encodes the fingerprint for storage. A fingerprint without a comment
// count encodes to the bare timestamp, which is what timestamp-only marks hold.
// The encoding is only unambiguous while UpdatedAt contains no "|"; page
// timestamps are ISO 8601 and never do.
func (f Fingerprint) String() string {
	if f.Comments == "" {
		return f.UpdatedAt
	}
	return f.UpdatedAt + "|" + f.Comments
}
