package presence

import (
	"sort"
	"strings"
	"time"

	"gh-presence/internal/domain"
)

// Peers is the aggregated view of other participants on a resource.
type Peers struct {
	Reading []domain.PresenceRecord `json:"reading"`
	Writing []domain.PresenceRecord `json:"writing"`
}

func (p Peers) Empty() bool {
	return len(p.Reading) == 0 && len(p.Writing) == 0
}

// Aggregate filters recs down to live records on path that do not belong to
// self, keeping one record per user. When a user has several sessions the
// most recently updated one wins; equal timestamps fall back to the greater
// session ID so the result does not depend on store order. The result is
// sorted by user.
func Aggregate(recs []domain.PresenceRecord, self, path string, cutoff time.Time) []domain.PresenceRecord {
	byUser := make(map[string]domain.PresenceRecord, len(recs))
	for _, r := range recs {
		if r.User == "" || r.User == self || r.Path != path || !r.UpdatedAt.After(cutoff) {
			continue
		}
		cur, ok := byUser[r.User]
		if !ok || newer(r, cur) {
			byUser[r.User] = r
		}
	}

	out := make([]domain.PresenceRecord, 0, len(byUser))
	for _, r := range byUser {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].User < out[j].User })
	return out
}

func newer(a, b domain.PresenceRecord) bool {
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	return strings.Compare(a.SessionID, b.SessionID) > 0
}

// Partition splits peers into readers and writers.
func Partition(peers []domain.PresenceRecord) Peers {
	var p Peers
	for _, r := range peers {
		if r.IsTyping {
			p.Writing = append(p.Writing, r)
		} else {
			p.Reading = append(p.Reading, r)
		}
	}
	return p
}
