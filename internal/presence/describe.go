package presence

import (
	"strings"

	"gh-presence/internal/domain"
)

// Describe renders both groups as sentences, e.g.
// "alice and bob are looking at this" and "carol is typing".
// Empty groups yield empty strings.
func Describe(p Peers) (reading, writing string) {
	return sentence(users(p.Reading), "looking at this"), sentence(users(p.Writing), "typing")
}

func users(recs []domain.PresenceRecord) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.User)
	}
	return out
}

func sentence(names []string, what string) string {
	if len(names) == 0 {
		return ""
	}
	var b strings.Builder
	for i, n := range names {
		if i > 0 {
			if i < len(names)-1 {
				b.WriteString(", ")
			} else {
				b.WriteString(" and ")
			}
		}
		b.WriteString(n)
	}
	if len(names) == 1 {
		b.WriteString(" is ")
	} else {
		b.WriteString(" are ")
	}
	b.WriteString(what)
	return b.String()
}
