// Package locator extracts identity and resource context from GitHub URLs.
package locator

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var resourcePathRE = regexp.MustCompile(`^(/[^/]+/[^/]+/(?:pull|issues)/\d+)`)

// ResourcePath returns the issue or pull request path that urlPath points at,
// e.g. "/owner/repo/pull/12/files" -> "/owner/repo/pull/12".
func ResourcePath(urlPath string) (string, bool) {
	m := resourcePathRE.FindStringSubmatch(urlPath)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// UserFromFragment returns the user named by a "#user" fragment, if any.
func UserFromFragment(fragment string) string {
	return strings.TrimSpace(strings.TrimPrefix(fragment, "#"))
}

// ParseURL splits a page URL into its resource path and fragment user.
// Either may be empty.
func ParseURL(raw string) (path, user string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", fmt.Errorf("locator: parse url: %w", err)
	}
	path, _ = ResourcePath(u.Path)
	return path, UserFromFragment(u.Fragment), nil
}
