package urlinfo

import (
	"net/url"
	"strings"
)

// HostOf returns the routing key for rawURL: the lowercased hostname without
// port or trailing dot. Unparseable input and URLs without a host yield "".
func HostOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	host := u.Hostname()
	if host == "" {
		return ""
	}
	return strings.TrimSuffix(strings.ToLower(host), ".")
}

// Normalize reports whether rawURL is worth dispatching and returns the form
// to dispatch. A bare path such as "example.org" or "example.com/page" is
// rewritten to "http://<path>/". The rewrite is a heuristic: inputs like
// "localhost:8080" parse as scheme+opaque and are rejected, a path gets a
// trailing slash appended even when it already names a page, and scheme-less
// input with a query or fragment ("youtube.com/watch?v=x") is passed on
// unchanged, so it has no host, matches no override and fails to fetch.
// Scheme-less addresses with a user part ("alice@example.com") are rejected.
func Normalize(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	if u.Host == "" && u.Path == "" {
		return "", false
	}
	if u.Scheme == "" && (u.User != nil || isAddress(rawURL)) {
		return "", false
	}
	if u.Scheme == "" && u.Host == "" && u.User == nil && u.Opaque == "" &&
		u.RawQuery == "" && u.Fragment == "" && !u.ForceQuery {
		return "http://" + u.Path + "/", true
	}
	return rawURL, true
}

// isAddress reports whether a scheme-less match is a mail address: its host
// part, up to the first '/', '?' or '#', carries a user.
func isAddress(s string) bool {
	if strings.Contains(s, "://") {
		return false
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	return strings.Contains(s, "@")
}
