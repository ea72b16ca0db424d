// Package filters holds the built-in urlinfo.Filter implementations.
package filters

import (
	"context"
	"strings"

	"github.com/sitedyno/urlbot/internal/app/urlinfo"
)

// HostFilter suppresses URLs by host. An entry matches the host itself and
// every subdomain of it. Deny wins over allow; a non-empty allow list
// suppresses every host it does not match.
type HostFilter struct {
	deny  []string
	allow []string
}

var _ urlinfo.Filter = (*HostFilter)(nil)

func NewHostFilter(deny, allow []string) *HostFilter {
	return &HostFilter{deny: clean(deny), allow: clean(allow)}
}

func (f *HostFilter) Filter(_ context.Context, rawURL string, _ urlinfo.Message) urlinfo.Decision {
	target, ok := urlinfo.Normalize(rawURL)
	if !ok {
		return urlinfo.Abstain
	}
	host := urlinfo.HostOf(target)
	if host == "" {
		return urlinfo.Abstain
	}
	if matchAny(host, f.deny) {
		return urlinfo.Suppress
	}
	if len(f.allow) > 0 && !matchAny(host, f.allow) {
		return urlinfo.Suppress
	}
	return urlinfo.Abstain
}

func matchAny(host string, patterns []string) bool {
	for _, p := range patterns {
		if host == p || strings.HasSuffix(host, "."+p) {
			return true
		}
	}
	return false
}

func clean(hosts []string) []string {
	out := make([]string, 0, len(hosts))
	for _, h := range hosts {
		h = strings.Trim(strings.ToLower(strings.TrimSpace(h)), ".")
		if h != "" {
			out = append(out, h)
		}
	}
	return out
}
