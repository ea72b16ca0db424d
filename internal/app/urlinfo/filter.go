package urlinfo

import "context"

// Decision is a filter verdict for one URL.
type Decision int

const (
	// Abstain leaves the URL to the next filter, and passes it if none decides.
	Abstain Decision = iota
	Pass
	Suppress
)

func (d Decision) String() string {
	switch d {
	case Pass:
		return "pass"
	case Suppress:
		return "suppress"
	default:
		return "abstain"
	}
}

// Filter decides whether a URL from origin is dispatched at all.
type Filter interface {
	Filter(ctx context.Context, rawURL string, origin Message) Decision
}

// FilterFunc adapts a function to Filter.
type FilterFunc func(ctx context.Context, rawURL string, origin Message) Decision

func (f FilterFunc) Filter(ctx context.Context, rawURL string, origin Message) Decision {
	return f(ctx, rawURL, origin)
}

// Chain runs filters in order; the first Pass or Suppress wins.
type Chain []Filter

func (c Chain) Filter(ctx context.Context, rawURL string, origin Message) Decision {
	for _, f := range c {
		if d := f.Filter(ctx, rawURL, origin); d != Abstain {
			return d
		}
	}
	return Abstain
}
