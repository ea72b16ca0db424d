package filters

import (
	"context"
	"log/slog"
	"time"

	"github.com/sitedyno/urlbot/internal/app/urlinfo"
	"github.com/sitedyno/urlbot/internal/platform/ratelimit"
)

// Allower is satisfied by *ratelimit.Limiter and *ratelimit.LocalLimiter.
type Allower = ratelimit.Allower

// RateLimitFilter caps how many URLs one nick may trigger per channel within
// a sliding window. Limiter failures let the URL through.
type RateLimitFilter struct {
	limiter Allower
	limit   int
	window  time.Duration
	logger  *slog.Logger
}

var _ urlinfo.Filter = (*RateLimitFilter)(nil)

// NewRateLimitFilter returns a filter allowing limit URLs per window. A
// non-positive limit disables it.
func NewRateLimitFilter(limiter Allower, limit int, window time.Duration, logger *slog.Logger) *RateLimitFilter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimitFilter{limiter: limiter, limit: limit, window: window, logger: logger}
}

func (f *RateLimitFilter) Filter(ctx context.Context, rawURL string, origin urlinfo.Message) urlinfo.Decision {
	if f.limiter == nil || f.limit <= 0 {
		return urlinfo.Abstain
	}
	key := "rl:url:" + origin.Target() + ":" + origin.Nick

	rlCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	allowed, retryAfter, err := f.limiter.Allow(rlCtx, key, f.limit, f.window, ratelimit.Member())
	if err != nil {
		f.logger.Warn("url rate limit check failed", "key", key, "err", err)
		return urlinfo.Abstain
	}
	if !allowed {
		f.logger.Debug("url rate limited", "key", key, "url", rawURL, "retry_after", retryAfter)
		return urlinfo.Suppress
	}
	return urlinfo.Abstain
}
