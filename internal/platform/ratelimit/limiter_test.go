package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitedyno/urlbot/internal/platform/ratelimit"
)

func TestLimiterSlidingWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter := ratelimit.NewLimiter(client)
	ctx := context.Background()
	window := 300 * time.Millisecond
	limit := 3

	for i := 0; i < limit; i++ {
		allowed, _, err := limiter.Allow(ctx, "rl:test", limit, window, ratelimit.Member())
		require.NoError(t, err)
		assert.True(t, allowed, "attempt %d", i+1)
	}

	allowed, retryAfter, err := limiter.Allow(ctx, "rl:test", limit, window, ratelimit.Member())
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Greater(t, retryAfter, time.Duration(0))
	assert.LessOrEqual(t, retryAfter, window)

	time.Sleep(retryAfter + 100*time.Millisecond)
	allowed, _, err = limiter.Allow(ctx, "rl:test", limit, window, ratelimit.Member())
	require.NoError(t, err)
	assert.True(t, allowed, "window should have slid")
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter := ratelimit.NewLimiter(client)
	ctx := context.Background()

	allowed, _, err := limiter.Allow(ctx, "rl:a", 1, time.Minute, ratelimit.Member())
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, _, err = limiter.Allow(ctx, "rl:a", 1, time.Minute, ratelimit.Member())
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, _, err = limiter.Allow(ctx, "rl:b", 1, time.Minute, ratelimit.Member())
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestLimiterRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	_, _, err := ratelimit.NewLimiter(client).Allow(context.Background(), "rl:x", 1, time.Second, ratelimit.Member())
	assert.Error(t, err)
}

func TestMemberIsUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		m := ratelimit.Member()
		_, dup := seen[m]
		require.False(t, dup, m)
		seen[m] = struct{}{}
	}
}
