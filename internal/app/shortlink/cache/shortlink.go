package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sitedyno/urlbot/internal/platform/metrics"
)

// notFoundSentinel marks a negative entry. "" is not used so that a miss and a
// cached absence stay distinguishable.
const notFoundSentinel = "__nil__"

const keyPrefix = "sl:"

// ShortlinkCache is a two level code -> URL cache: ristretto in process, redis
// shared. Both levels also hold short-lived negative entries.
type ShortlinkCache struct {
	client   redis.Cmdable
	local    *LocalCache
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewShortlinkCache creates the cache. local may be nil.
func NewShortlinkCache(client redis.Cmdable, local *LocalCache) *ShortlinkCache {
	return &ShortlinkCache{
		client:   client,
		local:    local,
		ttl:      time.Hour,
		emptyTTL: 30 * time.Second,
	}
}

// Get reports hit=false on a miss. On a negative hit it returns ("", true).
func (c *ShortlinkCache) Get(ctx context.Context, code string) (url string, hit bool, err error) {
	if c.local != nil {
		if v, ok := c.local.Get(code); ok {
			if v == notFoundSentinel {
				metrics.CacheOperations.WithLabelValues("l1", "hit_negative").Inc()
				return "", true, nil
			}
			metrics.CacheOperations.WithLabelValues("l1", "hit").Inc()
			return v, true, nil
		}
	}

	res, err := c.client.Get(ctx, keyPrefix+code).Result()
	if errors.Is(err, redis.Nil) {
		metrics.CacheOperations.WithLabelValues("l2", "miss").Inc()
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	if res == notFoundSentinel {
		metrics.CacheOperations.WithLabelValues("l2", "hit_negative").Inc()
		if c.local != nil {
			c.local.SetNotFound(code)
		}
		return "", true, nil
	}
	metrics.CacheOperations.WithLabelValues("l2", "hit").Inc()
	if c.local != nil {
		c.local.Set(code, res)
	}
	return res, true, nil
}

func (c *ShortlinkCache) Set(ctx context.Context, code, url string) error {
	if c.local != nil {
		c.local.Set(code, url)
	}
	return c.client.Set(ctx, keyPrefix+code, url, c.ttl).Err()
}

func (c *ShortlinkCache) Delete(ctx context.Context, code string) error {
	if c.local != nil {
		c.local.Del(code)
	}
	return c.client.Del(ctx, keyPrefix+code).Err()
}

// SetNotFound caches the absence of code to stop repeated lookups of unknown
// codes from reaching the database.
func (c *ShortlinkCache) SetNotFound(ctx context.Context, code string) error {
	if c.local != nil {
		c.local.SetNotFound(code)
	}
	return c.client.Set(ctx, keyPrefix+code, notFoundSentinel, c.emptyTTL).Err()
}

func (c *ShortlinkCache) Close() {
	if c.local != nil {
		c.local.Close()
	}
}
