package cache

import (
	"time"

	"github.com/dgraph-io/ristretto"
)

// LocalCache is the in-process L1 in front of redis. Its TTLs are short so
// instances converge after a code is disabled elsewhere.
type LocalCache struct {
	cache    *ristretto.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewLocalCache bounds the cache to maxItems entries and maxCost cost units
// (one per entry).
func NewLocalCache(maxItems, maxCost int64) (*LocalCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxItems * 10,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &LocalCache{
		cache:    c,
		ttl:      5 * time.Minute,
		emptyTTL: 10 * time.Second,
	}, nil
}

func (l *LocalCache) Get(code string) (string, bool) {
	if v, ok := l.cache.Get(code); ok {
		s, ok := v.(string)
		return s, ok
	}
	return "", false
}

func (l *LocalCache) Set(code, url string) {
	l.cache.SetWithTTL(code, url, 1, l.ttl)
}

func (l *LocalCache) SetNotFound(code string) {
	l.cache.SetWithTTL(code, notFoundSentinel, 1, l.emptyTTL)
}

func (l *LocalCache) Del(code string) {
	l.cache.Del(code)
}

// Wait blocks until buffered writes are applied.
func (l *LocalCache) Wait() {
	l.cache.Wait()
}

func (l *LocalCache) Close() {
	l.cache.Close()
}
