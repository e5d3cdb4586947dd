package metrics

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/alphadesk/alphadesk/internal/smartmoney"
)

// InstrumentedCache wraps a smart-money cache and records hit-rate metrics
type InstrumentedCache struct {
	inner  smartmoney.Cache
	hits   atomic.Int64
	misses atomic.Int64
}

// NewInstrumentedCache wraps an existing cache
func NewInstrumentedCache(inner smartmoney.Cache) *InstrumentedCache {
	return &InstrumentedCache{inner: inner}
}

// Get reads through to the wrapped cache and updates the hit rate
func (c *InstrumentedCache) Get(ctx context.Context, key string) ([]byte, bool) {
	RecordCacheOperation("get")
	value, ok := c.inner.Get(ctx, key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	c.updateHitRate()
	return value, ok
}

// Set writes through to the wrapped cache
func (c *InstrumentedCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	RecordCacheOperation("set")
	c.inner.Set(ctx, key, value, ttl)
}

func (c *InstrumentedCache) updateHitRate() {
	hits := c.hits.Load()
	total := hits + c.misses.Load()
	if total > 0 {
		CacheHitRate.Set(float64(hits) / float64(total))
	}
}
