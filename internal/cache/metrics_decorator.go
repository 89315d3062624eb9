package cache

import (
	"context"
	"time"

	"github.com/dealdesk/fieldcrypt/internal/metrics"
)

// cacheWithMetrics counts hits and misses of the wrapped cache.
type cacheWithMetrics struct {
	next    Cache
	name    string
	metrics metrics.BusinessMetrics
}

// NewCacheWithMetrics wraps c so every Get is recorded under name.
func NewCacheWithMetrics(c Cache, name string, m metrics.BusinessMetrics) Cache {
	return &cacheWithMetrics{next: c, name: name, metrics: m}
}

func (c *cacheWithMetrics) Get(ctx context.Context, key string) ([]byte, bool) {
	value, ok := c.next.Get(ctx, key)
	c.metrics.RecordCacheLookup(ctx, c.name, ok)
	return value, ok
}

func (c *cacheWithMetrics) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	c.next.Set(ctx, key, value, ttl)
}

func (c *cacheWithMetrics) DeletePrefix(ctx context.Context, prefix string) error {
	return c.next.DeletePrefix(ctx, prefix)
}

func (c *cacheWithMetrics) Close() error {
	return c.next.Close()
}
