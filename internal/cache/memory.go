package cache

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryCache keeps entries in process memory.
type MemoryCache struct {
	items     *ttlcache.Cache[string, []byte]
	closeOnce sync.Once
}

// NewMemoryCache creates a cache and starts its expiry janitor.
// Close must be called to stop the janitor.
func NewMemoryCache(opts Options) *MemoryCache {
	cacheOpts := []ttlcache.Option[string, []byte]{
		ttlcache.WithTTL[string, []byte](opts.DefaultTTL),
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	}
	if opts.MaxEntries > 0 {
		cacheOpts = append(cacheOpts, ttlcache.WithCapacity[string, []byte](opts.MaxEntries))
	}

	items := ttlcache.New(cacheOpts...)
	go items.Start()
	return &MemoryCache{items: items}
}

func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	item := m.items.Get(key)
	if item == nil {
		return nil, false
	}
	return slices.Clone(item.Value()), true
}

func (m *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = ttlcache.DefaultTTL
	}
	m.items.Set(key, slices.Clone(value), ttl)
}

func (m *MemoryCache) DeletePrefix(_ context.Context, prefix string) error {
	for _, key := range m.items.Keys() {
		if strings.HasPrefix(key, prefix) {
			m.items.Delete(key)
		}
	}
	return nil
}

// Close stops the expiry janitor and drops every entry.
func (m *MemoryCache) Close() error {
	m.closeOnce.Do(func() {
		m.items.Stop()
		m.items.DeleteAll()
	})
	return nil
}
