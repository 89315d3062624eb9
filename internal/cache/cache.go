// Package cache provides the decrypted-value cache used by encryption backends.
//
// Entries map a ciphertext digest to its plaintext for a short TTL. The cache is
// an optimization only: a miss or a backend error always falls back to a real
// decryption. Key rotation clears entries by prefix.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dealdesk/fieldcrypt/internal/crypto/domain"
)

// Cache is a concurrency-safe byte cache with per-entry TTL.
type Cache interface {
	// Get returns the value for key and whether it was present and unexpired.
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set stores value under key for ttl. A zero ttl uses the cache default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)

	// DeletePrefix removes every entry whose key starts with prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	// Close releases background resources.
	Close() error
}

// Driver names a Cache implementation in configuration.
type Driver string

const (
	DriverMemory Driver = "memory"
	DriverBadger Driver = "badger"
	DriverNone   Driver = "none"
)

// Options configures a Cache.
type Options struct {
	DefaultTTL time.Duration
	MaxEntries uint64
}

// New builds the cache named by driver.
func New(driver Driver, opts Options, logger *slog.Logger) (Cache, error) {
	switch driver {
	case DriverMemory, "":
		return NewMemoryCache(opts), nil
	case DriverBadger:
		c, err := NewBadgerCache(opts, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	case DriverNone:
		return NoopCache{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown cache driver %q", domain.ErrConfiguration, driver)
	}
}
