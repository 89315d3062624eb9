package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/singleflight"

	cryptoDomain "github.com/dealdesk/fieldcrypt/internal/crypto/domain"
	"github.com/dealdesk/fieldcrypt/internal/crypto/keystore"
	cryptoService "github.com/dealdesk/fieldcrypt/internal/crypto/service"
)

const (
	currentKeyCacheKey = "current"
	searchKeyCacheKey  = "search"
)

// Options configures the key manager caches.
// A zero or negative TTL disables the corresponding cache.
type Options struct {
	KeyCacheTTL       time.Duration
	SearchKeyCacheTTL time.Duration
}

// keyManager implements KeyManager on top of a keystore.KeyStore.
type keyManager struct {
	store  keystore.KeyStore
	opts   Options
	logger *slog.Logger

	current  *ttlcache.Cache[string, *cryptoDomain.EncryptionKey]
	versions *ttlcache.Cache[uint, *cryptoDomain.EncryptionKey]
	search   *ttlcache.Cache[string, []byte]
	loads    singleflight.Group

	// generation changes whenever the current key is invalidated. A load only
	// populates the cache if no invalidation happened while it ran.
	currentMu  sync.Mutex
	generation uint64

	rotateMu sync.Mutex
	hooksMu  sync.RWMutex
	hooks    []RotationHook
}

// NewKeyManager creates a KeyManager backed by store.
func NewKeyManager(store keystore.KeyStore, opts Options, logger *slog.Logger) KeyManager {
	return &keyManager{
		store:  store,
		opts:   opts,
		logger: logger,
		current: ttlcache.New(
			ttlcache.WithTTL[string, *cryptoDomain.EncryptionKey](opts.KeyCacheTTL),
		),
		versions: ttlcache.New(
			ttlcache.WithTTL[uint, *cryptoDomain.EncryptionKey](opts.KeyCacheTTL),
		),
		search: ttlcache.New(
			ttlcache.WithTTL[string, []byte](opts.SearchKeyCacheTTL),
		),
	}
}

// GetCurrentKey returns the cached current key or loads it from the store.
// Concurrent misses share a single store call.
func (m *keyManager) GetCurrentKey(ctx context.Context) (*cryptoDomain.EncryptionKey, error) {
	if item := m.current.Get(currentKeyCacheKey); item != nil {
		return item.Value().Clone(), nil
	}

	v, err, _ := m.loads.Do(currentKeyCacheKey, func() (any, error) {
		m.currentMu.Lock()
		generation := m.generation
		m.currentMu.Unlock()

		key, err := m.store.GetCurrentKey(ctx)
		if err != nil {
			return nil, err
		}
		if m.opts.KeyCacheTTL > 0 {
			m.versions.Set(key.Version, key, ttlcache.DefaultTTL)

			m.currentMu.Lock()
			if m.generation == generation {
				m.current.Set(currentKeyCacheKey, key, ttlcache.DefaultTTL)
			}
			m.currentMu.Unlock()
		}
		return key, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*cryptoDomain.EncryptionKey).Clone(), nil
}

// GetKeyByVersion returns the cached key for version or loads it from the store.
func (m *keyManager) GetKeyByVersion(ctx context.Context, version uint) (*cryptoDomain.EncryptionKey, error) {
	if item := m.versions.Get(version); item != nil {
		return item.Value().Clone(), nil
	}

	v, err, _ := m.loads.Do("version:"+strconv.FormatUint(uint64(version), 10), func() (any, error) {
		key, err := m.store.GetKeyByVersion(ctx, version)
		if err != nil {
			return nil, err
		}
		if m.opts.KeyCacheTTL > 0 {
			m.versions.Set(version, key, ttlcache.DefaultTTL)
		}
		return key, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*cryptoDomain.EncryptionKey).Clone(), nil
}

// GetSearchKey derives the search key from the master key and caches it.
func (m *keyManager) GetSearchKey(ctx context.Context) ([]byte, error) {
	if item := m.search.Get(searchKeyCacheKey); item != nil {
		return append([]byte(nil), item.Value()...), nil
	}

	v, err, _ := m.loads.Do(searchKeyCacheKey, func() (any, error) {
		raw, err := m.store.GetMasterKey(ctx)
		if err != nil {
			return nil, err
		}
		masterKey, err := cryptoDomain.NewMasterKey(raw)
		cryptoDomain.Zero(raw)
		if err != nil {
			return nil, err
		}
		defer masterKey.Close()

		searchKey := cryptoService.DeriveSearchKey(masterKey)
		if m.opts.SearchKeyCacheTTL > 0 {
			m.search.Set(searchKeyCacheKey, searchKey, ttlcache.DefaultTTL)
		}
		return searchKey, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), v.([]byte)...), nil
}

// RotateKey generates a new primary key and invalidates everything derived
// from the previous one. Rotations from this process are serialized.
func (m *keyManager) RotateKey(ctx context.Context) (*cryptoDomain.EncryptionKey, error) {
	m.rotateMu.Lock()
	defer m.rotateMu.Unlock()

	key, err := m.store.GenerateNewKey(ctx)
	if err != nil {
		m.logger.Error("key rotation failed", slog.Any("error", err))
		return nil, fmt.Errorf("%w: %w", cryptoDomain.ErrKeyRotationFailed, err)
	}

	m.InvalidateCurrentKey()
	m.InvalidateKeyVersions()
	m.InvalidateSearchKey()

	m.hooksMu.RLock()
	hooks := append([]RotationHook(nil), m.hooks...)
	m.hooksMu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, key.Clone()); err != nil {
			m.logger.Warn("rotation hook failed",
				slog.Uint64("version", uint64(key.Version)),
				slog.Any("error", err),
			)
		}
	}

	m.logger.Info("encryption key rotated", slog.Uint64("version", uint64(key.Version)))
	return key, nil
}

// EnsureCurrentKey bootstraps the first key for stores that start empty.
func (m *keyManager) EnsureCurrentKey(ctx context.Context) (*cryptoDomain.EncryptionKey, error) {
	key, err := m.GetCurrentKey(ctx)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, cryptoDomain.ErrKeyNotFound) {
		return nil, err
	}

	m.logger.Info("no active encryption key, creating the first one")
	return m.RotateKey(ctx)
}

// ListKeys returns every key from the store.
func (m *keyManager) ListKeys(ctx context.Context) ([]*cryptoDomain.EncryptionKey, error) {
	return m.store.ListKeys(ctx)
}

// OnRotate registers a rotation hook.
func (m *keyManager) OnRotate(hook RotationHook) {
	m.hooksMu.Lock()
	defer m.hooksMu.Unlock()
	m.hooks = append(m.hooks, hook)
}

// InvalidateCurrentKey drops the cached current key. Loads already in flight
// are detached: later callers start a fresh load and the stale result is not
// cached.
func (m *keyManager) InvalidateCurrentKey() {
	m.currentMu.Lock()
	defer m.currentMu.Unlock()
	m.generation++
	m.loads.Forget(currentKeyCacheKey)
	m.current.DeleteAll()
}

// InvalidateKeyVersions drops every cached version.
func (m *keyManager) InvalidateKeyVersions() {
	m.versions.DeleteAll()
}

// InvalidateSearchKey drops the cached search key. The next call derives the
// same value again from the master key.
func (m *keyManager) InvalidateSearchKey() {
	m.search.DeleteAll()
}
