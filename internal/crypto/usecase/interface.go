// Package usecase defines the key management layer that sits between encryption
// backends and a key store.
//
// The KeyManager caches keys for a short time, derives the non-rotating search key
// and orchestrates rotation. Backends never talk to a key store directly.
package usecase

import (
	"context"

	cryptoDomain "github.com/dealdesk/fieldcrypt/internal/crypto/domain"
)

// RotationHook runs after a successful rotation with the new primary key.
//
// Hooks invalidate derived state (decrypted-value caches) and schedule
// re-encryption. A failing hook is logged and never undoes the rotation.
type RotationHook func(ctx context.Context, key *cryptoDomain.EncryptionKey) error

// KeyManager is the caching and orchestration layer over a KeyStore.
//
// Example usage:
//
//	store, _ := keystore.New(keystore.KindDatabase, deps)
//	keyManager := usecase.NewKeyManager(store, usecase.Options{
//	    KeyCacheTTL:       5 * time.Minute,
//	    SearchKeyCacheTTL: 24 * time.Hour,
//	}, logger)
//
//	keyManager.OnRotate(func(ctx context.Context, _ *cryptoDomain.EncryptionKey) error {
//	    return backend.InvalidateCache(ctx)
//	})
//
//	key, err := keyManager.RotateKey(ctx)
type KeyManager interface {
	// GetCurrentKey returns the key for new encryptions, cached for the key TTL.
	GetCurrentKey(ctx context.Context) (*cryptoDomain.EncryptionKey, error)

	// GetKeyByVersion returns the key for an exact version, cached per version.
	GetKeyByVersion(ctx context.Context, version uint) (*cryptoDomain.EncryptionKey, error)

	// GetSearchKey returns the 32-byte HMAC key for search hashes.
	//
	// It is derived from the master key with PBKDF2-HMAC-SHA256 and does not
	// change when data keys rotate, so search hashes stay comparable forever.
	GetSearchKey(ctx context.Context) ([]byte, error)

	// RotateKey creates a new primary key through the store, invalidates the
	// key caches and runs the rotation hooks. Store failures are returned
	// wrapped in ErrKeyRotationFailed and leave the current version unchanged.
	RotateKey(ctx context.Context) (*cryptoDomain.EncryptionKey, error)

	// EnsureCurrentKey returns the current key, rotating once to create the
	// first key when the store is empty.
	EnsureCurrentKey(ctx context.Context) (*cryptoDomain.EncryptionKey, error)

	// ListKeys returns every key in the store, bypassing the caches.
	ListKeys(ctx context.Context) ([]*cryptoDomain.EncryptionKey, error)

	// OnRotate registers a hook that runs after every successful rotation.
	OnRotate(hook RotationHook)

	InvalidateCurrentKey()
	InvalidateKeyVersions()
	InvalidateSearchKey()
}
