// Package keystore persists and derives encryption key material.
//
// Four interchangeable variants share one contract:
//   - local: keys from configuration, held in process memory
//   - database: keys wrapped with the master key in the encryption_keys table
//   - kms: keys wrapped by a cloud KMS key, key ring kept in a blob bucket
//   - vault: key ring kept in a HashiCorp Vault KV v2 secret
//
// Every variant selects the current key with domain.SelectCurrentKey and
// rotates atomically: the new primary is either fully registered with all
// previous primaries cleared, or nothing changes.
package keystore

import (
	"context"

	cryptoDomain "github.com/dealdesk/fieldcrypt/internal/crypto/domain"
)

// Kind names a key store variant in configuration.
type Kind string

const (
	KindLocal    Kind = "local"
	KindDatabase Kind = "database"
	KindKMS      Kind = "kms"
	KindVault    Kind = "vault"
)

// KeyStore is the authoritative source of encryption keys.
type KeyStore interface {
	// GetCurrentKey returns the key used for new encryptions.
	//
	// Selection prefers a primary, active key and falls back to the highest
	// active version. Returns ErrKeyNotFound when no key is active.
	GetCurrentKey(ctx context.Context) (*cryptoDomain.EncryptionKey, error)

	// GetKeyByVersion returns the key with the exact version.
	// Returns ErrInvalidKeyVersion (which matches ErrKeyNotFound) if absent.
	GetKeyByVersion(ctx context.Context, version uint) (*cryptoDomain.EncryptionKey, error)

	// GetMasterKey returns a copy of the 32-byte master key. It is only used to
	// derive the search key and never encrypts field values.
	GetMasterKey(ctx context.Context) ([]byte, error)

	// GenerateNewKey allocates version max+1 with fresh random material, makes
	// it the only primary key and persists the result atomically.
	GenerateNewKey(ctx context.Context) (*cryptoDomain.EncryptionKey, error)

	// ListKeys returns every key ordered by ascending version.
	ListKeys(ctx context.Context) ([]*cryptoDomain.EncryptionKey, error)
}
