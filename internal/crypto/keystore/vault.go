package keystore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	vault "github.com/hashicorp/vault/api"

	cryptoDomain "github.com/dealdesk/fieldcrypt/internal/crypto/domain"
)

// vaultKeyringField is the secret field holding the JSON key ring.
const vaultKeyringField = "keyring"

// VaultKeyStore keeps the key ring in a Vault KV v2 secret.
//
// Vault encrypts secrets at rest, so key material is stored unwrapped.
// Rotation writes with check-and-set against the version that was read; a
// concurrent rotation from another process makes the write fail with
// ErrRotationConflict instead of losing a key.
type VaultKeyStore struct {
	kv        *vault.KVv2
	path      string
	masterKey *cryptoDomain.MasterKey
	now       func() time.Time
}

// NewVaultKeyStore creates a store for the secret at path under the KV v2 mount.
func NewVaultKeyStore(
	client *vault.Client,
	mount, path string,
	masterKey *cryptoDomain.MasterKey,
) *VaultKeyStore {
	return &VaultKeyStore{
		kv:        client.KVv2(mount),
		path:      path,
		masterKey: masterKey,
		now:       time.Now,
	}
}

// readRing loads the ring and the secret version it was read at. A missing
// secret is an empty ring at version 0.
func (s *VaultKeyStore) readRing(ctx context.Context) (*keyring, int, error) {
	secret, err := s.kv.Get(ctx, s.path)
	if err != nil {
		if errors.Is(err, vault.ErrSecretNotFound) {
			return &keyring{}, 0, nil
		}
		return nil, 0, fmt.Errorf("failed to read key ring from vault: %w", err)
	}

	raw, _ := secret.Data[vaultKeyringField].(string)
	ring, err := decodeKeyring([]byte(raw))
	if err != nil {
		return nil, 0, err
	}

	version := 0
	if secret.VersionMetadata != nil {
		version = secret.VersionMetadata.Version
	}
	return ring, version, nil
}

// GetCurrentKey returns the primary active key or the highest active version.
func (s *VaultKeyStore) GetCurrentKey(ctx context.Context) (*cryptoDomain.EncryptionKey, error) {
	ring, _, err := s.readRing(ctx)
	if err != nil {
		return nil, err
	}

	current, err := selectCurrentWrapped(ring.wrappedKeys(), s.now())
	if err != nil {
		return nil, err
	}
	return unwrapKey(ctx, nil, current)
}

// GetKeyByVersion returns the key with the exact version.
func (s *VaultKeyStore) GetKeyByVersion(ctx context.Context, version uint) (*cryptoDomain.EncryptionKey, error) {
	ring, _, err := s.readRing(ctx)
	if err != nil {
		return nil, err
	}

	wrapped, err := findWrapped(ring.wrappedKeys(), version)
	if err != nil {
		return nil, err
	}
	return unwrapKey(ctx, nil, wrapped)
}

// GetMasterKey returns a copy of the master key.
func (s *VaultKeyStore) GetMasterKey(_ context.Context) ([]byte, error) {
	return slices.Clone(s.masterKey.Key), nil
}

// GenerateNewKey appends version max+1 as the only primary key.
func (s *VaultKeyStore) GenerateNewKey(ctx context.Context) (*cryptoDomain.EncryptionKey, error) {
	ring, casVersion, err := s.readRing(ctx)
	if err != nil {
		return nil, err
	}

	wrapped, key, err := newWrappedKey(ctx, nil, nextWrappedVersion(ring.wrappedKeys()), s.now())
	if err != nil {
		return nil, err
	}

	data, err := ring.promote(wrapped).encode()
	if err != nil {
		cryptoDomain.Zero(key.Key)
		return nil, err
	}

	_, err = s.kv.Put(
		ctx,
		s.path,
		map[string]any{vaultKeyringField: string(data)},
		vault.WithCheckAndSet(casVersion),
	)
	if err != nil {
		cryptoDomain.Zero(key.Key)
		if isCheckAndSetFailure(err) {
			return nil, errors.Join(cryptoDomain.ErrRotationConflict, err)
		}
		return nil, fmt.Errorf("failed to write key ring to vault: %w", err)
	}
	return key, nil
}

// ListKeys returns every key in the ring.
func (s *VaultKeyStore) ListKeys(ctx context.Context) ([]*cryptoDomain.EncryptionKey, error) {
	ring, _, err := s.readRing(ctx)
	if err != nil {
		return nil, err
	}
	return unwrapAll(ctx, nil, ring.wrappedKeys())
}

func isCheckAndSetFailure(err error) bool {
	var respErr *vault.ResponseError
	if !errors.As(err, &respErr) || respErr.StatusCode != http.StatusBadRequest {
		return false
	}
	for _, msg := range respErr.Errors {
		if strings.Contains(msg, "check-and-set") {
			return true
		}
	}
	return false
}
