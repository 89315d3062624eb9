package keystore

import (
	"context"
	"encoding/base64"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	cryptoDomain "github.com/dealdesk/fieldcrypt/internal/crypto/domain"
	cryptoService "github.com/dealdesk/fieldcrypt/internal/crypto/service"
)

// keyTableEntry is one version in the ENCRYPTION_KEYS table.
type keyTableEntry struct {
	Key       string `yaml:"key"`
	CreatedAt string `yaml:"created_at"`
	ExpiresAt string `yaml:"expires_at"`
	IsPrimary bool   `yaml:"is_primary"`
}

// ParseKeyTable parses the local key table. The document is YAML (JSON is
// accepted as a YAML subset) mapping version numbers to entries:
//
//	1:
//	  key: <base64 32 bytes>
//	  created_at: 2026-01-01T00:00:00Z
//	  expires_at: 2027-01-01T00:00:00Z
//	  is_primary: true
//
// An empty document yields an empty table.
func ParseKeyTable(raw string) ([]*cryptoDomain.EncryptionKey, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var table map[string]keyTableEntry
	if err := yaml.Unmarshal([]byte(raw), &table); err != nil {
		return nil, fmt.Errorf("%w: invalid key table: %v", cryptoDomain.ErrConfiguration, err)
	}

	keys := make([]*cryptoDomain.EncryptionKey, 0, len(table))
	for rawVersion, entry := range table {
		version, err := strconv.ParseUint(strings.TrimSpace(rawVersion), 10, 32)
		if err != nil || version == 0 {
			return nil, fmt.Errorf("%w: invalid key version %q", cryptoDomain.ErrConfiguration, rawVersion)
		}

		material, err := base64.StdEncoding.DecodeString(entry.Key)
		if err != nil {
			return nil, fmt.Errorf("%w: key version %d is not valid base64", cryptoDomain.ErrConfiguration, version)
		}
		if len(material) != cryptoDomain.KeySize {
			return nil, fmt.Errorf(
				"%w: %w: key version %d must be %d bytes, got %d",
				cryptoDomain.ErrConfiguration,
				cryptoDomain.ErrInvalidKeySize,
				version,
				cryptoDomain.KeySize,
				len(material),
			)
		}

		key := &cryptoDomain.EncryptionKey{
			Version:   uint(version),
			Key:       material,
			IsPrimary: entry.IsPrimary,
		}
		if entry.CreatedAt != "" {
			createdAt, err := time.Parse(time.RFC3339, entry.CreatedAt)
			if err != nil {
				return nil, fmt.Errorf("%w: key version %d created_at: %v", cryptoDomain.ErrConfiguration, version, err)
			}
			key.CreatedAt = createdAt.UTC()
		}
		if entry.ExpiresAt != "" {
			expiresAt, err := time.Parse(time.RFC3339, entry.ExpiresAt)
			if err != nil {
				return nil, fmt.Errorf("%w: key version %d expires_at: %v", cryptoDomain.ErrConfiguration, version, err)
			}
			expiresAt = expiresAt.UTC()
			key.ExpiresAt = &expiresAt
		}
		keys = append(keys, key)
	}

	cryptoDomain.SortKeys(keys)
	return keys, nil
}

// LocalKeyStore keeps keys from configuration in process memory.
//
// Rotation builds a complete new key set and swaps it in under the write lock,
// so readers observe either the old set or the new one. Rotated keys live only
// for the lifetime of the process; operators must copy them into the
// configured key table (see ListKeys) to keep them across restarts.
type LocalKeyStore struct {
	mu        sync.RWMutex
	keys      []*cryptoDomain.EncryptionKey
	masterKey *cryptoDomain.MasterKey
	now       func() time.Time
}

// NewLocalKeyStore creates a local store from a parsed key table.
//
// An empty table is bootstrapped with version 1, derived from the master key
// with HKDF so that every process sharing the master key agrees on it. Its
// creation time is the time the store was built.
func NewLocalKeyStore(
	masterKey *cryptoDomain.MasterKey,
	keys []*cryptoDomain.EncryptionKey,
) (*LocalKeyStore, error) {
	store := &LocalKeyStore{masterKey: masterKey, now: time.Now}

	if len(keys) == 0 {
		material, err := cryptoService.DeriveKey(masterKey, cryptoDomain.LocalBootstrapInfo)
		if err != nil {
			return nil, err
		}
		keys = []*cryptoDomain.EncryptionKey{{
			Version:   1,
			Key:       material,
			CreatedAt: store.now().UTC(),
			IsPrimary: true,
		}}
	}

	store.keys = make([]*cryptoDomain.EncryptionKey, 0, len(keys))
	for _, k := range keys {
		store.keys = append(store.keys, k.Clone())
	}
	cryptoDomain.SortKeys(store.keys)
	return store, nil
}

// GetCurrentKey returns the primary active key or the highest active version.
func (s *LocalKeyStore) GetCurrentKey(_ context.Context) (*cryptoDomain.EncryptionKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, err := cryptoDomain.SelectCurrentKey(s.keys, s.now())
	if err != nil {
		return nil, err
	}
	return key.Clone(), nil
}

// GetKeyByVersion returns the key with the exact version.
func (s *LocalKeyStore) GetKeyByVersion(_ context.Context, version uint) (*cryptoDomain.EncryptionKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, err := cryptoDomain.FindKeyVersion(s.keys, version)
	if err != nil {
		return nil, err
	}
	return key.Clone(), nil
}

// GetMasterKey returns a copy of the master key.
func (s *LocalKeyStore) GetMasterKey(_ context.Context) ([]byte, error) {
	return slices.Clone(s.masterKey.Key), nil
}

// GenerateNewKey registers version max+1 as the only primary key.
func (s *LocalKeyStore) GenerateNewKey(_ context.Context) (*cryptoDomain.EncryptionKey, error) {
	material, err := cryptoService.GenerateKeyMaterial()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := &cryptoDomain.EncryptionKey{
		Version:   cryptoDomain.NextVersion(s.keys),
		Key:       material,
		CreatedAt: s.now().UTC(),
		IsPrimary: true,
	}
	s.keys = cryptoDomain.PromoteKey(s.keys, next)
	return next.Clone(), nil
}

// ListKeys returns copies of every key ordered by ascending version.
func (s *LocalKeyStore) ListKeys(_ context.Context) ([]*cryptoDomain.EncryptionKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*cryptoDomain.EncryptionKey, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, k.Clone())
	}
	return out, nil
}
