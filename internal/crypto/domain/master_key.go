package domain

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// MasterKey is the root secret of a deployment.
//
// It is never used to encrypt field values directly. It derives the
// non-rotating search key, wraps data keys in the database key store, and
// bootstraps the local key store when no key table is configured.
//
// Security considerations:
//   - Master keys must be 32 bytes (256 bits)
//   - In production the configured value should be KMS ciphertext, not raw key bytes
//   - Call Close when the key is no longer needed
type MasterKey struct {
	Key []byte
}

// Close wipes the key material.
func (m *MasterKey) Close() {
	Zero(m.Key)
	m.Key = nil
}

// NewMasterKey validates raw key bytes and wraps them in a MasterKey.
// The bytes are copied, so the caller may zero its own slice afterwards.
func NewMasterKey(key []byte) (*MasterKey, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf(
			"%w: %w: master key must be %d bytes, got %d",
			ErrConfiguration,
			ErrInvalidKeySize,
			KeySize,
			len(key),
		)
	}
	buf := make([]byte, KeySize)
	copy(buf, key)
	return &MasterKey{Key: buf}, nil
}

// DecodeMasterKeyBytes decodes the standard base64 MASTER_KEY value.
//
// Returns:
//   - ErrMasterKeyNotSet if raw is empty
//   - ErrInvalidMasterKeyBase64 if decoding fails
func DecodeMasterKeyBytes(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrMasterKeyNotSet
	}
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMasterKeyBase64, err)
	}
	return decoded, nil
}

// ParseMasterKey decodes a plaintext base64 master key and validates its size.
// Intermediate decoded bytes are zeroed before returning.
func ParseMasterKey(raw string) (*MasterKey, error) {
	decoded, err := DecodeMasterKeyBytes(raw)
	if err != nil {
		return nil, err
	}
	defer Zero(decoded)

	return NewMasterKey(decoded)
}
