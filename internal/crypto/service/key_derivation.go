package service

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"

	cryptoDomain "github.com/dealdesk/fieldcrypt/internal/crypto/domain"
)

// DeriveSearchKey derives the non-rotating search key from the master key with
// PBKDF2-HMAC-SHA256, a fixed salt and 100000 iterations.
//
// The result must stay stable for the lifetime of the deployment: every stored
// search hash depends on it.
func DeriveSearchKey(masterKey *cryptoDomain.MasterKey) []byte {
	return pbkdf2.Key(
		masterKey.Key,
		[]byte(cryptoDomain.SearchKeySalt),
		cryptoDomain.SearchKeyIterations,
		cryptoDomain.KeySize,
		sha256.New,
	)
}

// DeriveKey expands the master key into a purpose-bound 32-byte key with HKDF-SHA256.
func DeriveKey(masterKey *cryptoDomain.MasterKey, info string) ([]byte, error) {
	r := hkdf.New(sha256.New, masterKey.Key, nil, []byte(info))
	key := make([]byte, cryptoDomain.KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return key, nil
}

// GenerateKeyMaterial returns 32 bytes from crypto/rand.
func GenerateKeyMaterial() ([]byte, error) {
	key := make([]byte, cryptoDomain.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key material: %w", err)
	}
	return key, nil
}
