package domain

import "time"

// WrappedKey is the at-rest form of an EncryptionKey. The key material is
// encrypted by a KeyWrapper and only the key store ever unwraps it.
type WrappedKey struct {
	Version    uint
	WrappedKey []byte
	CreatedAt  time.Time
	ExpiresAt  *time.Time
	IsPrimary  bool
}

// Unwrapped builds the EncryptionKey carrying the given plaintext material.
func (w *WrappedKey) Unwrapped(key []byte) *EncryptionKey {
	return &EncryptionKey{
		Version:   w.Version,
		Key:       key,
		CreatedAt: w.CreatedAt,
		ExpiresAt: w.ExpiresAt,
		IsPrimary: w.IsPrimary,
	}
}
