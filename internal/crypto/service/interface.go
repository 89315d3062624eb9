// Package service provides the cryptographic primitives behind field encryption:
// AEAD ciphers with detached tags, data key wrapping, KMS keepers and key derivation.
package service

import (
	"context"

	cryptoDomain "github.com/dealdesk/fieldcrypt/internal/crypto/domain"
)

// AEAD defines the interface for Authenticated Encryption with Associated Data.
//
// The authentication tag is returned separately from the ciphertext because the
// envelope stores them in distinct fields.
type AEAD interface {
	// Encrypt seals plaintext under a fresh random nonce.
	Encrypt(plaintext, aad []byte) (ciphertext, nonce, tag []byte, err error)

	// Decrypt verifies the tag and opens the ciphertext.
	Decrypt(ciphertext, nonce, tag, aad []byte) ([]byte, error)
}

// AEADManager defines the interface for creating AEAD cipher instances.
type AEADManager interface {
	// CreateCipher creates an AEAD cipher instance for the specified algorithm.
	CreateCipher(key []byte, alg cryptoDomain.Algorithm) (AEAD, error)
}

// KeyWrapper protects data key material at rest.
//
// Implementations wrap with the master key (database key store) or with a
// remote KMS key (KMS key store). Wrapped blobs are opaque to callers.
type KeyWrapper interface {
	// Wrap encrypts raw key material.
	Wrap(ctx context.Context, key []byte) ([]byte, error)

	// Unwrap decrypts a blob produced by Wrap.
	Unwrap(ctx context.Context, wrapped []byte) ([]byte, error)
}

// KMSKeeper is the subset of *secrets.Keeper used by this module.
type KMSKeeper interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
	Close() error
}
