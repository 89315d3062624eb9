package service

import (
	"context"
	"fmt"

	cryptoDomain "github.com/dealdesk/fieldcrypt/internal/crypto/domain"
)

// wrapAAD binds wrapped blobs to the data-key purpose.
var wrapAAD = []byte("fieldcrypt:data-key")

// MasterKeyWrapper wraps data keys with AES-256-GCM under the master key.
//
// The wrapped blob layout is nonce || ciphertext || tag.
type MasterKeyWrapper struct {
	aead AEAD
}

// NewMasterKeyWrapper creates a wrapper bound to the given master key.
func NewMasterKeyWrapper(masterKey *cryptoDomain.MasterKey) (*MasterKeyWrapper, error) {
	aead, err := NewAESGCM(masterKey.Key)
	if err != nil {
		return nil, err
	}
	return &MasterKeyWrapper{aead: aead}, nil
}

// Wrap encrypts key material with the master key.
func (w *MasterKeyWrapper) Wrap(_ context.Context, key []byte) ([]byte, error) {
	ciphertext, nonce, tag, err := w.aead.Encrypt(key, wrapAAD)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap key: %w", err)
	}

	blob := make([]byte, 0, len(nonce)+len(ciphertext)+len(tag))
	blob = append(blob, nonce...)
	blob = append(blob, ciphertext...)
	blob = append(blob, tag...)
	return blob, nil
}

// Unwrap decrypts a blob produced by Wrap.
func (w *MasterKeyWrapper) Unwrap(_ context.Context, wrapped []byte) ([]byte, error) {
	if len(wrapped) < cryptoDomain.NonceSize+cryptoDomain.TagSize {
		return nil, fmt.Errorf("failed to unwrap key: %w", cryptoDomain.ErrDecryptionFailed)
	}

	nonce := wrapped[:cryptoDomain.NonceSize]
	ciphertext := wrapped[cryptoDomain.NonceSize : len(wrapped)-cryptoDomain.TagSize]
	tag := wrapped[len(wrapped)-cryptoDomain.TagSize:]

	key, err := w.aead.Decrypt(ciphertext, nonce, tag, wrapAAD)
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap key: %w", err)
	}
	return key, nil
}

// KeeperWrapper wraps data keys with a remote KMS key through a gocloud keeper.
type KeeperWrapper struct {
	keeper KMSKeeper
}

// NewKeeperWrapper creates a wrapper backed by keeper. The caller owns the keeper.
func NewKeeperWrapper(keeper KMSKeeper) *KeeperWrapper {
	return &KeeperWrapper{keeper: keeper}
}

// Wrap encrypts key material with the KMS key.
func (w *KeeperWrapper) Wrap(ctx context.Context, key []byte) ([]byte, error) {
	wrapped, err := w.keeper.Encrypt(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap key with KMS: %w", err)
	}
	return wrapped, nil
}

// Unwrap decrypts a KMS-wrapped blob.
func (w *KeeperWrapper) Unwrap(ctx context.Context, wrapped []byte) ([]byte, error) {
	key, err := w.keeper.Decrypt(ctx, wrapped)
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap key with KMS: %w", err)
	}
	return key, nil
}
