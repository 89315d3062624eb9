// Package encryption seals individual field values with versioned data keys.
//
// A Backend turns plaintext strings into self-describing envelopes and back,
// and produces deterministic search hashes for exact-match lookups. Backends
// are stateless apart from the decrypted-value cache; keys come from a
// usecase.KeyManager on every call.
package encryption

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/dealdesk/fieldcrypt/internal/cache"
	cryptoDomain "github.com/dealdesk/fieldcrypt/internal/crypto/domain"
	cryptoService "github.com/dealdesk/fieldcrypt/internal/crypto/service"
	cryptoUsecase "github.com/dealdesk/fieldcrypt/internal/crypto/usecase"
)

// DecryptedCachePrefix prefixes every decrypted-value cache key.
const DecryptedCachePrefix = "decrypted:"

// Kind names a backend in configuration.
type Kind string

const (
	KindAES      Kind = "aes"
	KindChaCha20 Kind = "chacha20"
	KindFernet   Kind = "fernet"
)

// Backend encrypts, decrypts and hashes field values.
//
// Empty strings pass through every single-value operation unchanged. In the
// bulk operations a nil element stands for an absent value and is preserved.
type Backend interface {
	// Encrypt seals plaintext with the current key. Every call uses a fresh
	// nonce, so equal inputs never produce equal outputs.
	Encrypt(ctx context.Context, plaintext string) (string, error)

	// Decrypt opens an envelope with the key version recorded inside it.
	// Tampering, unknown versions and malformed envelopes all fail with
	// ErrDecryptionFailed.
	Decrypt(ctx context.Context, ciphertext string) (string, error)

	// CreateSearchHash returns base64(HMAC-SHA256(searchKey, lower(trim(value)))).
	CreateSearchHash(ctx context.Context, value string) (string, error)

	// VerifySearchHash recomputes the hash for value and compares it with hash
	// in constant time. Internal errors count as a mismatch.
	VerifySearchHash(ctx context.Context, value, hash string) bool

	// BulkEncrypt resolves the current key once and encrypts every element.
	BulkEncrypt(ctx context.Context, values []*string) ([]*string, error)

	// BulkDecrypt resolves each key version once and decrypts every element.
	// Elements that fail to decrypt come back as nil.
	BulkDecrypt(ctx context.Context, ciphertexts []*string) []*string

	// InvalidateCache drops every cached decrypted value.
	InvalidateCache(ctx context.Context) error

	// KeyVersion returns the key version recorded in an envelope.
	KeyVersion(ciphertext string) (uint, error)
}

// sealer is the algorithm-specific half of a backend.
type sealer interface {
	seal(key *cryptoDomain.EncryptionKey, plaintext []byte) (*cryptoDomain.Envelope, error)
	open(key *cryptoDomain.EncryptionKey, env *cryptoDomain.Envelope) ([]byte, error)
}

// Options configures a backend.
type Options struct {
	// DecryptedCacheTTL bounds how long a decrypted value is memoized.
	// Zero disables the decrypted-value cache.
	DecryptedCacheTTL time.Duration
}

// New builds the backend named by kind and registers a rotation hook on
// keyManager that clears the backend's decrypted-value cache.
func New(
	kind Kind,
	keyManager cryptoUsecase.KeyManager,
	decrypted cache.Cache,
	opts Options,
	logger *slog.Logger,
) (Backend, error) {
	var s sealer
	switch kind {
	case KindAES, "":
		s = newAEADSealer(cryptoDomain.AESGCM)
	case KindChaCha20:
		s = newAEADSealer(cryptoDomain.ChaCha20)
	case KindFernet:
		s = fernetSealer{}
	default:
		return nil, fmt.Errorf("%w: unknown encryption backend %q", cryptoDomain.ErrConfiguration, kind)
	}

	b := newBackend(s, keyManager, decrypted, opts, logger)
	keyManager.OnRotate(func(ctx context.Context, _ *cryptoDomain.EncryptionKey) error {
		return b.InvalidateCache(ctx)
	})
	return b, nil
}

// newAESBackend creates an AES-256-GCM backend without registering the
// rotation hook.
func newAESBackend(
	keyManager cryptoUsecase.KeyManager,
	decrypted cache.Cache,
	opts Options,
	logger *slog.Logger,
) Backend {
	return newBackend(newAEADSealer(cryptoDomain.AESGCM), keyManager, decrypted, opts, logger)
}

type backend struct {
	sealer     sealer
	keyManager cryptoUsecase.KeyManager
	cache      cache.Cache
	opts       Options
	logger     *slog.Logger
}

func newBackend(
	s sealer,
	keyManager cryptoUsecase.KeyManager,
	decrypted cache.Cache,
	opts Options,
	logger *slog.Logger,
) *backend {
	if decrypted == nil || opts.DecryptedCacheTTL <= 0 {
		decrypted = cache.NoopCache{}
	}
	return &backend{
		sealer:     s,
		keyManager: keyManager,
		cache:      decrypted,
		opts:       opts,
		logger:     logger,
	}
}

func (b *backend) Encrypt(ctx context.Context, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	key, err := b.keyManager.GetCurrentKey(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", cryptoDomain.ErrEncryptionFailed, err)
	}

	return b.encryptWithKey(key, plaintext)
}

func (b *backend) encryptWithKey(key *cryptoDomain.EncryptionKey, plaintext string) (string, error) {
	env, err := b.sealer.seal(key, []byte(plaintext))
	if err != nil {
		return "", fmt.Errorf("%w: %w", cryptoDomain.ErrEncryptionFailed, err)
	}
	encoded, err := env.Encode()
	if err != nil {
		return "", fmt.Errorf("%w: %w", cryptoDomain.ErrEncryptionFailed, err)
	}
	return encoded, nil
}

func (b *backend) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	cacheKey := decryptedCacheKey(ciphertext)
	if cached, ok := b.cache.Get(ctx, cacheKey); ok {
		return string(cached), nil
	}

	env, err := cryptoDomain.DecodeEnvelope(ciphertext)
	if err != nil {
		return "", err
	}

	key, err := b.keyManager.GetKeyByVersion(ctx, env.Version)
	if err != nil {
		return "", fmt.Errorf("%w: key version %d: %w", cryptoDomain.ErrDecryptionFailed, env.Version, err)
	}
	plaintext, err := b.openEnvelope(key, env)
	if err != nil {
		return "", err
	}

	b.cache.Set(ctx, cacheKey, plaintext, b.opts.DecryptedCacheTTL)
	return string(plaintext), nil
}

func (b *backend) openEnvelope(key *cryptoDomain.EncryptionKey, env *cryptoDomain.Envelope) ([]byte, error) {
	plaintext, err := b.sealer.open(key, env)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", cryptoDomain.ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

func (b *backend) InvalidateCache(ctx context.Context) error {
	return b.cache.DeletePrefix(ctx, DecryptedCachePrefix)
}

func (b *backend) KeyVersion(ciphertext string) (uint, error) {
	return cryptoDomain.PeekVersion(ciphertext)
}

// decryptedCacheKey keys cached plaintext by a digest of the envelope so the
// cache never holds ciphertext and plaintext side by side.
func decryptedCacheKey(ciphertext string) string {
	sum := sha256.Sum256([]byte(ciphertext))
	return DecryptedCachePrefix + hex.EncodeToString(sum[:])
}

// aeadSealer seals with an AEAD cipher and a detached tag.
type aeadSealer struct {
	alg     cryptoDomain.Algorithm
	manager *cryptoService.AEADManagerService
}

func newAEADSealer(alg cryptoDomain.Algorithm) aeadSealer {
	return aeadSealer{alg: alg, manager: cryptoService.NewAEADManager()}
}

func (s aeadSealer) seal(key *cryptoDomain.EncryptionKey, plaintext []byte) (*cryptoDomain.Envelope, error) {
	cipher, err := s.manager.CreateCipher(key.Key, s.alg)
	if err != nil {
		return nil, err
	}

	ciphertext, nonce, tag, err := cipher.Encrypt(plaintext, nil)
	if err != nil {
		return nil, err
	}
	return &cryptoDomain.Envelope{
		Version:    key.Version,
		IV:         nonce,
		Ciphertext: ciphertext,
		Tag:        tag,
	}, nil
}

func (s aeadSealer) open(key *cryptoDomain.EncryptionKey, env *cryptoDomain.Envelope) ([]byte, error) {
	if err := env.ValidateAEAD(); err != nil {
		return nil, err
	}

	cipher, err := s.manager.CreateCipher(key.Key, s.alg)
	if err != nil {
		return nil, err
	}
	return cipher.Decrypt(env.Ciphertext, env.IV, env.Tag, nil)
}
