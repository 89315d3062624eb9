package keystore

import (
	"context"
	"slices"
	"time"

	cryptoDomain "github.com/dealdesk/fieldcrypt/internal/crypto/domain"
	cryptoService "github.com/dealdesk/fieldcrypt/internal/crypto/service"
)

// selectCurrentWrapped applies domain.SelectCurrentKey to wrapped keys
// without unwrapping the ones that are not selected.
func selectCurrentWrapped(wrapped []*cryptoDomain.WrappedKey, now time.Time) (*cryptoDomain.WrappedKey, error) {
	meta := make([]*cryptoDomain.EncryptionKey, len(wrapped))
	for i, w := range wrapped {
		meta[i] = w.Unwrapped(nil)
	}

	selected, err := cryptoDomain.SelectCurrentKey(meta, now)
	if err != nil {
		return nil, err
	}
	for i := range meta {
		if meta[i] == selected {
			return wrapped[i], nil
		}
	}
	return nil, cryptoDomain.ErrKeyNotFound
}

func findWrapped(wrapped []*cryptoDomain.WrappedKey, version uint) (*cryptoDomain.WrappedKey, error) {
	for _, w := range wrapped {
		if w.Version == version {
			return w, nil
		}
	}
	return nil, cryptoDomain.ErrInvalidKeyVersion
}

func nextWrappedVersion(wrapped []*cryptoDomain.WrappedKey) uint {
	var maxVersion uint
	for _, w := range wrapped {
		maxVersion = max(maxVersion, w.Version)
	}
	return maxVersion + 1
}

// unwrapKey recovers the plaintext key. A nil wrapper means the store keeps
// raw material and only a copy is made.
func unwrapKey(
	ctx context.Context,
	wrapper cryptoService.KeyWrapper,
	w *cryptoDomain.WrappedKey,
) (*cryptoDomain.EncryptionKey, error) {
	if wrapper == nil {
		return w.Unwrapped(slices.Clone(w.WrappedKey)).Clone(), nil
	}

	material, err := wrapper.Unwrap(ctx, w.WrappedKey)
	if err != nil {
		return nil, err
	}
	if len(material) != cryptoDomain.KeySize {
		cryptoDomain.Zero(material)
		return nil, cryptoDomain.ErrInvalidKeySize
	}
	return w.Unwrapped(material).Clone(), nil
}

func unwrapAll(
	ctx context.Context,
	wrapper cryptoService.KeyWrapper,
	wrapped []*cryptoDomain.WrappedKey,
) ([]*cryptoDomain.EncryptionKey, error) {
	keys := make([]*cryptoDomain.EncryptionKey, 0, len(wrapped))
	for _, w := range wrapped {
		key, err := unwrapKey(ctx, wrapper, w)
		if err != nil {
			cryptoDomain.ZeroKeys(keys)
			return nil, err
		}
		keys = append(keys, key)
	}
	cryptoDomain.SortKeys(keys)
	return keys, nil
}

// newWrappedKey generates fresh material for version and wraps it.
// The returned EncryptionKey owns the plaintext copy.
func newWrappedKey(
	ctx context.Context,
	wrapper cryptoService.KeyWrapper,
	version uint,
	now time.Time,
) (*cryptoDomain.WrappedKey, *cryptoDomain.EncryptionKey, error) {
	material, err := cryptoService.GenerateKeyMaterial()
	if err != nil {
		return nil, nil, err
	}

	blob := slices.Clone(material)
	if wrapper != nil {
		blob, err = wrapper.Wrap(ctx, material)
		if err != nil {
			cryptoDomain.Zero(material)
			return nil, nil, err
		}
	}

	wrapped := &cryptoDomain.WrappedKey{
		Version:    version,
		WrappedKey: blob,
		CreatedAt:  now.UTC(),
		IsPrimary:  true,
	}
	return wrapped, wrapped.Unwrapped(material), nil
}
