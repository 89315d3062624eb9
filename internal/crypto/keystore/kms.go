package keystore

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	cryptoDomain "github.com/dealdesk/fieldcrypt/internal/crypto/domain"
	cryptoService "github.com/dealdesk/fieldcrypt/internal/crypto/service"
)

// KMSKeyStore keeps KMS-wrapped keys in a blob bucket, one object per version
// under a common prefix.
//
// A version object is only ever created, never replaced: rotation writes the
// next version with a create-only precondition, so two rotations racing for
// the same version cannot both succeed. The highest version is the primary.
type KMSKeyStore struct {
	bucket    *blob.Bucket
	prefix    string
	wrapper   cryptoService.KeyWrapper
	masterKey *cryptoDomain.MasterKey
	now       func() time.Time
}

// NewKMSKeyStore creates a store whose key versions live under prefix in
// bucket. The caller owns the bucket and the wrapper's keeper.
func NewKMSKeyStore(
	bucket *blob.Bucket,
	prefix string,
	wrapper cryptoService.KeyWrapper,
	masterKey *cryptoDomain.MasterKey,
) *KMSKeyStore {
	return &KMSKeyStore{
		bucket:    bucket,
		prefix:    strings.TrimSuffix(prefix, "/") + "/",
		wrapper:   wrapper,
		masterKey: masterKey,
		now:       time.Now,
	}
}

func (s *KMSKeyStore) versionObject(version uint) string {
	return fmt.Sprintf("%sv%010d.json", s.prefix, version)
}

// readRing loads every version object. Only the highest version is flagged
// primary.
func (s *KMSKeyStore) readRing(ctx context.Context) ([]*cryptoDomain.WrappedKey, error) {
	var wrapped []*cryptoDomain.WrappedKey

	iter := s.bucket.List(&blob.ListOptions{Prefix: s.prefix})
	for {
		obj, err := iter.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list key ring %q: %w", s.prefix, err)
		}
		if obj.IsDir || !s.isVersionObject(obj.Key) {
			continue
		}

		w, err := s.readVersion(ctx, obj.Key)
		if err != nil {
			return nil, err
		}
		wrapped = append(wrapped, w)
	}

	slices.SortFunc(wrapped, func(a, b *cryptoDomain.WrappedKey) int {
		return cmp.Compare(a.Version, b.Version)
	})
	for i, w := range wrapped {
		w.IsPrimary = i == len(wrapped)-1
	}
	return wrapped, nil
}

func (s *KMSKeyStore) isVersionObject(key string) bool {
	name, ok := strings.CutPrefix(key, s.prefix+"v")
	if !ok {
		return false
	}
	digits, ok := strings.CutSuffix(name, ".json")
	if !ok || digits == "" {
		return false
	}
	_, err := strconv.ParseUint(digits, 10, 64)
	return err == nil
}

func (s *KMSKeyStore) readVersion(ctx context.Context, object string) (*cryptoDomain.WrappedKey, error) {
	data, err := s.bucket.ReadAll(ctx, object)
	if err != nil {
		return nil, fmt.Errorf("failed to read key %q: %w", object, err)
	}

	var entry keyringEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("%w: invalid key object %q: %v", cryptoDomain.ErrConfiguration, object, err)
	}
	if object != s.versionObject(entry.Version) {
		return nil, fmt.Errorf("%w: key object %q holds version %d", cryptoDomain.ErrConfiguration, object, entry.Version)
	}
	return &cryptoDomain.WrappedKey{
		Version:    entry.Version,
		WrappedKey: entry.Key,
		CreatedAt:  entry.CreatedAt,
		ExpiresAt:  entry.ExpiresAt,
	}, nil
}

// writeVersion creates the object for w. It fails with
// cryptoDomain.ErrRotationConflict when the version already exists.
func (s *KMSKeyStore) writeVersion(ctx context.Context, w *cryptoDomain.WrappedKey) error {
	data, err := json.Marshal(keyringEntry{
		Version:   w.Version,
		Key:       w.WrappedKey,
		CreatedAt: w.CreatedAt,
		ExpiresAt: w.ExpiresAt,
	})
	if err != nil {
		return err
	}

	object := s.versionObject(w.Version)
	opts := &blob.WriterOptions{ContentType: "application/json", IfNotExist: true}
	if err := s.bucket.WriteAll(ctx, object, data, opts); err != nil {
		if gcerrors.Code(err) == gcerrors.FailedPrecondition {
			return errors.Join(cryptoDomain.ErrRotationConflict, err)
		}
		return fmt.Errorf("failed to write key %q: %w", object, err)
	}
	return nil
}

// GetCurrentKey returns the primary active key or the highest active version.
func (s *KMSKeyStore) GetCurrentKey(ctx context.Context) (*cryptoDomain.EncryptionKey, error) {
	ring, err := s.readRing(ctx)
	if err != nil {
		return nil, err
	}

	current, err := selectCurrentWrapped(ring, s.now())
	if err != nil {
		return nil, err
	}
	return unwrapKey(ctx, s.wrapper, current)
}

// GetKeyByVersion returns the key with the exact version.
func (s *KMSKeyStore) GetKeyByVersion(ctx context.Context, version uint) (*cryptoDomain.EncryptionKey, error) {
	ring, err := s.readRing(ctx)
	if err != nil {
		return nil, err
	}

	wrapped, err := findWrapped(ring, version)
	if err != nil {
		return nil, err
	}
	return unwrapKey(ctx, s.wrapper, wrapped)
}

// GetMasterKey returns a copy of the master key.
func (s *KMSKeyStore) GetMasterKey(_ context.Context) ([]byte, error) {
	return slices.Clone(s.masterKey.Key), nil
}

// GenerateNewKey wraps fresh material with the KMS key and creates the next
// version object. Losing a race for that version returns
// cryptoDomain.ErrRotationConflict and nothing is written.
func (s *KMSKeyStore) GenerateNewKey(ctx context.Context) (*cryptoDomain.EncryptionKey, error) {
	ring, err := s.readRing(ctx)
	if err != nil {
		return nil, err
	}

	wrapped, key, err := newWrappedKey(ctx, s.wrapper, nextWrappedVersion(ring), s.now())
	if err != nil {
		return nil, err
	}

	if err := s.writeVersion(ctx, wrapped); err != nil {
		cryptoDomain.Zero(key.Key)
		return nil, err
	}
	return key, nil
}

// ListKeys unwraps every key in the ring.
func (s *KMSKeyStore) ListKeys(ctx context.Context) ([]*cryptoDomain.EncryptionKey, error) {
	ring, err := s.readRing(ctx)
	if err != nil {
		return nil, err
	}
	return unwrapAll(ctx, s.wrapper, ring)
}
