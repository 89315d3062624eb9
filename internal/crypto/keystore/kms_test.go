package keystore

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob"
	"gocloud.dev/blob/memblob"
	"gocloud.dev/secrets/localsecrets"

	cryptoDomain "github.com/dealdesk/fieldcrypt/internal/crypto/domain"
	cryptoService "github.com/dealdesk/fieldcrypt/internal/crypto/service"
)

const testKeyringPrefix = "keyring"

func newKMSFixture(t *testing.T) (*KMSKeyStore, *blob.Bucket) {
	t.Helper()

	secret, err := localsecrets.NewRandomKey()
	require.NoError(t, err)
	keeper := localsecrets.NewKeeper(secret)
	bucket := memblob.OpenBucket(nil)
	t.Cleanup(func() {
		_ = keeper.Close()
		_ = bucket.Close()
	})

	store := NewKMSKeyStore(bucket, testKeyringPrefix, cryptoService.NewKeeperWrapper(keeper), newTestMasterKey(t))
	return store, bucket
}

func TestKMSKeyStore_EmptyRing(t *testing.T) {
	ctx := context.Background()
	store, _ := newKMSFixture(t)

	_, err := store.GetCurrentKey(ctx)
	assert.ErrorIs(t, err, cryptoDomain.ErrKeyNotFound)

	keys, err := store.ListKeys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestKMSKeyStore_Rotation(t *testing.T) {
	ctx := context.Background()
	store, bucket := newKMSFixture(t)

	first, err := store.GenerateNewKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(1), first.Version)

	second, err := store.GenerateNewKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(2), second.Version)

	current, err := store.GetCurrentKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.Key, current.Key)

	old, err := store.GetKeyByVersion(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, first.Key, old.Key)
	assert.False(t, old.IsPrimary)

	_, err = store.GetKeyByVersion(ctx, 3)
	assert.ErrorIs(t, err, cryptoDomain.ErrInvalidKeyVersion)

	raw, err := bucket.ReadAll(ctx, "keyring/v0000000002.json")
	require.NoError(t, err)
	assert.NotContains(t, string(raw), string(second.Key), "key objects must only hold wrapped material")

	keys, err := store.ListKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.False(t, keys[0].IsPrimary)
	assert.True(t, keys[1].IsPrimary)
}

func TestKMSKeyStore_ExistingVersionIsNeverReplaced(t *testing.T) {
	ctx := context.Background()
	store, bucket := newKMSFixture(t)

	first, err := store.GenerateNewKey(ctx)
	require.NoError(t, err)
	before, err := bucket.ReadAll(ctx, "keyring/v0000000001.json")
	require.NoError(t, err)

	wrapped, key, err := newWrappedKey(ctx, store.wrapper, 1, store.now())
	require.NoError(t, err)
	err = store.writeVersion(ctx, wrapped)
	assert.ErrorIs(t, err, cryptoDomain.ErrRotationConflict)
	assert.NotEqual(t, first.Key, key.Key)

	after, err := bucket.ReadAll(ctx, "keyring/v0000000001.json")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestKMSKeyStore_ConcurrentRotationAcrossStores(t *testing.T) {
	ctx := context.Background()
	store, bucket := newKMSFixture(t)
	// a second process sharing the bucket and KMS key
	other := NewKMSKeyStore(bucket, testKeyringPrefix, store.wrapper, newTestMasterKey(t))

	var (
		mu      sync.Mutex
		issued  []*cryptoDomain.EncryptionKey
		wg      sync.WaitGroup
		stores  = []*KMSKeyStore{store, other}
		workers = 8
	)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key, err := stores[i%2].GenerateNewKey(ctx)
			if err != nil {
				assert.ErrorIs(t, err, cryptoDomain.ErrRotationConflict)
				return
			}
			mu.Lock()
			issued = append(issued, key)
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.NotEmpty(t, issued)
	versions := make(map[uint]bool)
	for _, key := range issued {
		assert.False(t, versions[key.Version], "version %d issued twice", key.Version)
		versions[key.Version] = true

		stored, err := other.GetKeyByVersion(ctx, key.Version)
		require.NoError(t, err)
		assert.Equal(t, key.Key, stored.Key, "issued key for version %d must be the stored one", key.Version)
	}

	keys, err := store.ListKeys(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, len(issued))
}

func TestKMSKeyStore_CorruptRing(t *testing.T) {
	ctx := context.Background()
	store, bucket := newKMSFixture(t)

	require.NoError(t, bucket.WriteAll(ctx, "keyring/v0000000001.json", []byte("{not json"), nil))

	_, err := store.GetCurrentKey(ctx)
	assert.ErrorIs(t, err, cryptoDomain.ErrConfiguration)
}

func TestKMSKeyStore_IgnoresForeignObjects(t *testing.T) {
	ctx := context.Background()
	store, bucket := newKMSFixture(t)

	require.NoError(t, bucket.WriteAll(ctx, "keyring/README", []byte("notes"), nil))
	require.NoError(t, bucket.WriteAll(ctx, "keyring-backup/v0000000009.json", []byte("{}"), nil))

	key, err := store.GenerateNewKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(1), key.Version)

	keys, err := store.ListKeys(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}
