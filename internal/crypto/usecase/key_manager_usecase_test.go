package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/dealdesk/fieldcrypt/internal/crypto/domain"
	"github.com/dealdesk/fieldcrypt/internal/crypto/keystore"
	keystoreMocks "github.com/dealdesk/fieldcrypt/internal/crypto/keystore/mocks"
	cryptoService "github.com/dealdesk/fieldcrypt/internal/crypto/service"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testKey(version uint, fill byte, primary bool) *cryptoDomain.EncryptionKey {
	return &cryptoDomain.EncryptionKey{
		Version:   version,
		Key:       bytes.Repeat([]byte{fill}, cryptoDomain.KeySize),
		CreatedAt: time.Now().UTC(),
		IsPrimary: primary,
	}
}

var cachedOptions = Options{KeyCacheTTL: time.Minute, SearchKeyCacheTTL: time.Hour}

// TestKeyManager_GetCurrentKey tests current key caching.
func TestKeyManager_GetCurrentKey(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_CachesStoreResult", func(t *testing.T) {
		// Setup mocks
		store := &keystoreMocks.MockKeyStore{}
		store.On("GetCurrentKey", ctx).Return(testKey(1, 1, true), nil).Once()

		// Execute
		km := NewKeyManager(store, cachedOptions, newTestLogger())
		first, err := km.GetCurrentKey(ctx)
		require.NoError(t, err)
		second, err := km.GetCurrentKey(ctx)
		require.NoError(t, err)

		// Assert
		assert.Equal(t, uint(1), first.Version)
		assert.Equal(t, first, second)
		store.AssertExpectations(t)
	})

	t.Run("Success_CurrentKeyAlsoServesItsVersion", func(t *testing.T) {
		store := &keystoreMocks.MockKeyStore{}
		store.On("GetCurrentKey", ctx).Return(testKey(3, 3, true), nil).Once()

		km := NewKeyManager(store, cachedOptions, newTestLogger())
		_, err := km.GetCurrentKey(ctx)
		require.NoError(t, err)

		key, err := km.GetKeyByVersion(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, uint(3), key.Version)
		store.AssertExpectations(t)
	})

	t.Run("Success_ZeroTTLDisablesCache", func(t *testing.T) {
		store := &keystoreMocks.MockKeyStore{}
		store.On("GetCurrentKey", ctx).Return(testKey(1, 1, true), nil).Twice()

		km := NewKeyManager(store, Options{}, newTestLogger())
		_, err := km.GetCurrentKey(ctx)
		require.NoError(t, err)
		_, err = km.GetCurrentKey(ctx)
		require.NoError(t, err)
		store.AssertExpectations(t)
	})

	t.Run("Success_ReturnedKeyIsACopy", func(t *testing.T) {
		store := &keystoreMocks.MockKeyStore{}
		store.On("GetCurrentKey", ctx).Return(testKey(1, 1, true), nil).Once()

		km := NewKeyManager(store, cachedOptions, newTestLogger())
		first, err := km.GetCurrentKey(ctx)
		require.NoError(t, err)
		first.Key[0] = 0xFF

		second, err := km.GetCurrentKey(ctx)
		require.NoError(t, err)
		assert.Equal(t, byte(1), second.Key[0])
	})

	t.Run("Error_NotCached", func(t *testing.T) {
		store := &keystoreMocks.MockKeyStore{}
		store.On("GetCurrentKey", ctx).Return(nil, cryptoDomain.ErrKeyNotFound).Once()
		store.On("GetCurrentKey", ctx).Return(testKey(1, 1, true), nil).Once()

		km := NewKeyManager(store, cachedOptions, newTestLogger())
		_, err := km.GetCurrentKey(ctx)
		assert.ErrorIs(t, err, cryptoDomain.ErrKeyNotFound)

		key, err := km.GetCurrentKey(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint(1), key.Version)
		store.AssertExpectations(t)
	})
}

// TestKeyManager_GetKeyByVersion tests per-version caching.
func TestKeyManager_GetKeyByVersion(t *testing.T) {
	ctx := context.Background()

	store := &keystoreMocks.MockKeyStore{}
	store.On("GetKeyByVersion", ctx, uint(2)).Return(testKey(2, 2, false), nil).Once()
	store.On("GetKeyByVersion", ctx, uint(9)).Return(nil, cryptoDomain.ErrInvalidKeyVersion).Once()

	km := NewKeyManager(store, cachedOptions, newTestLogger())

	for range 3 {
		key, err := km.GetKeyByVersion(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, uint(2), key.Version)
	}

	_, err := km.GetKeyByVersion(ctx, 9)
	assert.ErrorIs(t, err, cryptoDomain.ErrInvalidKeyVersion)
	store.AssertExpectations(t)
}

// TestKeyManager_GetSearchKey tests search key derivation and caching.
func TestKeyManager_GetSearchKey(t *testing.T) {
	ctx := context.Background()
	master := make([]byte, cryptoDomain.KeySize)

	t.Run("Success_DerivedOnceWithPBKDF2", func(t *testing.T) {
		store := &keystoreMocks.MockKeyStore{}
		store.On("GetMasterKey", ctx).Return(append([]byte(nil), master...), nil).Once()

		km := NewKeyManager(store, cachedOptions, newTestLogger())
		first, err := km.GetSearchKey(ctx)
		require.NoError(t, err)
		second, err := km.GetSearchKey(ctx)
		require.NoError(t, err)

		mk, err := cryptoDomain.NewMasterKey(master)
		require.NoError(t, err)
		assert.Equal(t, cryptoService.DeriveSearchKey(mk), first)
		assert.Equal(t, first, second)
		assert.Len(t, first, cryptoDomain.KeySize)
		store.AssertExpectations(t)
	})

	t.Run("Error_InvalidMasterKey", func(t *testing.T) {
		store := &keystoreMocks.MockKeyStore{}
		store.On("GetMasterKey", ctx).Return([]byte("short"), nil).Once()

		km := NewKeyManager(store, cachedOptions, newTestLogger())
		_, err := km.GetSearchKey(ctx)
		assert.ErrorIs(t, err, cryptoDomain.ErrInvalidKeySize)
	})
}

// TestKeyManager_RotateKey tests rotation orchestration.
func TestKeyManager_RotateKey(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_InvalidatesCachesAndRunsHooks", func(t *testing.T) {
		// Setup mocks
		store := &keystoreMocks.MockKeyStore{}
		store.On("GetCurrentKey", ctx).Return(testKey(1, 1, true), nil).Once()
		store.On("GenerateNewKey", ctx).Return(testKey(2, 2, true), nil).Once()
		store.On("GetCurrentKey", ctx).Return(testKey(2, 2, true), nil).Once()

		km := NewKeyManager(store, cachedOptions, newTestLogger())

		var hooked []uint
		km.OnRotate(func(_ context.Context, key *cryptoDomain.EncryptionKey) error {
			hooked = append(hooked, key.Version)
			return nil
		})
		km.OnRotate(func(context.Context, *cryptoDomain.EncryptionKey) error {
			return errors.New("cache unavailable")
		})

		before, err := km.GetCurrentKey(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint(1), before.Version)

		// Execute
		rotated, err := km.RotateKey(ctx)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, uint(2), rotated.Version)
		assert.Equal(t, []uint{2}, hooked)

		after, err := km.GetCurrentKey(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint(2), after.Version)
		store.AssertExpectations(t)
	})

	t.Run("Error_WrappedAndVersionUnchanged", func(t *testing.T) {
		store := &keystoreMocks.MockKeyStore{}
		store.On("GetCurrentKey", ctx).Return(testKey(1, 1, true), nil).Once()
		store.On("GenerateNewKey", ctx).Return(nil, errors.New("connection refused")).Once()

		km := NewKeyManager(store, cachedOptions, newTestLogger())
		hookCalled := false
		km.OnRotate(func(context.Context, *cryptoDomain.EncryptionKey) error {
			hookCalled = true
			return nil
		})

		_, err := km.GetCurrentKey(ctx)
		require.NoError(t, err)

		key, err := km.RotateKey(ctx)
		assert.Nil(t, key)
		assert.ErrorIs(t, err, cryptoDomain.ErrKeyRotationFailed)
		assert.ErrorContains(t, err, "connection refused")
		assert.False(t, hookCalled)

		current, err := km.GetCurrentKey(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint(1), current.Version)
		store.AssertExpectations(t)
	})

	t.Run("Success_LoadInFlightDuringRotationIsNotCached", func(t *testing.T) {
		started := make(chan struct{})
		release := make(chan struct{})

		store := &keystoreMocks.MockKeyStore{}
		store.On("GetCurrentKey", mock.Anything).Run(func(mock.Arguments) {
			close(started)
			<-release
		}).Return(testKey(1, 1, true), nil).Once()
		store.On("GenerateNewKey", ctx).Return(testKey(2, 2, true), nil).Once()
		store.On("GetCurrentKey", mock.Anything).Return(testKey(2, 2, true), nil).Once()

		km := NewKeyManager(store, cachedOptions, newTestLogger())

		stale := make(chan uint, 1)
		go func() {
			key, err := km.GetCurrentKey(ctx)
			assert.NoError(t, err)
			stale <- key.Version
		}()
		<-started

		rotated, err := km.RotateKey(ctx)
		require.NoError(t, err)

		after, err := km.GetCurrentKey(ctx)
		require.NoError(t, err)
		assert.Equal(t, rotated.Version, after.Version)

		close(release)
		assert.Equal(t, uint(1), <-stale)

		cached, err := km.GetCurrentKey(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint(2), cached.Version)
		store.AssertExpectations(t)
	})

	t.Run("Success_SearchKeyStableAcrossRotation", func(t *testing.T) {
		mk, err := cryptoDomain.NewMasterKey(make([]byte, 32))
		require.NoError(t, err)
		store, err := keystore.NewLocalKeyStore(mk, nil)
		require.NoError(t, err)

		km := NewKeyManager(store, cachedOptions, newTestLogger())
		before, err := km.GetSearchKey(ctx)
		require.NoError(t, err)

		_, err = km.RotateKey(ctx)
		require.NoError(t, err)

		after, err := km.GetSearchKey(ctx)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})
}

// TestKeyManager_EnsureCurrentKey tests first key bootstrap.
func TestKeyManager_EnsureCurrentKey(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_ExistingKey", func(t *testing.T) {
		store := &keystoreMocks.MockKeyStore{}
		store.On("GetCurrentKey", ctx).Return(testKey(4, 4, true), nil).Once()

		km := NewKeyManager(store, cachedOptions, newTestLogger())
		key, err := km.EnsureCurrentKey(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint(4), key.Version)
		store.AssertNotCalled(t, "GenerateNewKey", mock.Anything)
	})

	t.Run("Success_EmptyStoreRotates", func(t *testing.T) {
		store := &keystoreMocks.MockKeyStore{}
		store.On("GetCurrentKey", ctx).Return(nil, cryptoDomain.ErrKeyNotFound).Once()
		store.On("GenerateNewKey", ctx).Return(testKey(1, 1, true), nil).Once()

		km := NewKeyManager(store, cachedOptions, newTestLogger())
		key, err := km.EnsureCurrentKey(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint(1), key.Version)
		store.AssertExpectations(t)
	})

	t.Run("Error_StoreUnavailable", func(t *testing.T) {
		store := &keystoreMocks.MockKeyStore{}
		store.On("GetCurrentKey", ctx).Return(nil, errors.New("timeout")).Once()

		km := NewKeyManager(store, cachedOptions, newTestLogger())
		_, err := km.EnsureCurrentKey(ctx)
		assert.ErrorContains(t, err, "timeout")
		store.AssertNotCalled(t, "GenerateNewKey", mock.Anything)
	})
}

// TestKeyManager_ConcurrentLoads tests that concurrent cache misses are safe.
func TestKeyManager_ConcurrentLoads(t *testing.T) {
	ctx := context.Background()
	mk, err := cryptoDomain.NewMasterKey(make([]byte, 32))
	require.NoError(t, err)
	store, err := keystore.NewLocalKeyStore(mk, nil)
	require.NoError(t, err)

	km := NewKeyManager(store, cachedOptions, newTestLogger())

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%4 == 0 {
				km.InvalidateCurrentKey()
			}
			key, err := km.GetCurrentKey(ctx)
			assert.NoError(t, err)
			assert.Equal(t, uint(1), key.Version)
		}()
	}
	wg.Wait()
}

// TestKeyManager_ListKeys tests the store passthrough.
func TestKeyManager_ListKeys(t *testing.T) {
	ctx := context.Background()
	keys := []*cryptoDomain.EncryptionKey{testKey(1, 1, false), testKey(2, 2, true)}

	store := &keystoreMocks.MockKeyStore{}
	store.On("ListKeys", ctx).Return(keys, nil).Once()

	km := NewKeyManager(store, cachedOptions, newTestLogger())
	got, err := km.ListKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, keys, got)
	store.AssertExpectations(t)
}
