package commands

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealdesk/fieldcrypt/internal/cache"
	cryptoDomain "github.com/dealdesk/fieldcrypt/internal/crypto/domain"
	"github.com/dealdesk/fieldcrypt/internal/crypto/keystore"
	cryptoUsecase "github.com/dealdesk/fieldcrypt/internal/crypto/usecase"
	"github.com/dealdesk/fieldcrypt/internal/encryption"
)

func newTestBackend(t *testing.T) encryption.Backend {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	masterKey, err := cryptoDomain.NewMasterKey(bytes.Repeat([]byte{0x42}, 32))
	require.NoError(t, err)
	store, err := keystore.NewLocalKeyStore(masterKey, nil)
	require.NoError(t, err)

	keyManager := cryptoUsecase.NewKeyManager(store, cryptoUsecase.Options{
		KeyCacheTTL:       time.Minute,
		SearchKeyCacheTTL: time.Minute,
	}, logger)

	backend, err := encryption.New(encryption.KindAES, keyManager, cache.NoopCache{}, encryption.Options{}, logger)
	require.NoError(t, err)
	return backend
}

func TestRunEncryptDecrypt(t *testing.T) {
	ctx := context.Background()
	backend := newTestBackend(t)

	var out bytes.Buffer
	require.NoError(t, RunEncrypt(ctx, backend, &out, "jane@example.com", true))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.NotContains(t, lines[0], "jane@example.com")
	assert.True(t, backend.VerifySearchHash(ctx, "jane@example.com", lines[1]))

	var decrypted bytes.Buffer
	require.NoError(t, RunDecrypt(ctx, backend, &decrypted, lines[0]))
	assert.Equal(t, "jane@example.com\n", decrypted.String())
}

func TestRunEncrypt_WithoutHash(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, RunEncrypt(context.Background(), newTestBackend(t), &out, "value", false))
	assert.Equal(t, 1, strings.Count(out.String(), "\n"))
}

func TestRunDecrypt_Invalid(t *testing.T) {
	err := RunDecrypt(context.Background(), newTestBackend(t), &bytes.Buffer{}, "not-an-envelope")
	require.Error(t, err)
	assert.ErrorIs(t, err, cryptoDomain.ErrDecryptionFailed)
}

func TestRunSearchHash(t *testing.T) {
	ctx := context.Background()
	backend := newTestBackend(t)

	var first, second bytes.Buffer
	require.NoError(t, RunSearchHash(ctx, backend, &first, "Jane@Example.com "))
	require.NoError(t, RunSearchHash(ctx, backend, &second, "jane@example.com"))
	assert.Equal(t, first.String(), second.String())
}
