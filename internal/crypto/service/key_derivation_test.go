package service

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/pbkdf2"

	cryptoDomain "github.com/dealdesk/fieldcrypt/internal/crypto/domain"
)

func TestDeriveSearchKey(t *testing.T) {
	zeroKey, err := cryptoDomain.NewMasterKey(make([]byte, 32))
	require.NoError(t, err)

	t.Run("deterministic", func(t *testing.T) {
		k1 := DeriveSearchKey(zeroKey)
		k2 := DeriveSearchKey(zeroKey)
		assert.Len(t, k1, 32)
		assert.Equal(t, k1, k2)
	})

	t.Run("matches pbkdf2 parameters", func(t *testing.T) {
		expected := pbkdf2.Key(make([]byte, 32), []byte("fieldcrypt-search-key-v1"), 100000, 32, sha256.New)
		assert.Equal(t, expected, DeriveSearchKey(zeroKey))
	})

	t.Run("depends on master key", func(t *testing.T) {
		other := newTestMasterKey(t)
		assert.NotEqual(t, DeriveSearchKey(zeroKey), DeriveSearchKey(other))
	})
}

func TestDeriveKey(t *testing.T) {
	mk := newTestMasterKey(t)

	k1, err := DeriveKey(mk, "purpose-a")
	require.NoError(t, err)
	k2, err := DeriveKey(mk, "purpose-a")
	require.NoError(t, err)
	k3, err := DeriveKey(mk, "purpose-b")
	require.NoError(t, err)

	assert.Len(t, k1, 32)
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	assert.NotEqual(t, mk.Key, k1)
}

func TestGenerateKeyMaterial(t *testing.T) {
	k1, err := GenerateKeyMaterial()
	require.NoError(t, err)
	k2, err := GenerateKeyMaterial()
	require.NoError(t, err)

	assert.Len(t, k1, 32)
	assert.NotEqual(t, k1, k2)
}
