package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dealdesk/fieldcrypt/internal/metrics"
)

type mockBusinessMetrics struct {
	metrics.NoOpBusinessMetrics
	mock.Mock
}

func (m *mockBusinessMetrics) RecordCacheLookup(ctx context.Context, cache string, hit bool) {
	m.Called(ctx, cache, hit)
}

func TestCacheWithMetrics(t *testing.T) {
	ctx := context.Background()
	m := &mockBusinessMetrics{}
	m.On("RecordCacheLookup", ctx, "decrypted", false).Return().Once()
	m.On("RecordCacheLookup", ctx, "decrypted", true).Return().Once()

	inner := NewMemoryCache(Options{DefaultTTL: time.Minute})
	c := NewCacheWithMetrics(inner, "decrypted", m)
	defer func() { require.NoError(t, c.Close()) }()

	_, ok := c.Get(ctx, "decrypted:abc")
	assert.False(t, ok)

	c.Set(ctx, "decrypted:abc", []byte("jane@example.com"), 0)
	value, ok := c.Get(ctx, "decrypted:abc")
	require.True(t, ok)
	assert.Equal(t, []byte("jane@example.com"), value)

	require.NoError(t, c.DeletePrefix(ctx, "decrypted:"))
	_, ok = inner.Get(ctx, "decrypted:abc")
	assert.False(t, ok)

	m.AssertExpectations(t)
}
