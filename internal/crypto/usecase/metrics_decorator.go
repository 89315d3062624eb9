package usecase

import (
	"context"
	"time"

	cryptoDomain "github.com/dealdesk/fieldcrypt/internal/crypto/domain"
	"github.com/dealdesk/fieldcrypt/internal/metrics"
)

// keyManagerWithMetrics decorates KeyManager with metrics instrumentation.
type keyManagerWithMetrics struct {
	next    KeyManager
	metrics metrics.BusinessMetrics
}

// NewKeyManagerWithMetrics wraps a KeyManager with metrics recording.
func NewKeyManagerWithMetrics(keyManager KeyManager, m metrics.BusinessMetrics) KeyManager {
	return &keyManagerWithMetrics{
		next:    keyManager,
		metrics: m,
	}
}

func (k *keyManagerWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	k.metrics.RecordOperation(ctx, "keys", operation, status)
	k.metrics.RecordDuration(ctx, "keys", operation, time.Since(start), status)
}

// GetCurrentKey records metrics for current key lookups.
func (k *keyManagerWithMetrics) GetCurrentKey(ctx context.Context) (*cryptoDomain.EncryptionKey, error) {
	start := time.Now()
	key, err := k.next.GetCurrentKey(ctx)
	k.record(ctx, "key_get_current", start, err)
	return key, err
}

// GetKeyByVersion records metrics for versioned key lookups.
func (k *keyManagerWithMetrics) GetKeyByVersion(
	ctx context.Context,
	version uint,
) (*cryptoDomain.EncryptionKey, error) {
	start := time.Now()
	key, err := k.next.GetKeyByVersion(ctx, version)
	k.record(ctx, "key_get_version", start, err)
	return key, err
}

// GetSearchKey records metrics for search key lookups.
func (k *keyManagerWithMetrics) GetSearchKey(ctx context.Context) ([]byte, error) {
	start := time.Now()
	key, err := k.next.GetSearchKey(ctx)
	k.record(ctx, "search_key_get", start, err)
	return key, err
}

// RotateKey records metrics for key rotations and publishes the new version.
func (k *keyManagerWithMetrics) RotateKey(ctx context.Context) (*cryptoDomain.EncryptionKey, error) {
	start := time.Now()
	key, err := k.next.RotateKey(ctx)
	k.record(ctx, "key_rotate", start, err)
	if err == nil {
		k.metrics.RecordKeyVersion(ctx, key.Version)
	}
	return key, err
}

// EnsureCurrentKey records metrics for key bootstrap checks and publishes the current version.
func (k *keyManagerWithMetrics) EnsureCurrentKey(ctx context.Context) (*cryptoDomain.EncryptionKey, error) {
	start := time.Now()
	key, err := k.next.EnsureCurrentKey(ctx)
	k.record(ctx, "key_ensure", start, err)
	if err == nil {
		k.metrics.RecordKeyVersion(ctx, key.Version)
	}
	return key, err
}

// ListKeys records metrics for key listings.
func (k *keyManagerWithMetrics) ListKeys(ctx context.Context) ([]*cryptoDomain.EncryptionKey, error) {
	start := time.Now()
	keys, err := k.next.ListKeys(ctx)
	k.record(ctx, "key_list", start, err)
	return keys, err
}

func (k *keyManagerWithMetrics) OnRotate(hook RotationHook) {
	k.next.OnRotate(hook)
}

func (k *keyManagerWithMetrics) InvalidateCurrentKey() {
	k.next.InvalidateCurrentKey()
}

func (k *keyManagerWithMetrics) InvalidateKeyVersions() {
	k.next.InvalidateKeyVersions()
}

func (k *keyManagerWithMetrics) InvalidateSearchKey() {
	k.next.InvalidateSearchKey()
}
