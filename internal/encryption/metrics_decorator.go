package encryption

import (
	"context"
	"time"

	"github.com/dealdesk/fieldcrypt/internal/metrics"
)

// backendWithMetrics decorates Backend with metrics instrumentation.
type backendWithMetrics struct {
	next    Backend
	metrics metrics.BusinessMetrics
}

// NewBackendWithMetrics wraps a Backend with metrics recording.
func NewBackendWithMetrics(b Backend, m metrics.BusinessMetrics) Backend {
	return &backendWithMetrics{
		next:    b,
		metrics: m,
	}
}

func (b *backendWithMetrics) record(ctx context.Context, operation string, start time.Time, failed bool) {
	status := "success"
	if failed {
		status = "error"
	}

	b.metrics.RecordOperation(ctx, "encryption", operation, status)
	b.metrics.RecordDuration(ctx, "encryption", operation, time.Since(start), status)
}

// Encrypt records metrics for single value encryption.
func (b *backendWithMetrics) Encrypt(ctx context.Context, plaintext string) (string, error) {
	start := time.Now()
	out, err := b.next.Encrypt(ctx, plaintext)
	b.record(ctx, "encrypt", start, err != nil)
	return out, err
}

// Decrypt records metrics for single value decryption.
func (b *backendWithMetrics) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	start := time.Now()
	out, err := b.next.Decrypt(ctx, ciphertext)
	b.record(ctx, "decrypt", start, err != nil)
	return out, err
}

// CreateSearchHash records metrics for search hash creation.
func (b *backendWithMetrics) CreateSearchHash(ctx context.Context, value string) (string, error) {
	start := time.Now()
	out, err := b.next.CreateSearchHash(ctx, value)
	b.record(ctx, "search_hash", start, err != nil)
	return out, err
}

// VerifySearchHash records metrics for search hash verification. A mismatch
// is a successful verification.
func (b *backendWithMetrics) VerifySearchHash(ctx context.Context, value, hash string) bool {
	start := time.Now()
	ok := b.next.VerifySearchHash(ctx, value, hash)
	b.record(ctx, "search_verify", start, false)
	return ok
}

// BulkEncrypt records metrics for batch encryption.
func (b *backendWithMetrics) BulkEncrypt(ctx context.Context, values []*string) ([]*string, error) {
	start := time.Now()
	out, err := b.next.BulkEncrypt(ctx, values)
	b.record(ctx, "bulk_encrypt", start, err != nil)
	return out, err
}

// BulkDecrypt records metrics for batch decryption. The batch counts as an
// error when any present value failed to decrypt.
func (b *backendWithMetrics) BulkDecrypt(ctx context.Context, ciphertexts []*string) []*string {
	start := time.Now()
	out := b.next.BulkDecrypt(ctx, ciphertexts)

	failed := false
	for i := range ciphertexts {
		if ciphertexts[i] != nil && out[i] == nil {
			failed = true
			break
		}
	}
	b.record(ctx, "bulk_decrypt", start, failed)
	return out
}

func (b *backendWithMetrics) InvalidateCache(ctx context.Context) error {
	return b.next.InvalidateCache(ctx)
}

func (b *backendWithMetrics) KeyVersion(ciphertext string) (uint, error) {
	return b.next.KeyVersion(ciphertext)
}
