package encryption

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	cryptoDomain "github.com/dealdesk/fieldcrypt/internal/crypto/domain"
)

// NormalizeSearchValue trims surrounding whitespace and lower-cases value.
func NormalizeSearchValue(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// computeSearchHash is base64(HMAC-SHA256(searchKey, normalized value)).
func computeSearchHash(searchKey []byte, value string) string {
	mac := hmac.New(sha256.New, searchKey)
	mac.Write([]byte(NormalizeSearchValue(value)))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (b *backend) CreateSearchHash(ctx context.Context, value string) (string, error) {
	if value == "" {
		return "", nil
	}

	searchKey, err := b.keyManager.GetSearchKey(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: search key: %w", cryptoDomain.ErrEncryptionFailed, err)
	}

	return computeSearchHash(searchKey, value), nil
}

func (b *backend) VerifySearchHash(ctx context.Context, value, hash string) bool {
	computed, err := b.CreateSearchHash(ctx, value)
	if err != nil {
		b.logger.Warn("search hash verification failed", slog.Any("error", err))
		return false
	}
	return hmac.Equal([]byte(computed), []byte(hash))
}
