package encryption

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	cryptoDomain "github.com/dealdesk/fieldcrypt/internal/crypto/domain"
)

// maxConcurrentKeyLookups bounds parallel key store calls in BulkDecrypt.
const maxConcurrentKeyLookups = 4

func (b *backend) BulkEncrypt(ctx context.Context, values []*string) ([]*string, error) {
	out := make([]*string, len(values))

	var key *cryptoDomain.EncryptionKey
	for i, v := range values {
		if v == nil {
			continue
		}
		if *v == "" {
			out[i] = new(string)
			continue
		}

		if key == nil {
			var err error
			key, err = b.keyManager.GetCurrentKey(ctx)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", cryptoDomain.ErrEncryptionFailed, err)
			}
		}

		encrypted, err := b.encryptWithKey(key, *v)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = &encrypted
	}
	return out, nil
}

func (b *backend) BulkDecrypt(ctx context.Context, ciphertexts []*string) []*string {
	out := make([]*string, len(ciphertexts))
	envelopes := make([]*cryptoDomain.Envelope, len(ciphertexts))
	byVersion := make(map[uint][]int)

	for i, c := range ciphertexts {
		if c == nil {
			continue
		}
		if *c == "" {
			out[i] = new(string)
			continue
		}
		if cached, ok := b.cache.Get(ctx, decryptedCacheKey(*c)); ok {
			plaintext := string(cached)
			out[i] = &plaintext
			continue
		}

		env, err := cryptoDomain.DecodeEnvelope(*c)
		if err != nil {
			b.logger.Warn("bulk decrypt skipped malformed value", slog.Int("index", i), slog.Any("error", err))
			continue
		}
		envelopes[i] = env
		byVersion[env.Version] = append(byVersion[env.Version], i)
	}

	keys := b.resolveVersions(ctx, byVersion)

	for version, indexes := range byVersion {
		key, ok := keys[version]
		if !ok {
			continue
		}
		for _, i := range indexes {
			plaintext, err := b.openEnvelope(key, envelopes[i])
			if err != nil {
				b.logger.Warn("bulk decrypt failed for value",
					slog.Int("index", i),
					slog.Uint64("version", uint64(version)),
					slog.Any("error", err),
				)
				continue
			}
			b.cache.Set(ctx, decryptedCacheKey(*ciphertexts[i]), plaintext, b.opts.DecryptedCacheTTL)
			s := string(plaintext)
			out[i] = &s
		}
	}
	return out
}

// resolveVersions looks up each distinct key version once, a few at a time.
// Versions that cannot be resolved are left out of the result.
func (b *backend) resolveVersions(
	ctx context.Context,
	byVersion map[uint][]int,
) map[uint]*cryptoDomain.EncryptionKey {
	var (
		mu   sync.Mutex
		keys = make(map[uint]*cryptoDomain.EncryptionKey, len(byVersion))
		g    errgroup.Group
	)
	g.SetLimit(maxConcurrentKeyLookups)

	for version := range byVersion {
		g.Go(func() error {
			key, err := b.keyManager.GetKeyByVersion(ctx, version)
			if err != nil {
				b.logger.Warn("bulk decrypt could not resolve key version",
					slog.Uint64("version", uint64(version)),
					slog.Int("values", len(byVersion[version])),
					slog.Any("error", err),
				)
				return nil
			}
			mu.Lock()
			keys[version] = key
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return keys
}
