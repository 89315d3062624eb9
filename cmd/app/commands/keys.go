package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	cryptoDomain "github.com/dealdesk/fieldcrypt/internal/crypto/domain"
	cryptoUsecase "github.com/dealdesk/fieldcrypt/internal/crypto/usecase"
)

// keyInfo is the printable metadata of a key. Key material is never printed.
type keyInfo struct {
	Version   uint       `json:"version"`
	Primary   bool       `json:"primary"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func newKeyInfo(key *cryptoDomain.EncryptionKey, now time.Time) keyInfo {
	return keyInfo{
		Version:   key.Version,
		Primary:   key.IsPrimary,
		Active:    key.IsActive(now),
		CreatedAt: key.CreatedAt,
		ExpiresAt: key.ExpiresAt,
	}
}

// ReencryptionWaiter blocks until the re-encryption jobs enqueued by a
// rotation hook have finished.
type ReencryptionWaiter interface {
	Wait()
}

// RunRotateKey creates a new primary key through the configured key store.
// Values encrypted under earlier versions stay readable. When reencryption is
// not nil the command returns only after the jobs started by the rotation
// have finished.
func RunRotateKey(
	ctx context.Context,
	keyManager cryptoUsecase.KeyManager,
	reencryption ReencryptionWaiter,
	logger *slog.Logger,
	writer io.Writer,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	key, err := keyManager.RotateKey(ctx)
	if err != nil {
		return fmt.Errorf("failed to rotate key: %w", err)
	}
	logger.Info("encryption key rotated", slog.Uint64("version", uint64(key.Version)))

	if reencryption != nil {
		logger.Info("waiting for re-encryption jobs", slog.Uint64("version", uint64(key.Version)))
		reencryption.Wait()
	}

	if format == "json" {
		return writeJSON(writer, newKeyInfo(key, time.Now()))
	}
	_, err = fmt.Fprintf(writer, "Rotated encryption key, new primary version: %d\n", key.Version)
	return err
}

// RunListKeys prints every key version with its primary flag and validity window.
func RunListKeys(
	ctx context.Context,
	keyManager cryptoUsecase.KeyManager,
	writer io.Writer,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	keys, err := keyManager.ListKeys(ctx)
	if err != nil {
		return fmt.Errorf("failed to list keys: %w", err)
	}

	now := time.Now()
	infos := make([]keyInfo, 0, len(keys))
	for _, key := range keys {
		infos = append(infos, newKeyInfo(key, now))
	}

	if format == "json" {
		return writeJSON(writer, infos)
	}

	tw := tabwriter.NewWriter(writer, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "VERSION\tPRIMARY\tACTIVE\tCREATED AT\tEXPIRES AT")
	for _, info := range infos {
		expires := "-"
		if info.ExpiresAt != nil {
			expires = info.ExpiresAt.Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(tw, "%d\t%t\t%t\t%s\t%s\n",
			info.Version, info.Primary, info.Active, info.CreatedAt.Format(time.RFC3339), expires)
	}
	return tw.Flush()
}
