package commands

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"

	cryptoDomain "github.com/dealdesk/fieldcrypt/internal/crypto/domain"
	cryptoService "github.com/dealdesk/fieldcrypt/internal/crypto/service"
)

// RunCreateMasterKey generates a 32-byte master key and prints it as MASTER_KEY.
// With a KMS key URI the key is encrypted by the KMS keeper first and the
// printed value is the base64 ciphertext. Key material is zeroed after encoding.
func RunCreateMasterKey(
	ctx context.Context,
	kmsService cryptoService.KMSService,
	logger *slog.Logger,
	writer io.Writer,
	kmsKeyURI string,
) error {
	masterKey, err := cryptoService.GenerateKeyMaterial()
	if err != nil {
		return fmt.Errorf("failed to generate master key: %w", err)
	}
	defer cryptoDomain.Zero(masterKey)

	if kmsKeyURI == "" {
		logger.Warn("master key printed in plaintext, prefer --kms-key-uri in production")
		_, err := fmt.Fprintf(writer, "MASTER_KEY=\"%s\"\n", base64.StdEncoding.EncodeToString(masterKey))
		return err
	}

	keeper, err := kmsService.OpenKeeper(ctx, kmsKeyURI)
	if err != nil {
		return fmt.Errorf("failed to open KMS keeper: %w", err)
	}
	defer func() {
		if closeErr := keeper.Close(); closeErr != nil {
			logger.Warn("failed to close KMS keeper", slog.Any("error", closeErr))
		}
	}()

	ciphertext, err := keeper.Encrypt(ctx, masterKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt master key with KMS: %w", err)
	}

	_, err = fmt.Fprintf(writer,
		"# Copy these environment variables to your .env file or secrets manager\nKMS_KEY_URI=\"%s\"\nMASTER_KEY=\"%s\"\n",
		kmsKeyURI,
		base64.StdEncoding.EncodeToString(ciphertext),
	)
	return err
}
