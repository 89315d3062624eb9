package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/dealdesk/fieldcrypt/internal/encryption"
)

// RunEncrypt prints the envelope for value. With withHash the search hash is
// printed on a second line.
func RunEncrypt(
	ctx context.Context,
	backend encryption.Backend,
	writer io.Writer,
	value string,
	withHash bool,
) error {
	ciphertext, err := backend.Encrypt(ctx, value)
	if err != nil {
		return fmt.Errorf("failed to encrypt value: %w", err)
	}
	if _, err := fmt.Fprintln(writer, ciphertext); err != nil {
		return err
	}
	if !withHash {
		return nil
	}
	return RunSearchHash(ctx, backend, writer, value)
}

// RunDecrypt prints the plaintext of an envelope.
func RunDecrypt(ctx context.Context, backend encryption.Backend, writer io.Writer, ciphertext string) error {
	plaintext, err := backend.Decrypt(ctx, ciphertext)
	if err != nil {
		return fmt.Errorf("failed to decrypt value: %w", err)
	}
	_, err = fmt.Fprintln(writer, plaintext)
	return err
}

// RunSearchHash prints the deterministic search hash of value.
func RunSearchHash(ctx context.Context, backend encryption.Backend, writer io.Writer, value string) error {
	hash, err := backend.CreateSearchHash(ctx, value)
	if err != nil {
		return fmt.Errorf("failed to create search hash: %w", err)
	}
	_, err = fmt.Fprintln(writer, hash)
	return err
}
