package service

import (
	"context"
	"fmt"

	"gocloud.dev/secrets"

	cryptoDomain "github.com/dealdesk/fieldcrypt/internal/crypto/domain"

	// Register all KMS provider drivers
	_ "gocloud.dev/secrets/awskms"
	_ "gocloud.dev/secrets/azurekeyvault"
	_ "gocloud.dev/secrets/gcpkms"
	_ "gocloud.dev/secrets/hashivault"
	_ "gocloud.dev/secrets/localsecrets"
)

// KMSService opens KMS keepers using gocloud.dev/secrets.
type KMSService interface {
	// OpenKeeper opens a keeper for the configured KMS provider.
	// Returns an error if the KMS provider URI is invalid or connection fails.
	OpenKeeper(ctx context.Context, keyURI string) (KMSKeeper, error)
}

type kmsService struct{}

// NewKMSService creates a new KMS service instance.
func NewKMSService() KMSService {
	return &kmsService{}
}

// OpenKeeper opens a secrets.Keeper for the configured KMS provider using the keyURI.
// Supports: gcpkms://, awskms://, azurekeyvault://, hashivault://, base64key://
func (k *kmsService) OpenKeeper(ctx context.Context, keyURI string) (KMSKeeper, error) {
	keeper, err := secrets.OpenKeeper(ctx, keyURI)
	if err != nil {
		return nil, fmt.Errorf("failed to open KMS keeper: %w", err)
	}
	return keeper, nil
}

// LoadMasterKey resolves the configured master key.
//
// Without a KMS key URI the raw value is the base64 master key itself. With a
// KMS key URI the raw value is base64 KMS ciphertext, decrypted through the keeper.
// The keeper is closed before returning.
func LoadMasterKey(ctx context.Context, kms KMSService, keyURI, raw string) (*cryptoDomain.MasterKey, error) {
	if keyURI == "" {
		return cryptoDomain.ParseMasterKey(raw)
	}

	ciphertext, err := cryptoDomain.DecodeMasterKeyBytes(raw)
	if err != nil {
		return nil, err
	}

	keeper, err := kms.OpenKeeper(ctx, keyURI)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", cryptoDomain.ErrConfiguration, err)
	}
	defer func() {
		_ = keeper.Close()
	}()

	plaintext, err := keeper.Decrypt(ctx, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decrypt master key: %w", cryptoDomain.ErrConfiguration, err)
	}
	defer cryptoDomain.Zero(plaintext)

	return cryptoDomain.NewMasterKey(plaintext)
}
