package keystore

import (
	"fmt"

	vault "github.com/hashicorp/vault/api"
	"gocloud.dev/blob"

	cryptoDomain "github.com/dealdesk/fieldcrypt/internal/crypto/domain"
	cryptoService "github.com/dealdesk/fieldcrypt/internal/crypto/service"
	"github.com/dealdesk/fieldcrypt/internal/database"
)

// Dependencies carries the collaborators a store variant may need.
// Only the fields used by the selected Kind must be set.
type Dependencies struct {
	MasterKey *cryptoDomain.MasterKey

	// local
	LocalKeys []*cryptoDomain.EncryptionKey

	// database
	Repository KeyRepository
	TxManager  database.TxManager

	// kms
	Bucket        *blob.Bucket
	KeyringObject string
	Keeper        cryptoService.KMSKeeper

	// vault
	VaultClient *vault.Client
	VaultMount  string
	VaultPath   string
}

// New builds the store variant named by kind.
func New(kind Kind, deps Dependencies) (KeyStore, error) {
	if deps.MasterKey == nil {
		return nil, cryptoDomain.ErrMasterKeyNotSet
	}

	switch kind {
	case KindLocal:
		store, err := NewLocalKeyStore(deps.MasterKey, deps.LocalKeys)
		if err != nil {
			return nil, err
		}
		return store, nil

	case KindDatabase:
		if deps.Repository == nil || deps.TxManager == nil {
			return nil, fmt.Errorf("%w: database key store requires a repository and a tx manager",
				cryptoDomain.ErrConfiguration)
		}
		wrapper, err := cryptoService.NewMasterKeyWrapper(deps.MasterKey)
		if err != nil {
			return nil, err
		}
		return NewDatabaseKeyStore(deps.Repository, deps.TxManager, wrapper, deps.MasterKey), nil

	case KindKMS:
		if deps.Bucket == nil || deps.Keeper == nil || deps.KeyringObject == "" {
			return nil, fmt.Errorf("%w: kms key store requires a bucket, an object name and a keeper",
				cryptoDomain.ErrConfiguration)
		}
		wrapper := cryptoService.NewKeeperWrapper(deps.Keeper)
		return NewKMSKeyStore(deps.Bucket, deps.KeyringObject, wrapper, deps.MasterKey), nil

	case KindVault:
		if deps.VaultClient == nil || deps.VaultMount == "" || deps.VaultPath == "" {
			return nil, fmt.Errorf("%w: vault key store requires a client, a mount and a path",
				cryptoDomain.ErrConfiguration)
		}
		return NewVaultKeyStore(deps.VaultClient, deps.VaultMount, deps.VaultPath, deps.MasterKey), nil

	default:
		return nil, fmt.Errorf("%w: unknown key store %q", cryptoDomain.ErrConfiguration, kind)
	}
}
