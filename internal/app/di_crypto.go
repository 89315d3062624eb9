package app

import (
	"context"
	"fmt"

	vault "github.com/hashicorp/vault/api"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"

	"github.com/dealdesk/fieldcrypt/internal/cache"
	cryptoDomain "github.com/dealdesk/fieldcrypt/internal/crypto/domain"
	"github.com/dealdesk/fieldcrypt/internal/crypto/keystore"
	cryptoRepository "github.com/dealdesk/fieldcrypt/internal/crypto/repository"
	cryptoService "github.com/dealdesk/fieldcrypt/internal/crypto/service"
	cryptoUsecase "github.com/dealdesk/fieldcrypt/internal/crypto/usecase"
	"github.com/dealdesk/fieldcrypt/internal/encryption"
)

// KMSService returns the KMS service.
func (c *Container) KMSService() cryptoService.KMSService {
	c.kmsServiceInit.Do(func() {
		c.kmsService = cryptoService.NewKMSService()
	})
	return c.kmsService
}

// MasterKey returns the master key, decrypted through KMS when KMS_KEY_URI is set.
func (c *Container) MasterKey() (*cryptoDomain.MasterKey, error) {
	var err error
	c.masterKeyInit.Do(func() {
		c.masterKey, err = c.initMasterKey()
		if err != nil {
			c.setInitError("masterKey", err)
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr := c.initError("masterKey"); storedErr != nil {
		return nil, storedErr
	}
	return c.masterKey, nil
}

// KMSKeeper returns the keeper that wraps data keys for the kms key store.
func (c *Container) KMSKeeper() (cryptoService.KMSKeeper, error) {
	var err error
	c.kmsKeeperInit.Do(func() {
		c.kmsKeeper, err = c.initKMSKeeper()
		if err != nil {
			c.setInitError("kmsKeeper", err)
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr := c.initError("kmsKeeper"); storedErr != nil {
		return nil, storedErr
	}
	return c.kmsKeeper, nil
}

// KeyringBucket returns the blob bucket holding the kms key store's key ring.
func (c *Container) KeyringBucket() (*blob.Bucket, error) {
	var err error
	c.keyringBucketInit.Do(func() {
		c.keyringBucket, err = c.initKeyringBucket()
		if err != nil {
			c.setInitError("keyringBucket", err)
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr := c.initError("keyringBucket"); storedErr != nil {
		return nil, storedErr
	}
	return c.keyringBucket, nil
}

// KeyRepository returns the encryption_keys repository for the configured driver.
func (c *Container) KeyRepository() (keystore.KeyRepository, error) {
	var err error
	c.keyRepositoryInit.Do(func() {
		c.keyRepository, err = c.initKeyRepository()
		if err != nil {
			c.setInitError("keyRepository", err)
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr := c.initError("keyRepository"); storedErr != nil {
		return nil, storedErr
	}
	return c.keyRepository, nil
}

// KeyStore returns the configured key store variant.
func (c *Container) KeyStore() (keystore.KeyStore, error) {
	var err error
	c.keyStoreInit.Do(func() {
		c.keyStore, err = c.initKeyStore()
		if err != nil {
			c.setInitError("keyStore", err)
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr := c.initError("keyStore"); storedErr != nil {
		return nil, storedErr
	}
	return c.keyStore, nil
}

// KeyManager returns the caching key manager.
func (c *Container) KeyManager() (cryptoUsecase.KeyManager, error) {
	var err error
	c.keyManagerInit.Do(func() {
		c.keyManager, err = c.initKeyManager()
		if err != nil {
			c.setInitError("keyManager", err)
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr := c.initError("keyManager"); storedErr != nil {
		return nil, storedErr
	}
	return c.keyManager, nil
}

// DecryptedCache returns the decrypted-value cache.
func (c *Container) DecryptedCache() (cache.Cache, error) {
	var err error
	c.decryptedCacheInit.Do(func() {
		c.decryptedCache, err = c.initDecryptedCache()
		if err != nil {
			c.setInitError("decryptedCache", err)
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr := c.initError("decryptedCache"); storedErr != nil {
		return nil, storedErr
	}
	return c.decryptedCache, nil
}

// EncryptionBackend returns the configured field encryption backend.
func (c *Container) EncryptionBackend() (encryption.Backend, error) {
	var err error
	c.backendInit.Do(func() {
		c.backend, err = c.initEncryptionBackend()
		if err != nil {
			c.setInitError("backend", err)
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr := c.initError("backend"); storedErr != nil {
		return nil, storedErr
	}
	return c.backend, nil
}

func (c *Container) initMasterKey() (*cryptoDomain.MasterKey, error) {
	masterKey, err := cryptoService.LoadMasterKey(
		context.Background(),
		c.KMSService(),
		c.config.KMSKeyURI,
		c.config.MasterKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load master key: %w", err)
	}
	return masterKey, nil
}

func (c *Container) initKMSKeeper() (cryptoService.KMSKeeper, error) {
	if c.config.KMSKeyURI == "" {
		return nil, fmt.Errorf("%w: KMS_KEY_URI is required", cryptoDomain.ErrConfiguration)
	}
	keeper, err := c.KMSService().OpenKeeper(context.Background(), c.config.KMSKeyURI)
	if err != nil {
		return nil, fmt.Errorf("failed to open kms keeper: %w", err)
	}
	return keeper, nil
}

func (c *Container) initKeyringBucket() (*blob.Bucket, error) {
	if c.config.KMSKeyringBucketURL == "" {
		return nil, fmt.Errorf("%w: KMS_KEYRING_BUCKET_URL is required", cryptoDomain.ErrConfiguration)
	}
	bucket, err := blob.OpenBucket(context.Background(), c.config.KMSKeyringBucketURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open keyring bucket: %w", err)
	}
	return bucket, nil
}

func (c *Container) initKeyRepository() (keystore.KeyRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for key repository: %w", err)
	}

	switch c.config.DBDriver {
	case "postgres":
		return cryptoRepository.NewPostgreSQLKeyRepository(db), nil
	case "mysql":
		return cryptoRepository.NewMySQLKeyRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initKeyStore resolves only the dependencies the selected variant needs.
func (c *Container) initKeyStore() (keystore.KeyStore, error) {
	masterKey, err := c.MasterKey()
	if err != nil {
		return nil, err
	}

	kind := keystore.Kind(c.config.KeyStore)
	deps := keystore.Dependencies{MasterKey: masterKey}

	switch kind {
	case keystore.KindLocal:
		deps.LocalKeys, err = keystore.ParseKeyTable(c.config.EncryptionKeys)
		if err != nil {
			return nil, err
		}

	case keystore.KindDatabase:
		if deps.Repository, err = c.KeyRepository(); err != nil {
			return nil, err
		}
		if deps.TxManager, err = c.TxManager(); err != nil {
			return nil, err
		}

	case keystore.KindKMS:
		if deps.Keeper, err = c.KMSKeeper(); err != nil {
			return nil, err
		}
		if deps.Bucket, err = c.KeyringBucket(); err != nil {
			return nil, err
		}
		deps.KeyringObject = c.config.KMSKeyringObject

	case keystore.KindVault:
		if deps.VaultClient, err = c.newVaultClient(); err != nil {
			return nil, err
		}
		deps.VaultMount = c.config.VaultMount
		deps.VaultPath = c.config.VaultPath
	}

	store, err := keystore.New(kind, deps)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s key store: %w", kind, err)
	}
	return store, nil
}

func (c *Container) newVaultClient() (*vault.Client, error) {
	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = c.config.VaultAddr

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create vault client: %w", cryptoDomain.ErrConfiguration, err)
	}
	client.SetToken(c.config.VaultToken)
	return client, nil
}

func (c *Container) initKeyManager() (cryptoUsecase.KeyManager, error) {
	store, err := c.KeyStore()
	if err != nil {
		return nil, err
	}

	keyManager := cryptoUsecase.NewKeyManager(store, cryptoUsecase.Options{
		KeyCacheTTL:       c.config.KeyCacheTTL,
		SearchKeyCacheTTL: c.config.SearchKeyCacheTTL,
	}, c.Logger())

	if !c.config.MetricsEnabled {
		return keyManager, nil
	}
	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, err
	}
	return cryptoUsecase.NewKeyManagerWithMetrics(keyManager, businessMetrics), nil
}

func (c *Container) initDecryptedCache() (cache.Cache, error) {
	driver := cache.Driver(c.config.DecryptedCacheDriver)
	if c.config.DecryptedCacheTTL <= 0 {
		driver = cache.DriverNone
	}

	decryptedCache, err := cache.New(driver, cache.Options{
		DefaultTTL: c.config.DecryptedCacheTTL,
		MaxEntries: uint64(max(c.config.DecryptedCacheMaxEntries, 0)),
	}, c.Logger())
	if err != nil {
		return nil, fmt.Errorf("failed to create decrypted cache: %w", err)
	}

	if !c.config.MetricsEnabled {
		return decryptedCache, nil
	}
	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, err
	}
	return cache.NewCacheWithMetrics(decryptedCache, "decrypted", businessMetrics), nil
}

// initEncryptionBackend builds the backend. Construction registers the
// decrypted-cache invalidation hook on the key manager.
func (c *Container) initEncryptionBackend() (encryption.Backend, error) {
	keyManager, err := c.KeyManager()
	if err != nil {
		return nil, err
	}

	decryptedCache, err := c.DecryptedCache()
	if err != nil {
		return nil, err
	}

	backend, err := encryption.New(
		encryption.Kind(c.config.EncryptionBackend),
		keyManager,
		decryptedCache,
		encryption.Options{DecryptedCacheTTL: c.config.DecryptedCacheTTL},
		c.Logger(),
	)
	if err != nil {
		return nil, err
	}

	if !c.config.MetricsEnabled {
		return backend, nil
	}
	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, err
	}
	return encryption.NewBackendWithMetrics(backend, businessMetrics), nil
}
