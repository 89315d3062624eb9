package keystore

import (
	"context"
	"slices"
	"time"

	cryptoDomain "github.com/dealdesk/fieldcrypt/internal/crypto/domain"
	cryptoService "github.com/dealdesk/fieldcrypt/internal/crypto/service"
	"github.com/dealdesk/fieldcrypt/internal/database"
)

// KeyRepository persists wrapped keys in the encryption_keys table.
type KeyRepository interface {
	Create(ctx context.Context, key *cryptoDomain.WrappedKey) error
	ClearPrimary(ctx context.Context) error
	LockKeys(ctx context.Context) error
	List(ctx context.Context) ([]*cryptoDomain.WrappedKey, error)
	GetByVersion(ctx context.Context, version uint) (*cryptoDomain.WrappedKey, error)
}

// DatabaseKeyStore keeps keys wrapped with the master key in a SQL table.
//
// Rotation runs in one transaction: existing rows are locked, every primary
// flag is cleared and the new row is inserted. Concurrent rotations from
// other processes wait on the row locks and then allocate the next version.
type DatabaseKeyStore struct {
	repo      KeyRepository
	txManager database.TxManager
	wrapper   cryptoService.KeyWrapper
	masterKey *cryptoDomain.MasterKey
	now       func() time.Time
}

// NewDatabaseKeyStore creates a database-backed store.
func NewDatabaseKeyStore(
	repo KeyRepository,
	txManager database.TxManager,
	wrapper cryptoService.KeyWrapper,
	masterKey *cryptoDomain.MasterKey,
) *DatabaseKeyStore {
	return &DatabaseKeyStore{
		repo:      repo,
		txManager: txManager,
		wrapper:   wrapper,
		masterKey: masterKey,
		now:       time.Now,
	}
}

// GetCurrentKey returns the primary active key or the highest active version.
func (s *DatabaseKeyStore) GetCurrentKey(ctx context.Context) (*cryptoDomain.EncryptionKey, error) {
	wrapped, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	current, err := selectCurrentWrapped(wrapped, s.now())
	if err != nil {
		return nil, err
	}
	return unwrapKey(ctx, s.wrapper, current)
}

// GetKeyByVersion loads and unwraps one version.
func (s *DatabaseKeyStore) GetKeyByVersion(ctx context.Context, version uint) (*cryptoDomain.EncryptionKey, error) {
	wrapped, err := s.repo.GetByVersion(ctx, version)
	if err != nil {
		return nil, err
	}
	return unwrapKey(ctx, s.wrapper, wrapped)
}

// GetMasterKey returns a copy of the master key.
func (s *DatabaseKeyStore) GetMasterKey(_ context.Context) ([]byte, error) {
	return slices.Clone(s.masterKey.Key), nil
}

// GenerateNewKey inserts version max+1 as the only primary key.
func (s *DatabaseKeyStore) GenerateNewKey(ctx context.Context) (*cryptoDomain.EncryptionKey, error) {
	var created *cryptoDomain.EncryptionKey

	err := s.txManager.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.LockKeys(txCtx); err != nil {
			return err
		}

		existing, err := s.repo.List(txCtx)
		if err != nil {
			return err
		}

		wrapped, key, err := newWrappedKey(txCtx, s.wrapper, nextWrappedVersion(existing), s.now())
		if err != nil {
			return err
		}

		if err := s.repo.ClearPrimary(txCtx); err != nil {
			cryptoDomain.Zero(key.Key)
			return err
		}
		if err := s.repo.Create(txCtx, wrapped); err != nil {
			cryptoDomain.Zero(key.Key)
			return err
		}

		created = key
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ListKeys loads and unwraps every version.
func (s *DatabaseKeyStore) ListKeys(ctx context.Context) ([]*cryptoDomain.EncryptionKey, error) {
	wrapped, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	return unwrapAll(ctx, s.wrapper, wrapped)
}
