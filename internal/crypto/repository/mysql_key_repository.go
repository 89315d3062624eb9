package repository

import (
	"context"
	"database/sql"

	cryptoDomain "github.com/dealdesk/fieldcrypt/internal/crypto/domain"
	"github.com/dealdesk/fieldcrypt/internal/database"
	apperrors "github.com/dealdesk/fieldcrypt/internal/errors"
)

// MySQLKeyRepository implements wrapped key persistence for MySQL databases.
//
// The connection must use parseTime=true so DATETIME columns scan into time.Time.
type MySQLKeyRepository struct {
	db *sql.DB
}

// Create inserts a new wrapped key.
func (m *MySQLKeyRepository) Create(ctx context.Context, key *cryptoDomain.WrappedKey) error {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT INTO encryption_keys (version, wrapped_key, created_at, expires_at, is_primary)
			  VALUES (?, ?, ?, ?, ?)`

	_, err := querier.ExecContext(
		ctx,
		query,
		key.Version,
		key.WrappedKey,
		key.CreatedAt,
		nullTime(key.ExpiresAt),
		key.IsPrimary,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create encryption key")
	}
	return nil
}

// ClearPrimary marks every key as non-primary.
func (m *MySQLKeyRepository) ClearPrimary(ctx context.Context) error {
	querier := database.GetTx(ctx, m.db)

	query := `UPDATE encryption_keys SET is_primary = FALSE WHERE is_primary = TRUE`

	if _, err := querier.ExecContext(ctx, query); err != nil {
		return apperrors.Wrap(err, "failed to clear primary encryption key")
	}
	return nil
}

// LockKeys takes row locks on every key so concurrent rotations serialize.
// Must be called inside a transaction.
func (m *MySQLKeyRepository) LockKeys(ctx context.Context) error {
	querier := database.GetTx(ctx, m.db)

	rows, err := querier.QueryContext(ctx, `SELECT version FROM encryption_keys FOR UPDATE`)
	if err != nil {
		return apperrors.Wrap(err, "failed to lock encryption keys")
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var version uint
		if err := rows.Scan(&version); err != nil {
			return apperrors.Wrap(err, "failed to lock encryption keys")
		}
	}
	return rows.Err()
}

// List retrieves all keys ordered by version ascending.
func (m *MySQLKeyRepository) List(ctx context.Context) ([]*cryptoDomain.WrappedKey, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT version, wrapped_key, created_at, expires_at, is_primary
			  FROM encryption_keys ORDER BY version ASC`

	rows, err := querier.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list encryption keys")
	}
	defer func() {
		_ = rows.Close()
	}()

	var keys []*cryptoDomain.WrappedKey
	for rows.Next() {
		key, err := scanWrappedKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return keys, nil
}

// GetByVersion retrieves one key. Returns ErrInvalidKeyVersion if absent.
func (m *MySQLKeyRepository) GetByVersion(ctx context.Context, version uint) (*cryptoDomain.WrappedKey, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT version, wrapped_key, created_at, expires_at, is_primary
			  FROM encryption_keys WHERE version = ?`

	key, err := scanWrappedKey(querier.QueryRowContext(ctx, query, version))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, cryptoDomain.ErrInvalidKeyVersion
		}
		return nil, apperrors.Wrap(err, "failed to get encryption key by version")
	}
	return key, nil
}

// NewMySQLKeyRepository creates a new MySQL key repository instance.
func NewMySQLKeyRepository(db *sql.DB) *MySQLKeyRepository {
	return &MySQLKeyRepository{db: db}
}
