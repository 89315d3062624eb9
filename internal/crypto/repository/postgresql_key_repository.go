// Package repository implements persistence of wrapped encryption keys.
//
// Each repository stores one row per key version in the encryption_keys table.
// Key material is always wrapped before it reaches this package.
//
// # Database Support
//
//   - PostgreSQL: BYTEA for wrapped keys, partial unique index enforcing one primary
//   - MySQL: BLOB for wrapped keys, single primary enforced by the rotation transaction
//
// # Transaction Support
//
// All repositories support transaction-aware operations via database.GetTx(),
// enabling atomic rotation. When called within a transaction context,
// repositories automatically use the transaction connection.
//
// # Usage Example
//
//	repo := repository.NewPostgreSQLKeyRepository(db)
//	txManager := database.NewTxManager(db)
//	err := txManager.WithTx(ctx, func(txCtx context.Context) error {
//	    if err := repo.LockKeys(txCtx); err != nil {
//	        return err
//	    }
//	    if err := repo.ClearPrimary(txCtx); err != nil {
//	        return err
//	    }
//	    return repo.Create(txCtx, wrapped)
//	})
package repository

import (
	"context"
	"database/sql"
	"time"

	cryptoDomain "github.com/dealdesk/fieldcrypt/internal/crypto/domain"
	"github.com/dealdesk/fieldcrypt/internal/database"
	apperrors "github.com/dealdesk/fieldcrypt/internal/errors"
)

// PostgreSQLKeyRepository implements wrapped key persistence for PostgreSQL databases.
//
// Database schema requirements:
//   - version: INTEGER PRIMARY KEY
//   - wrapped_key: BYTEA
//   - created_at: TIMESTAMP WITH TIME ZONE
//   - expires_at: TIMESTAMP WITH TIME ZONE NULL
//   - is_primary: BOOLEAN
type PostgreSQLKeyRepository struct {
	db *sql.DB
}

// Create inserts a new wrapped key. A duplicate version fails with the
// driver's unique violation, which aborts a concurrent rotation.
func (p *PostgreSQLKeyRepository) Create(ctx context.Context, key *cryptoDomain.WrappedKey) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO encryption_keys (version, wrapped_key, created_at, expires_at, is_primary)
			  VALUES ($1, $2, $3, $4, $5)`

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
func (p *PostgreSQLKeyRepository) ClearPrimary(ctx context.Context) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE encryption_keys SET is_primary = FALSE WHERE is_primary = TRUE`

	if _, err := querier.ExecContext(ctx, query); err != nil {
		return apperrors.Wrap(err, "failed to clear primary encryption key")
	}
	return nil
}

// LockKeys takes row locks on every key so concurrent rotations serialize.
// Must be called inside a transaction.
func (p *PostgreSQLKeyRepository) LockKeys(ctx context.Context) error {
	querier := database.GetTx(ctx, p.db)

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
func (p *PostgreSQLKeyRepository) List(ctx context.Context) ([]*cryptoDomain.WrappedKey, error) {
	querier := database.GetTx(ctx, p.db)

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
func (p *PostgreSQLKeyRepository) GetByVersion(
	ctx context.Context,
	version uint,
) (*cryptoDomain.WrappedKey, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT version, wrapped_key, created_at, expires_at, is_primary
			  FROM encryption_keys WHERE version = $1`

	key, err := scanWrappedKey(querier.QueryRowContext(ctx, query, version))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, cryptoDomain.ErrInvalidKeyVersion
		}
		return nil, apperrors.Wrap(err, "failed to get encryption key by version")
	}
	return key, nil
}

// NewPostgreSQLKeyRepository creates a new PostgreSQL key repository instance.
func NewPostgreSQLKeyRepository(db *sql.DB) *PostgreSQLKeyRepository {
	return &PostgreSQLKeyRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWrappedKey(row rowScanner) (*cryptoDomain.WrappedKey, error) {
	var (
		key       cryptoDomain.WrappedKey
		expiresAt sql.NullTime
	)

	if err := row.Scan(&key.Version, &key.WrappedKey, &key.CreatedAt, &expiresAt, &key.IsPrimary); err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		t := expiresAt.Time.UTC()
		key.ExpiresAt = &t
	}
	key.CreatedAt = key.CreatedAt.UTC()
	return &key, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
