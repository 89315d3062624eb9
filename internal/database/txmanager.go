package database

import (
	"context"
	"database/sql"
	"errors"
)

type activeTxKey struct{}

// Querier is the part of *sql.DB and *sql.Tx that repositories use.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TxManager runs a function inside one transaction.
//
// Key stores run rotation inside WithTx so that reading the highest version
// and inserting the next one happen atomically.
type TxManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type txManager struct {
	db *sql.DB
}

// NewTxManager returns a TxManager over db.
func NewTxManager(db *sql.DB) TxManager {
	return &txManager{db: db}
}

// WithTx commits when fn returns nil and rolls back otherwise. Repositories
// reach the transaction through GetTx(ctx). A call made while a transaction is
// already in ctx joins it; the outermost call decides commit or rollback.
func (m *txManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if activeTx(ctx) != nil {
		return fn(ctx)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(context.WithValue(ctx, activeTxKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

func activeTx(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(activeTxKey{}).(*sql.Tx)
	return tx
}

// GetTx returns the transaction started by WithTx, or db outside of one.
func GetTx(ctx context.Context, db *sql.DB) Querier {
	if tx := activeTx(ctx); tx != nil {
		return tx
	}
	return db
}
