package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dealdesk/fieldcrypt/internal/database"
	apperrors "github.com/dealdesk/fieldcrypt/internal/errors"
	"github.com/dealdesk/fieldcrypt/internal/reencrypt/domain"
)

// Dialect selects identifier quoting and placeholder style.
type Dialect string

const (
	DialectPostgreSQL Dialect = "postgres"
	DialectMySQL      Dialect = "mysql"
)

// SQLColumnSource pages through one encrypted column in id order.
//
// Rows whose value column is NULL or empty are never returned. Identifiers
// are validated by domain.ColumnTarget.Validate before being quoted into
// queries; values always travel as bind parameters.
type SQLColumnSource struct {
	db      *sql.DB
	dialect Dialect
	target  domain.ColumnTarget

	firstBatchQuery string
	nextBatchQuery  string
	updateQuery     string
}

// NewSQLColumnSource validates target and prepares the queries for dialect.
func NewSQLColumnSource(db *sql.DB, dialect Dialect, target domain.ColumnTarget) (*SQLColumnSource, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}

	var quote func(string) string
	switch dialect {
	case DialectPostgreSQL:
		quote = func(s string) string { return `"` + s + `"` }
	case DialectMySQL:
		quote = func(s string) string { return "`" + s + "`" }
	default:
		return nil, fmt.Errorf("%w: unknown dialect %q", domain.ErrInvalidTarget, dialect)
	}

	s := &SQLColumnSource{db: db, dialect: dialect, target: target}

	table, id, value := quote(target.Table), quote(target.IDColumn), quote(target.ValueColumn)
	columns := id + ", " + value
	if target.HashColumn != "" {
		columns += ", " + quote(target.HashColumn)
	}

	base := fmt.Sprintf("SELECT %s FROM %s WHERE %s IS NOT NULL AND %s <> ''", columns, table, value, value)
	s.firstBatchQuery = fmt.Sprintf("%s ORDER BY %s ASC LIMIT %s", base, id, s.placeholder(1))
	s.nextBatchQuery = fmt.Sprintf("%s AND %s > %s ORDER BY %s ASC LIMIT %s",
		base, id, s.placeholder(1), id, s.placeholder(2))

	set := []string{fmt.Sprintf("%s = %s", value, s.placeholder(1))}
	next := 2
	if target.HashColumn != "" {
		set = append(set, fmt.Sprintf("%s = %s", quote(target.HashColumn), s.placeholder(next)))
		next++
	}
	s.updateQuery = fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s AND %s = %s",
		table, strings.Join(set, ", "), id, s.placeholder(next), value, s.placeholder(next+1))

	return s, nil
}

func (s *SQLColumnSource) placeholder(n int) string {
	if s.dialect == DialectPostgreSQL {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Name returns table.value_column.
func (s *SQLColumnSource) Name() string {
	return s.target.String()
}

// HasSearchHash reports whether a hash column is maintained alongside the value.
func (s *SQLColumnSource) HasSearchHash() bool {
	return s.target.HashColumn != ""
}

// NextBatch returns up to limit records with an id greater than afterID.
// An empty afterID starts from the beginning.
func (s *SQLColumnSource) NextBatch(ctx context.Context, afterID string, limit int) ([]*domain.Record, error) {
	querier := database.GetTx(ctx, s.db)

	var (
		rows *sql.Rows
		err  error
	)
	if afterID == "" {
		rows, err = querier.QueryContext(ctx, s.firstBatchQuery, limit)
	} else {
		rows, err = querier.QueryContext(ctx, s.nextBatchQuery, afterID, limit)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to read encrypted column")
	}
	defer func() {
		_ = rows.Close()
	}()

	var records []*domain.Record
	for rows.Next() {
		var (
			record domain.Record
			hash   sql.NullString
		)
		dest := []any{&record.ID, &record.Value}
		if s.HasSearchHash() {
			dest = append(dest, &hash)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		if hash.Valid {
			record.Hash = &hash.String
		}
		record.Previous = record.Value
		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

// Update writes the record's value, and its hash when a hash column is
// configured, provided the row still holds record.Previous. Otherwise it
// returns domain.ErrRecordChanged and leaves the row untouched.
func (s *SQLColumnSource) Update(ctx context.Context, record *domain.Record) error {
	querier := database.GetTx(ctx, s.db)

	args := []any{record.Value}
	if s.HasSearchHash() {
		args = append(args, record.Hash)
	}
	args = append(args, record.ID, record.Previous)

	result, err := querier.ExecContext(ctx, s.updateQuery, args...)
	if err != nil {
		return apperrors.Wrap(err, "failed to update encrypted column")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to update encrypted column")
	}
	if rows == 0 {
		return domain.ErrRecordChanged
	}
	return nil
}
