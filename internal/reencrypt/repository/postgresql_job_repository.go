// Package repository persists re-encryption jobs and reads and writes the
// encrypted columns they walk.
package repository

import (
	"context"
	"database/sql"

	"github.com/dealdesk/fieldcrypt/internal/database"
	apperrors "github.com/dealdesk/fieldcrypt/internal/errors"
	"github.com/dealdesk/fieldcrypt/internal/reencrypt/domain"
)

// PostgreSQLJobRepository handles re-encryption job persistence for PostgreSQL
type PostgreSQLJobRepository struct {
	db *sql.DB
}

// NewPostgreSQLJobRepository creates a new PostgreSQLJobRepository
func NewPostgreSQLJobRepository(db *sql.DB) *PostgreSQLJobRepository {
	return &PostgreSQLJobRepository{
		db: db,
	}
}

// Create inserts a new job
func (r *PostgreSQLJobRepository) Create(ctx context.Context, job *domain.Job) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO reencrypt_jobs (id, target, target_version, status, scanned, reencrypted, skipped,
			  failed, last_error, started_at, finished_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := querier.ExecContext(ctx, query, job.ID, job.Target, job.TargetVersion, job.Status,
		job.Scanned, job.Reencrypted, job.Skipped, job.Failed, job.LastError, job.StartedAt, job.FinishedAt)
	if err != nil {
		return apperrors.Wrap(err, "failed to create re-encryption job")
	}
	return nil
}

// Update stores the job's progress counters and status
func (r *PostgreSQLJobRepository) Update(ctx context.Context, job *domain.Job) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE reencrypt_jobs
			  SET status = $1, scanned = $2, reencrypted = $3, skipped = $4, failed = $5,
			      last_error = $6, finished_at = $7
			  WHERE id = $8`

	_, err := querier.ExecContext(ctx, query, job.Status, job.Scanned, job.Reencrypted, job.Skipped,
		job.Failed, job.LastError, job.FinishedAt, job.ID)
	if err != nil {
		return apperrors.Wrap(err, "failed to update re-encryption job")
	}
	return nil
}

// List returns the most recent jobs, newest first
func (r *PostgreSQLJobRepository) List(ctx context.Context, limit int) ([]*domain.Job, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, target, target_version, status, scanned, reencrypted, skipped, failed,
			  last_error, started_at, finished_at
			  FROM reencrypt_jobs
			  ORDER BY started_at DESC
			  LIMIT $1`

	rows, err := querier.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list re-encryption jobs")
	}
	defer func() {
		_ = rows.Close()
	}()

	var jobs []*domain.Job
	for rows.Next() {
		var job domain.Job
		if err := rows.Scan(&job.ID, &job.Target, &job.TargetVersion, &job.Status, &job.Scanned,
			&job.Reencrypted, &job.Skipped, &job.Failed, &job.LastError, &job.StartedAt,
			&job.FinishedAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, &job)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return jobs, nil
}
