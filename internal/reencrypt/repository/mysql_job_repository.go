package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/dealdesk/fieldcrypt/internal/database"
	apperrors "github.com/dealdesk/fieldcrypt/internal/errors"
	"github.com/dealdesk/fieldcrypt/internal/reencrypt/domain"
)

// MySQLJobRepository handles re-encryption job persistence for MySQL
type MySQLJobRepository struct {
	db *sql.DB
}

// NewMySQLJobRepository creates a new MySQLJobRepository
func NewMySQLJobRepository(db *sql.DB) *MySQLJobRepository {
	return &MySQLJobRepository{
		db: db,
	}
}

// Create inserts a new job
func (r *MySQLJobRepository) Create(ctx context.Context, job *domain.Job) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO reencrypt_jobs (id, target, target_version, status, scanned, reencrypted, skipped,
			  failed, last_error, started_at, finished_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	// Convert UUID to bytes for MySQL BINARY(16)
	idBytes, err := job.ID.MarshalBinary()
	if err != nil {
		return err
	}

	_, err = querier.ExecContext(ctx, query, idBytes, job.Target, job.TargetVersion, job.Status,
		job.Scanned, job.Reencrypted, job.Skipped, job.Failed, job.LastError, job.StartedAt, job.FinishedAt)
	if err != nil {
		return apperrors.Wrap(err, "failed to create re-encryption job")
	}
	return nil
}

// Update stores the job's progress counters and status
func (r *MySQLJobRepository) Update(ctx context.Context, job *domain.Job) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE reencrypt_jobs
			  SET status = ?, scanned = ?, reencrypted = ?, skipped = ?, failed = ?,
			      last_error = ?, finished_at = ?
			  WHERE id = ?`

	idBytes, err := job.ID.MarshalBinary()
	if err != nil {
		return err
	}

	_, err = querier.ExecContext(ctx, query, job.Status, job.Scanned, job.Reencrypted, job.Skipped,
		job.Failed, job.LastError, job.FinishedAt, idBytes)
	if err != nil {
		return apperrors.Wrap(err, "failed to update re-encryption job")
	}
	return nil
}

// List returns the most recent jobs, newest first
func (r *MySQLJobRepository) List(ctx context.Context, limit int) ([]*domain.Job, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, target, target_version, status, scanned, reencrypted, skipped, failed,
			  last_error, started_at, finished_at
			  FROM reencrypt_jobs
			  ORDER BY started_at DESC
			  LIMIT ?`

	rows, err := querier.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list re-encryption jobs")
	}
	defer func() {
		_ = rows.Close()
	}()

	var jobs []*domain.Job
	for rows.Next() {
		var (
			job     domain.Job
			idBytes []byte
		)
		if err := rows.Scan(&idBytes, &job.Target, &job.TargetVersion, &job.Status, &job.Scanned,
			&job.Reencrypted, &job.Skipped, &job.Failed, &job.LastError, &job.StartedAt,
			&job.FinishedAt); err != nil {
			return nil, err
		}

		id, err := uuid.FromBytes(idBytes)
		if err != nil {
			return nil, err
		}
		job.ID = id
		jobs = append(jobs, &job)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return jobs, nil
}
