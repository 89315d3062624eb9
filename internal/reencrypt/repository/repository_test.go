package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealdesk/fieldcrypt/internal/reencrypt/domain"
)

var jobColumns = []string{
	"id", "target", "target_version", "status", "scanned", "reencrypted", "skipped", "failed",
	"last_error", "started_at", "finished_at",
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db, mock
}

func testJob() *domain.Job {
	job := domain.NewJob("contacts.email", 2, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	job.Scanned = 10
	job.Reencrypted = 8
	job.Skipped = 1
	job.Failed = 1
	return job
}

func TestPostgreSQLJobRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Create", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgreSQLJobRepository(db)
		job := testJob()

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO reencrypt_jobs")).
			WithArgs(job.ID, "contacts.email", 2, domain.JobStatusRunning, 10, 8, 1, 1, nil,
				job.StartedAt, nil).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Create(ctx, job))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Update", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgreSQLJobRepository(db)
		job := testJob()
		job.Finish(nil, job.StartedAt.Add(time.Minute))

		mock.ExpectExec(regexp.QuoteMeta("UPDATE reencrypt_jobs")).
			WithArgs(domain.JobStatusCompleted, 10, 8, 1, 1, nil, sqlmock.AnyArg(), job.ID).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Update(ctx, job))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Update error", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgreSQLJobRepository(db)

		mock.ExpectExec(regexp.QuoteMeta("UPDATE reencrypt_jobs")).WillReturnError(errors.New("boom"))

		err := repo.Update(ctx, testJob())
		assert.ErrorContains(t, err, "failed to update re-encryption job")
	})

	t.Run("List", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgreSQLJobRepository(db)
		id := uuid.New()
		started := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

		mock.ExpectQuery(regexp.QuoteMeta("FROM reencrypt_jobs")).
			WithArgs(5).
			WillReturnRows(sqlmock.NewRows(jobColumns).
				AddRow(id.String(), "contacts.email", 2, "failed", 3, 1, 0, 2, "boom", started, started))

		jobs, err := repo.List(ctx, 5)
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, id, jobs[0].ID)
		assert.Equal(t, domain.JobStatusFailed, jobs[0].Status)
		assert.Equal(t, uint(2), jobs[0].TargetVersion)
		require.NotNil(t, jobs[0].LastError)
		assert.Equal(t, "boom", *jobs[0].LastError)
		require.NotNil(t, jobs[0].FinishedAt)
	})
}

func TestMySQLJobRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Create", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewMySQLJobRepository(db)
		job := testJob()
		idBytes, err := job.ID.MarshalBinary()
		require.NoError(t, err)

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO reencrypt_jobs")).
			WithArgs(idBytes, "contacts.email", 2, domain.JobStatusRunning, 10, 8, 1, 1, nil,
				job.StartedAt, nil).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Create(ctx, job))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Update", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewMySQLJobRepository(db)
		job := testJob()
		idBytes, err := job.ID.MarshalBinary()
		require.NoError(t, err)

		mock.ExpectExec(regexp.QuoteMeta("UPDATE reencrypt_jobs")).
			WithArgs(domain.JobStatusRunning, 10, 8, 1, 1, nil, nil, idBytes).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Update(ctx, job))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("List", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewMySQLJobRepository(db)
		id := uuid.New()
		idBytes, err := id.MarshalBinary()
		require.NoError(t, err)
		started := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

		mock.ExpectQuery(regexp.QuoteMeta("FROM reencrypt_jobs")).
			WithArgs(5).
			WillReturnRows(sqlmock.NewRows(jobColumns).
				AddRow(idBytes, "contacts.email", 2, "completed", 3, 3, 0, 0, nil, started, nil))

		jobs, err := repo.List(ctx, 5)
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, id, jobs[0].ID)
		assert.Nil(t, jobs[0].LastError)
		assert.Nil(t, jobs[0].FinishedAt)
	})
}

func TestSQLColumnSource(t *testing.T) {
	ctx := context.Background()
	target := domain.ColumnTarget{
		Table:       "contacts",
		IDColumn:    "id",
		ValueColumn: "email_encrypted",
		HashColumn:  "email_hash",
	}

	t.Run("postgres queries", func(t *testing.T) {
		db, mock := newMockDB(t)
		source, err := NewSQLColumnSource(db, DialectPostgreSQL, target)
		require.NoError(t, err)
		assert.Equal(t, "contacts.email_encrypted", source.Name())
		assert.True(t, source.HasSearchHash())

		mock.ExpectQuery(regexp.QuoteMeta(
			`SELECT "id", "email_encrypted", "email_hash" FROM "contacts" WHERE "email_encrypted" IS NOT NULL ` +
				`AND "email_encrypted" <> '' ORDER BY "id" ASC LIMIT $1`,
		)).
			WithArgs(2).
			WillReturnRows(sqlmock.NewRows([]string{"id", "email_encrypted", "email_hash"}).
				AddRow(1, "ct1", "h1").
				AddRow(2, "ct2", nil))

		records, err := source.NextBatch(ctx, "", 2)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "1", records[0].ID)
		assert.Equal(t, "ct1", records[0].Value)
		assert.Equal(t, "ct1", records[0].Previous)
		require.NotNil(t, records[0].Hash)
		assert.Equal(t, "h1", *records[0].Hash)
		assert.Nil(t, records[1].Hash)

		mock.ExpectQuery(regexp.QuoteMeta(`AND "id" > $1 ORDER BY "id" ASC LIMIT $2`)).
			WithArgs("2", 2).
			WillReturnRows(sqlmock.NewRows([]string{"id", "email_encrypted", "email_hash"}))

		records, err = source.NextBatch(ctx, "2", 2)
		require.NoError(t, err)
		assert.Empty(t, records)

		hash := "h2"
		mock.ExpectExec(regexp.QuoteMeta(
			`UPDATE "contacts" SET "email_encrypted" = $1, "email_hash" = $2 WHERE "id" = $3 AND "email_encrypted" = $4`,
		)).
			WithArgs("ct2-new", "h2", "2", "ct2").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, source.Update(ctx, &domain.Record{ID: "2", Value: "ct2-new", Hash: &hash, Previous: "ct2"}))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("mysql without hash column", func(t *testing.T) {
		db, mock := newMockDB(t)
		noHash := target
		noHash.HashColumn = ""
		source, err := NewSQLColumnSource(db, DialectMySQL, noHash)
		require.NoError(t, err)
		assert.False(t, source.HasSearchHash())

		mock.ExpectQuery(regexp.QuoteMeta(
			"SELECT `id`, `email_encrypted` FROM `contacts` WHERE `email_encrypted` IS NOT NULL " +
				"AND `email_encrypted` <> '' AND `id` > ? ORDER BY `id` ASC LIMIT ?",
		)).
			WithArgs("10", 50).
			WillReturnRows(sqlmock.NewRows([]string{"id", "email_encrypted"}).AddRow("11", "ct"))

		records, err := source.NextBatch(ctx, "10", 50)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Nil(t, records[0].Hash)

		mock.ExpectExec(regexp.QuoteMeta(
			"UPDATE `contacts` SET `email_encrypted` = ? WHERE `id` = ? AND `email_encrypted` = ?",
		)).
			WithArgs("ct-new", "11", "ct").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, source.Update(ctx, &domain.Record{ID: "11", Value: "ct-new", Previous: "ct"}))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("update skipped when row changed", func(t *testing.T) {
		db, mock := newMockDB(t)
		source, err := NewSQLColumnSource(db, DialectPostgreSQL, target)
		require.NoError(t, err)

		hash := "h-new"
		mock.ExpectExec(regexp.QuoteMeta(`WHERE "id" = $3 AND "email_encrypted" = $4`)).
			WithArgs("ct-reencrypted", "h-new", "7", "ct-stale").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err = source.Update(ctx, &domain.Record{ID: "7", Value: "ct-reencrypted", Hash: &hash, Previous: "ct-stale"})
		assert.ErrorIs(t, err, domain.ErrRecordChanged)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("update error", func(t *testing.T) {
		db, mock := newMockDB(t)
		source, err := NewSQLColumnSource(db, DialectPostgreSQL, target)
		require.NoError(t, err)

		mock.ExpectExec("UPDATE").WillReturnError(errors.New("connection reset"))

		err = source.Update(ctx, &domain.Record{ID: "7", Value: "ct", Previous: "old"})
		assert.ErrorContains(t, err, "failed to update encrypted column")
		assert.NotErrorIs(t, err, domain.ErrRecordChanged)
	})

	t.Run("read error", func(t *testing.T) {
		db, mock := newMockDB(t)
		source, err := NewSQLColumnSource(db, DialectPostgreSQL, target)
		require.NoError(t, err)

		mock.ExpectQuery("SELECT").WillReturnError(errors.New("relation does not exist"))

		_, err = source.NextBatch(ctx, "", 10)
		assert.ErrorContains(t, err, "failed to read encrypted column")
	})

	t.Run("invalid target", func(t *testing.T) {
		bad := target
		bad.Table = "contacts;--"
		_, err := NewSQLColumnSource(nil, DialectPostgreSQL, bad)
		assert.ErrorIs(t, err, domain.ErrInvalidTarget)

		_, err = NewSQLColumnSource(nil, "oracle", target)
		assert.ErrorIs(t, err, domain.ErrInvalidTarget)
	})
}
