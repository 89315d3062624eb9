// Package integration provides end-to-end tests of the database key store and
// column re-encryption against both PostgreSQL and MySQL.
package integration

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealdesk/fieldcrypt/internal/app"
	"github.com/dealdesk/fieldcrypt/internal/config"
	reencryptDomain "github.com/dealdesk/fieldcrypt/internal/reencrypt/domain"
	"github.com/dealdesk/fieldcrypt/internal/testutil"
)

const contactsTable = "integration_contacts"

// integrationTestContext holds all dependencies and state for integration testing.
type integrationTestContext struct {
	container *app.Container
	db        *sql.DB
	dbDriver  string
}

// generateMasterKey returns a fresh base64 master key.
func generateMasterKey(t *testing.T) string {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err, "failed to generate master key")
	return base64.StdEncoding.EncodeToString(key)
}

// setupIntegrationTest migrates a clean database and builds a container using
// the database key store.
func setupIntegrationTest(t *testing.T, dbDriver string) *integrationTestContext {
	t.Helper()

	var db *sql.DB
	var dsn string
	if dbDriver == "postgres" {
		testutil.SkipIfNoPostgres(t)
		db = testutil.SetupPostgresDB(t)
		dsn = testutil.GetPostgresTestDSN()
	} else {
		testutil.SkipIfNoMySQL(t)
		db = testutil.SetupMySQLDB(t)
		dsn = testutil.GetMySQLTestDSN()
	}

	cfg := &config.Config{
		DBDriver:             dbDriver,
		DBConnectionString:   dsn,
		DBMaxOpenConnections: 10,
		DBMaxIdleConnections: 5,
		DBConnMaxLifetime:    time.Minute,
		LogLevel:             "error",
		LogFormat:            "text",
		MasterKey:            generateMasterKey(t),
		KeyStore:             "database",
		EncryptionBackend:    "aes",
		KeyCacheTTL:          time.Minute,
		SearchKeyCacheTTL:    time.Hour,
		DecryptedCacheTTL:    time.Minute,
		DecryptedCacheDriver: "memory",
		MetricsNamespace:     "fieldcrypt_integration",
		ReencryptBatchSize:   2,
		ReencryptConcurrency: 2,
	}
	require.NoError(t, cfg.Validate())

	container := app.NewContainer(cfg)
	t.Cleanup(func() {
		assert.NoError(t, container.Shutdown(context.Background()))
		testutil.TeardownDB(t, db)
	})

	return &integrationTestContext{
		container: container,
		db:        db,
		dbDriver:  dbDriver,
	}
}

func TestIntegration_KeyLifecycleAndReencryption(t *testing.T) {
	for _, dbDriver := range []string{"postgres", "mysql"} {
		t.Run(dbDriver, func(t *testing.T) {
			ctx := context.Background()
			itc := setupIntegrationTest(t, dbDriver)

			keyManager, err := itc.container.KeyManager()
			require.NoError(t, err)
			backend, err := itc.container.EncryptionBackend()
			require.NoError(t, err)

			first, err := keyManager.EnsureCurrentKey(ctx)
			require.NoError(t, err)
			assert.Equal(t, uint(1), first.Version)
			assert.Equal(t, 1, testutil.CountEncryptionKeys(t, itc.db))

			// Seed the column under version 1.
			testutil.CreateEncryptedColumnTable(t, itc.db, dbDriver, contactsTable)
			emails := []string{"ana@example.com", "bo@example.com", "cy@example.com", "di@example.com", "ed@example.com"}
			for i, email := range emails {
				ciphertext, err := backend.Encrypt(ctx, email)
				require.NoError(t, err)
				hash, err := backend.CreateSearchHash(ctx, email)
				require.NoError(t, err)
				testutil.InsertEncryptedValue(t, itc.db, dbDriver, contactsTable, fmt.Sprintf("%d", i+1), ciphertext, &hash)
			}

			rotated, err := keyManager.RotateKey(ctx)
			require.NoError(t, err)
			assert.Equal(t, uint(2), rotated.Version)
			assert.Equal(t, 2, testutil.CountEncryptionKeys(t, itc.db))

			keys, err := keyManager.ListKeys(ctx)
			require.NoError(t, err)
			require.Len(t, keys, 2)

			source, err := itc.container.ColumnSource(reencryptDomain.ColumnTarget{
				Table:       contactsTable,
				IDColumn:    "id",
				ValueColumn: "email",
				HashColumn:  "email_hash",
			})
			require.NoError(t, err)
			worker, err := itc.container.ReencryptWorker()
			require.NoError(t, err)

			job, err := worker.Run(ctx, source)
			require.NoError(t, err)
			assert.Equal(t, reencryptDomain.JobStatusCompleted, job.Status)
			assert.Equal(t, len(emails), job.Scanned)
			assert.Equal(t, len(emails), job.Reencrypted)
			assert.Equal(t, 0, job.Failed)

			for i, email := range emails {
				ciphertext, hash := testutil.ReadEncryptedValue(t, itc.db, dbDriver, contactsTable, fmt.Sprintf("%d", i+1))

				version, err := backend.KeyVersion(ciphertext)
				require.NoError(t, err)
				assert.Equal(t, uint(2), version)

				plaintext, err := backend.Decrypt(ctx, ciphertext)
				require.NoError(t, err)
				assert.Equal(t, email, plaintext)

				require.NotNil(t, hash)
				assert.True(t, backend.VerifySearchHash(ctx, email, *hash))
			}

			// A second run finds nothing left to do.
			again, err := worker.Run(ctx, source)
			require.NoError(t, err)
			assert.Equal(t, len(emails), again.Scanned)
			assert.Equal(t, 0, again.Reencrypted)
			assert.Equal(t, len(emails), again.Skipped)

			jobs, err := itc.container.JobRepository()
			require.NoError(t, err)
			history, err := jobs.List(ctx, 10)
			require.NoError(t, err)
			require.Len(t, history, 2)
			assert.Equal(t, again.ID, history[0].ID)
			assert.Equal(t, job.ID, history[1].ID)
		})
	}
}

func TestIntegration_KeysSurviveRestart(t *testing.T) {
	for _, dbDriver := range []string{"postgres", "mysql"} {
		t.Run(dbDriver, func(t *testing.T) {
			ctx := context.Background()
			itc := setupIntegrationTest(t, dbDriver)

			backend, err := itc.container.EncryptionBackend()
			require.NoError(t, err)
			keyManager, err := itc.container.KeyManager()
			require.NoError(t, err)
			_, err = keyManager.EnsureCurrentKey(ctx)
			require.NoError(t, err)

			ciphertext, err := backend.Encrypt(ctx, "4111111111111111")
			require.NoError(t, err)

			// A second container over the same database and master key reads the same key ring.
			restarted := app.NewContainer(itc.container.Config())
			defer func() { _ = restarted.Shutdown(ctx) }()

			restartedBackend, err := restarted.EncryptionBackend()
			require.NoError(t, err)
			plaintext, err := restartedBackend.Decrypt(ctx, ciphertext)
			require.NoError(t, err)
			assert.Equal(t, "4111111111111111", plaintext)
		})
	}
}
