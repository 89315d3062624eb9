package app

import (
	"context"
	"fmt"

	reencryptDomain "github.com/dealdesk/fieldcrypt/internal/reencrypt/domain"
	reencryptRepository "github.com/dealdesk/fieldcrypt/internal/reencrypt/repository"
	reencryptUsecase "github.com/dealdesk/fieldcrypt/internal/reencrypt/usecase"
)

// JobRepository persists and lists re-encryption jobs.
type JobRepository interface {
	reencryptUsecase.JobRepository
	List(ctx context.Context, limit int) ([]*reencryptDomain.Job, error)
}

// JobRepository returns the re-encryption job repository for the configured driver.
func (c *Container) JobRepository() (JobRepository, error) {
	var err error
	c.jobRepositoryInit.Do(func() {
		c.jobRepository, err = c.initJobRepository()
		if err != nil {
			c.setInitError("jobRepository", err)
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr := c.initError("jobRepository"); storedErr != nil {
		return nil, storedErr
	}
	return c.jobRepository, nil
}

// ReencryptWorker returns the re-encryption worker. When REENCRYPT_ON_ROTATE is
// set, every REENCRYPT_TARGETS column is registered and re-encrypted after each
// key rotation.
func (c *Container) ReencryptWorker() (*reencryptUsecase.Worker, error) {
	var err error
	c.reencryptWorkerInit.Do(func() {
		c.reencryptWorker, err = c.initReencryptWorker()
		if err != nil {
			c.setInitError("reencryptWorker", err)
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr := c.initError("reencryptWorker"); storedErr != nil {
		return nil, storedErr
	}
	return c.reencryptWorker, nil
}

// ColumnSource builds a record source for one encrypted column.
func (c *Container) ColumnSource(target reencryptDomain.ColumnTarget) (*reencryptRepository.SQLColumnSource, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for column source: %w", err)
	}
	return reencryptRepository.NewSQLColumnSource(db, c.dialect(), target)
}

func (c *Container) dialect() reencryptRepository.Dialect {
	if c.config.DBDriver == "mysql" {
		return reencryptRepository.DialectMySQL
	}
	return reencryptRepository.DialectPostgreSQL
}

func (c *Container) initJobRepository() (JobRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for job repository: %w", err)
	}

	switch c.config.DBDriver {
	case "postgres":
		return reencryptRepository.NewPostgreSQLJobRepository(db), nil
	case "mysql":
		return reencryptRepository.NewMySQLJobRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

func (c *Container) initReencryptWorker() (*reencryptUsecase.Worker, error) {
	backend, err := c.EncryptionBackend()
	if err != nil {
		return nil, err
	}

	keyManager, err := c.KeyManager()
	if err != nil {
		return nil, err
	}

	jobs, err := c.JobRepository()
	if err != nil {
		return nil, err
	}

	worker := reencryptUsecase.NewWorker(reencryptUsecase.Config{
		BatchSize:     c.config.ReencryptBatchSize,
		Concurrency:   c.config.ReencryptConcurrency,
		RatePerSecond: c.config.ReencryptRatePerSec,
	}, backend, keyManager, jobs, c.Logger())

	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, err
		}
		worker.WithMetrics(businessMetrics)
	}

	if !c.config.ReencryptOnRotate {
		return worker, nil
	}

	targets, err := reencryptDomain.ParseColumnTargets(c.config.ReencryptTargets)
	if err != nil {
		return nil, err
	}
	for _, target := range targets {
		source, err := c.ColumnSource(target)
		if err != nil {
			return nil, err
		}
		worker.Register(source)
	}
	keyManager.OnRotate(worker.OnRotate)

	return worker, nil
}
