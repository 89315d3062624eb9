// Package usecase implements re-encryption of stored field values after a key rotation.
package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	cryptoDomain "github.com/dealdesk/fieldcrypt/internal/crypto/domain"
	cryptoUsecase "github.com/dealdesk/fieldcrypt/internal/crypto/usecase"
	"github.com/dealdesk/fieldcrypt/internal/encryption"
	"github.com/dealdesk/fieldcrypt/internal/metrics"
	"github.com/dealdesk/fieldcrypt/internal/reencrypt/domain"
)

// Config holds re-encryption worker configuration
type Config struct {
	BatchSize     int
	Concurrency   int
	RatePerSecond float64
}

// RecordSource reads and writes one encrypted column
type RecordSource interface {
	Name() string
	HasSearchHash() bool
	NextBatch(ctx context.Context, afterID string, limit int) ([]*domain.Record, error)
	Update(ctx context.Context, record *domain.Record) error
}

// JobRepository persists job progress
type JobRepository interface {
	Create(ctx context.Context, job *domain.Job) error
	Update(ctx context.Context, job *domain.Job) error
}

// Worker rewrites values sealed with an older key version under the current key.
//
// Per-record failures are counted on the job and never abort it. A job fails
// only when the source cannot be read or the context ends.
type Worker struct {
	config     Config
	backend    encryption.Backend
	keyManager cryptoUsecase.KeyManager
	jobs       JobRepository
	logger     *slog.Logger
	metrics    metrics.BusinessMetrics
	limiter    *rate.Limiter
	now        func() time.Time

	mu      sync.Mutex
	sources []RecordSource

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewWorker creates a Worker. jobs may be nil, in which case progress is only logged.
func NewWorker(
	config Config,
	backend encryption.Backend,
	keyManager cryptoUsecase.KeyManager,
	jobs JobRepository,
	logger *slog.Logger,
) *Worker {
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}

	limit := rate.Inf
	if config.RatePerSecond > 0 {
		limit = rate.Limit(config.RatePerSecond)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		config:     config,
		backend:    backend,
		keyManager: keyManager,
		jobs:       jobs,
		logger:     logger,
		metrics:    metrics.NewNoOpBusinessMetrics(),
		limiter:    rate.NewLimiter(limit, config.Concurrency),
		now:        time.Now,
		baseCtx:    ctx,
		cancel:     cancel,
	}
}

// WithMetrics records job outcomes and per-row counts on m.
func (w *Worker) WithMetrics(m metrics.BusinessMetrics) *Worker {
	w.metrics = m
	return w
}

// Register adds a source that OnRotate re-encrypts.
func (w *Worker) Register(source RecordSource) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sources = append(w.sources, source)
}

// OnRotate enqueues every registered source. Its signature matches
// cryptoUsecase.RotationHook.
func (w *Worker) OnRotate(_ context.Context, key *cryptoDomain.EncryptionKey) error {
	w.mu.Lock()
	sources := append([]RecordSource(nil), w.sources...)
	w.mu.Unlock()

	w.logger.Info("scheduling re-encryption",
		slog.Uint64("version", uint64(key.Version)),
		slog.Int("sources", len(sources)),
	)
	w.Enqueue(sources...)
	return nil
}

// Enqueue runs a job per source in the background. Jobs are bound to the
// worker's lifetime, not to any request context.
func (w *Worker) Enqueue(sources ...RecordSource) {
	for _, source := range sources {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			if _, err := w.Run(w.baseCtx, source); err != nil {
				w.logger.Error("re-encryption job failed",
					slog.String("source", source.Name()),
					slog.Any("error", err),
				)
			}
		}()
	}
}

// Wait blocks until every enqueued job has finished.
func (w *Worker) Wait() {
	w.wg.Wait()
}

// Close cancels background jobs and waits for them to stop.
func (w *Worker) Close() {
	w.cancel()
	w.wg.Wait()
}

// Run re-encrypts source synchronously and returns the finished job.
func (w *Worker) Run(ctx context.Context, source RecordSource) (*domain.Job, error) {
	current, err := w.keyManager.GetCurrentKey(ctx)
	if err != nil {
		return nil, err
	}

	job := domain.NewJob(source.Name(), current.Version, w.now())
	if w.jobs != nil {
		if err := w.jobs.Create(ctx, job); err != nil {
			return nil, err
		}
	}

	w.logger.Info("starting re-encryption job",
		slog.String("job_id", job.ID.String()),
		slog.String("source", job.Target),
		slog.Uint64("target_version", uint64(job.TargetVersion)),
	)

	runErr := w.process(ctx, source, job)
	job.Finish(runErr, w.now())
	w.saveProgress(job)
	w.recordMetrics(ctx, job)

	w.logger.Info("re-encryption job finished",
		slog.String("job_id", job.ID.String()),
		slog.String("status", string(job.Status)),
		slog.Int("scanned", job.Scanned),
		slog.Int("reencrypted", job.Reencrypted),
		slog.Int("skipped", job.Skipped),
		slog.Int("failed", job.Failed),
	)
	return job, runErr
}

func (w *Worker) process(ctx context.Context, source RecordSource, job *domain.Job) error {
	var reencrypted, skipped, failed atomic.Int64
	afterID := ""

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		records, err := source.NextBatch(ctx, afterID, w.config.BatchSize)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(w.config.Concurrency)
		for _, record := range records {
			g.Go(func() error {
				if err := w.limiter.Wait(gctx); err != nil {
					return err
				}
				switch outcome := w.processRecord(gctx, source, record, job.TargetVersion); outcome {
				case outcomeReencrypted:
					reencrypted.Add(1)
				case outcomeSkipped:
					skipped.Add(1)
				default:
					failed.Add(1)
				}
				return nil
			})
		}
		batchErr := g.Wait()

		job.Scanned += len(records)
		job.Reencrypted = int(reencrypted.Load())
		job.Skipped = int(skipped.Load())
		job.Failed = int(failed.Load())
		w.saveProgress(job)

		if batchErr != nil {
			return batchErr
		}
		afterID = records[len(records)-1].ID
	}
}

type outcome int

const (
	outcomeFailed outcome = iota
	outcomeReencrypted
	outcomeSkipped
)

func (w *Worker) processRecord(
	ctx context.Context,
	source RecordSource,
	record *domain.Record,
	targetVersion uint,
) outcome {
	version, err := w.backend.KeyVersion(record.Value)
	if err != nil {
		w.recordFailure(source, record, "unreadable envelope", err)
		return outcomeFailed
	}
	if version >= targetVersion {
		return outcomeSkipped
	}

	plaintext, err := w.backend.Decrypt(ctx, record.Value)
	if err != nil {
		w.recordFailure(source, record, "decrypt failed", err)
		return outcomeFailed
	}

	updated := &domain.Record{ID: record.ID, Hash: record.Hash, Previous: record.Value}
	updated.Value, err = w.backend.Encrypt(ctx, plaintext)
	if err != nil {
		w.recordFailure(source, record, "encrypt failed", err)
		return outcomeFailed
	}

	if source.HasSearchHash() {
		hash, err := w.backend.CreateSearchHash(ctx, plaintext)
		if err != nil {
			w.recordFailure(source, record, "search hash failed", err)
			return outcomeFailed
		}
		updated.Hash = &hash
	}

	if err := source.Update(ctx, updated); err != nil {
		if errors.Is(err, domain.ErrRecordChanged) {
			w.logger.Debug("re-encryption skipped record changed concurrently",
				slog.String("source", source.Name()),
				slog.String("record_id", record.ID),
			)
			return outcomeSkipped
		}
		w.recordFailure(source, record, "update failed", err)
		return outcomeFailed
	}
	return outcomeReencrypted
}

func (w *Worker) recordFailure(source RecordSource, record *domain.Record, msg string, err error) {
	w.logger.Warn("re-encryption skipped record: "+msg,
		slog.String("source", source.Name()),
		slog.String("record_id", record.ID),
		slog.Any("error", err),
	)
}

// saveProgress persists job counters. It runs even after the job context is
// cancelled so the final state is recorded.
func (w *Worker) saveProgress(job *domain.Job) {
	if w.jobs == nil {
		return
	}
	if err := w.jobs.Update(context.Background(), job); err != nil {
		w.logger.Warn("failed to save re-encryption progress",
			slog.String("job_id", job.ID.String()),
			slog.Any("error", err),
		)
	}
}

func (w *Worker) recordMetrics(ctx context.Context, job *domain.Job) {
	status := "success"
	if job.Status == domain.JobStatusFailed {
		status = "error"
	}
	w.metrics.RecordOperation(ctx, "reencrypt", "run", status)
	if job.FinishedAt != nil {
		w.metrics.RecordDuration(ctx, "reencrypt", "run", job.FinishedAt.Sub(job.StartedAt), status)
	}
	w.metrics.RecordReencryptedRecords(ctx, job.Target, "reencrypted", job.Reencrypted)
	w.metrics.RecordReencryptedRecords(ctx, job.Target, "skipped", job.Skipped)
	w.metrics.RecordReencryptedRecords(ctx, job.Target, "failed", job.Failed)
}
