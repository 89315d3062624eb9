package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	reencryptDomain "github.com/dealdesk/fieldcrypt/internal/reencrypt/domain"
	reencryptUsecase "github.com/dealdesk/fieldcrypt/internal/reencrypt/usecase"
)

// JobRunner runs a re-encryption job synchronously.
type JobRunner interface {
	Run(ctx context.Context, source reencryptUsecase.RecordSource) (*reencryptDomain.Job, error)
}

// JobLister lists recent re-encryption jobs, newest first.
type JobLister interface {
	List(ctx context.Context, limit int) ([]*reencryptDomain.Job, error)
}

type jobInfo struct {
	ID            string     `json:"id"`
	Target        string     `json:"target"`
	TargetVersion uint       `json:"target_version"`
	Status        string     `json:"status"`
	Scanned       int        `json:"scanned"`
	Reencrypted   int        `json:"reencrypted"`
	Skipped       int        `json:"skipped"`
	Failed        int        `json:"failed"`
	LastError     *string    `json:"last_error,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

func newJobInfo(job *reencryptDomain.Job) jobInfo {
	return jobInfo{
		ID:            job.ID.String(),
		Target:        job.Target,
		TargetVersion: job.TargetVersion,
		Status:        string(job.Status),
		Scanned:       job.Scanned,
		Reencrypted:   job.Reencrypted,
		Skipped:       job.Skipped,
		Failed:        job.Failed,
		LastError:     job.LastError,
		StartedAt:     job.StartedAt,
		FinishedAt:    job.FinishedAt,
	}
}

// RunReencrypt rewrites every value of source sealed under an older key
// version. Per-row failures are reported in the summary, not as an error.
func RunReencrypt(
	ctx context.Context,
	runner JobRunner,
	source reencryptUsecase.RecordSource,
	logger *slog.Logger,
	writer io.Writer,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	logger.Info("re-encrypting column", slog.String("source", source.Name()))

	job, err := runner.Run(ctx, source)
	if job == nil {
		return fmt.Errorf("failed to start re-encryption: %w", err)
	}

	if format == "json" {
		if writeErr := writeJSON(writer, newJobInfo(job)); writeErr != nil {
			return writeErr
		}
	} else {
		_, _ = fmt.Fprintf(writer,
			"Re-encryption of %s %s: scanned=%d reencrypted=%d skipped=%d failed=%d (target version %d)\n",
			job.Target, job.Status, job.Scanned, job.Reencrypted, job.Skipped, job.Failed, job.TargetVersion)
	}

	if err != nil {
		return fmt.Errorf("re-encryption of %s failed: %w", job.Target, err)
	}
	return nil
}

// RunListJobs prints the most recent re-encryption jobs.
func RunListJobs(ctx context.Context, lister JobLister, writer io.Writer, limit int, format string) error {
	if err := validateFormat(format); err != nil {
		return err
	}
	if limit <= 0 {
		return fmt.Errorf("limit must be a positive number, got: %d", limit)
	}

	jobs, err := lister.List(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to list re-encryption jobs: %w", err)
	}

	infos := make([]jobInfo, 0, len(jobs))
	for _, job := range jobs {
		infos = append(infos, newJobInfo(job))
	}
	if format == "json" {
		return writeJSON(writer, infos)
	}

	tw := tabwriter.NewWriter(writer, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tTARGET\tVERSION\tSTATUS\tSCANNED\tREENCRYPTED\tSKIPPED\tFAILED\tSTARTED AT")
	for _, info := range infos {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%d\t%d\t%d\t%d\t%s\n",
			info.ID, info.Target, info.TargetVersion, info.Status,
			info.Scanned, info.Reencrypted, info.Skipped, info.Failed,
			info.StartedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}
