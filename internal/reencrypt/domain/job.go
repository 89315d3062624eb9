// Package domain defines the re-encryption job model.
//
// A job walks one encrypted column in id order and rewrites every value whose
// envelope records a key version below the job's target version.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	apperrors "github.com/dealdesk/fieldcrypt/internal/errors"
	customValidation "github.com/dealdesk/fieldcrypt/internal/validation"
)

// JobStatus represents the lifecycle state of a re-encryption job.
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

var (
	// ErrInvalidTarget indicates a column target with a missing or unsafe identifier.
	ErrInvalidTarget = apperrors.Wrap(apperrors.ErrInvalidInput, "invalid re-encryption target")

	// ErrRecordChanged indicates the stored value no longer matches the value
	// the record was read with, so the write was not applied.
	ErrRecordChanged = apperrors.Wrap(apperrors.ErrConflict, "record changed concurrently")
)

// Job tracks the progress of one re-encryption run.
type Job struct {
	ID            uuid.UUID
	Target        string
	TargetVersion uint
	Status        JobStatus
	Scanned       int
	Reencrypted   int
	Skipped       int
	Failed        int
	LastError     *string
	StartedAt     time.Time
	FinishedAt    *time.Time
}

// NewJob creates a running job for target.
func NewJob(target string, targetVersion uint, now time.Time) *Job {
	return &Job{
		ID:            uuid.New(),
		Target:        target,
		TargetVersion: targetVersion,
		Status:        JobStatusRunning,
		StartedAt:     now,
	}
}

// Finish records the terminal state. A non-nil err marks the job failed.
func (j *Job) Finish(err error, now time.Time) {
	j.FinishedAt = &now
	if err != nil {
		msg := err.Error()
		j.LastError = &msg
		j.Status = JobStatusFailed
		return
	}
	j.Status = JobStatusCompleted
}

// Record is one row of an encrypted column.
//
// Previous is the value the row held when it was read. Updates are applied
// only while the row still holds it.
type Record struct {
	ID       string
	Value    string
	Hash     *string
	Previous string
}

// ColumnTarget names an encrypted column and its optional search hash column.
type ColumnTarget struct {
	Table       string
	IDColumn    string
	ValueColumn string
	HashColumn  string
}

// Validate checks every identifier against a conservative SQL identifier rule.
func (c ColumnTarget) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Table, validation.Required, customValidation.SQLIdentifier),
		validation.Field(&c.IDColumn, validation.Required, customValidation.SQLIdentifier),
		validation.Field(&c.ValueColumn, validation.Required, customValidation.SQLIdentifier),
		validation.Field(&c.HashColumn, customValidation.SQLIdentifier),
	)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidTarget, err.Error())
	}
	return nil
}

// String returns table.value_column.
func (c ColumnTarget) String() string {
	return c.Table + "." + c.ValueColumn
}

// ParseColumnTargets parses a comma separated list of
// table:id_column:value_column[:hash_column] entries. Blank input yields no targets.
func ParseColumnTargets(raw string) ([]ColumnTarget, error) {
	var targets []ColumnTarget
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		parts := strings.Split(entry, ":")
		if len(parts) != 3 && len(parts) != 4 {
			return nil, fmt.Errorf("%w: %q must be table:id:value[:hash]", ErrInvalidTarget, entry)
		}

		target := ColumnTarget{Table: parts[0], IDColumn: parts[1], ValueColumn: parts[2]}
		if len(parts) == 4 {
			target.HashColumn = parts[3]
		}
		if err := target.Validate(); err != nil {
			return nil, err
		}
		targets = append(targets, target)
	}
	return targets, nil
}
