package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJob_Lifecycle(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("completed", func(t *testing.T) {
		job := NewJob("contacts.email", 3, now)
		assert.NotEqual(t, uuid.Nil, job.ID)
		assert.Equal(t, JobStatusRunning, job.Status)
		assert.Equal(t, uint(3), job.TargetVersion)

		job.Finish(nil, now.Add(time.Minute))
		assert.Equal(t, JobStatusCompleted, job.Status)
		require.NotNil(t, job.FinishedAt)
		assert.Equal(t, now.Add(time.Minute), *job.FinishedAt)
		assert.Nil(t, job.LastError)
	})

	t.Run("failed", func(t *testing.T) {
		job := NewJob("contacts.email", 3, now)
		job.Finish(errors.New("connection reset"), now)
		assert.Equal(t, JobStatusFailed, job.Status)
		require.NotNil(t, job.LastError)
		assert.Equal(t, "connection reset", *job.LastError)
	})

	t.Run("ids are unique", func(t *testing.T) {
		assert.NotEqual(t, NewJob("a.b", 1, now).ID, NewJob("a.b", 1, now).ID)
	})
}

func TestColumnTarget_Validate(t *testing.T) {
	valid := ColumnTarget{Table: "contacts", IDColumn: "id", ValueColumn: "email_encrypted", HashColumn: "email_hash"}
	require.NoError(t, valid.Validate())
	assert.Equal(t, "contacts.email_encrypted", valid.String())

	withoutHash := valid
	withoutHash.HashColumn = ""
	assert.NoError(t, withoutHash.Validate())

	tests := []struct {
		name   string
		mutate func(*ColumnTarget)
	}{
		{"empty table", func(c *ColumnTarget) { c.Table = "" }},
		{"injection in table", func(c *ColumnTarget) { c.Table = "contacts; DROP TABLE users" }},
		{"quoted id", func(c *ColumnTarget) { c.IDColumn = `"id"` }},
		{"leading digit", func(c *ColumnTarget) { c.ValueColumn = "1email" }},
		{"dotted hash", func(c *ColumnTarget) { c.HashColumn = "x.y" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := valid
			tt.mutate(&target)
			assert.ErrorIs(t, target.Validate(), ErrInvalidTarget)
		})
	}
}

func TestParseColumnTargets(t *testing.T) {
	targets, err := ParseColumnTargets(" contacts:id:email_encrypted:email_hash , deals:deal_id:amount_encrypted ,")
	require.NoError(t, err)
	assert.Equal(t, []ColumnTarget{
		{Table: "contacts", IDColumn: "id", ValueColumn: "email_encrypted", HashColumn: "email_hash"},
		{Table: "deals", IDColumn: "deal_id", ValueColumn: "amount_encrypted"},
	}, targets)

	targets, err = ParseColumnTargets("")
	require.NoError(t, err)
	assert.Empty(t, targets)

	_, err = ParseColumnTargets("contacts:email")
	assert.ErrorIs(t, err, ErrInvalidTarget)

	_, err = ParseColumnTargets("contacts:id:email;drop")
	assert.ErrorIs(t, err, ErrInvalidTarget)
}
