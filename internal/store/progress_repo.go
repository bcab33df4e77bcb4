package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound signals that the requested run does not exist.
var ErrNotFound = errors.New("run not found")

// RunStatus mirrors the job_runs status column.
type RunStatus string

// Run statuses persisted in job_runs.status.
const (
	RunRunning   RunStatus = "running"
	RunSuccess   RunStatus = "success"
	RunError     RunStatus = "error"
	RunCancelled RunStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s RunStatus) Valid() bool {
	switch s {
	case RunRunning, RunSuccess, RunError, RunCancelled:
		return true
	}
	return false
}

// Run models one row of job_runs.
type Run struct {
	// JobID is the registry job id.
	JobID string `json:"job_id"`
	// Provider is the scraped site.
	Provider string `json:"provider"`
	// StartedAt captures when the run was first marked running.
	StartedAt time.Time `json:"started_at"`
	// FinishedAt is nil until the run ends.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	// Status is running/success/error/cancelled.
	Status RunStatus `json:"status"`
	// ErrorMessage optionally stores the final failure reason.
	ErrorMessage *string `json:"error_message,omitempty"`
	// Pages counts listing pages completed.
	Pages int64 `json:"pages"`
	// Records counts accepted records.
	Records int64 `json:"records"`
	// Failed counts diagnostic records.
	Failed int64 `json:"failed"`
	// LastUpdate is the timestamp of the latest progress delta.
	LastUpdate time.Time `json:"last_update"`
}

// RunRepository persists incremental job run progress.
type RunRepository interface {
	// UpsertRunStart inserts (or idempotently updates) the run start.
	UpsertRunStart(ctx context.Context, jobID, provider string, startedAt time.Time) error
	// AddRunProgress applies page and record deltas.
	AddRunProgress(ctx context.Context, jobID string, pages, records, failed int64, at time.Time) error
	// CompleteRun marks the run finished with the provided status and error.
	CompleteRun(ctx context.Context, jobID string, finishedAt time.Time, status RunStatus, errMsg *string) error

	// GetRun loads a single run or returns ErrNotFound.
	GetRun(ctx context.Context, jobID string) (Run, error)
	// ListRuns returns runs filtered by optional status plus limit/offset,
	// most recent first.
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]Run, error)
}
