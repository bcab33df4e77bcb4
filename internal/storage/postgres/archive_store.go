package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/difranardo/vacancies-scrapper/internal/scrape"
)

// JobArchive writes finished jobs, results included, into Postgres:
//
//	CREATE TABLE job_archive (
//		job_id       TEXT PRIMARY KEY,
//		provider     TEXT NOT NULL,
//		params       JSONB NOT NULL,
//		status       TEXT NOT NULL,
//		submitted_at TIMESTAMPTZ NOT NULL,
//		started_at   TIMESTAMPTZ,
//		finished_at  TIMESTAMPTZ,
//		error_text   TEXT,
//		accepted     INTEGER NOT NULL,
//		failed       INTEGER NOT NULL,
//		results      JSONB NOT NULL
//	);
type JobArchive struct {
	pool  querier
	table string
}

var _ scrape.Archive = (*JobArchive)(nil)

// NewJobArchive wraps an existing pool. An empty table defaults to job_archive.
func NewJobArchive(pool querier, table string) (*JobArchive, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := checkTable(table, "job_archive")
	if err != nil {
		return nil, err
	}
	return &JobArchive{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (a *JobArchive) Close() {
	if a == nil || a.pool == nil {
		return
	}
	a.pool.Close()
}

// EnsureSchema creates the table when it does not exist.
func (a *JobArchive) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	job_id TEXT PRIMARY KEY,
	provider TEXT NOT NULL,
	params JSONB NOT NULL,
	status TEXT NOT NULL,
	submitted_at TIMESTAMPTZ NOT NULL,
	started_at TIMESTAMPTZ,
	finished_at TIMESTAMPTZ,
	error_text TEXT,
	accepted INTEGER NOT NULL,
	failed INTEGER NOT NULL,
	results JSONB NOT NULL
)`, a.table)
	if _, err := a.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", a.table, err)
	}
	return nil
}

// StoreJob upserts the job row. Re-archiving a job replaces its results.
func (a *JobArchive) StoreJob(ctx context.Context, job scrape.Job) error {
	if a == nil || a.pool == nil {
		return fmt.Errorf("job archive is not configured")
	}
	if job.ID == "" {
		return fmt.Errorf("job id is required")
	}
	paramsJSON, err := json.Marshal(job.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	results := job.Results
	if results == nil {
		results = []scrape.Record{}
	}
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	job_id,
	provider,
	params,
	status,
	submitted_at,
	started_at,
	finished_at,
	error_text,
	accepted,
	failed,
	results
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)
ON CONFLICT (job_id) DO UPDATE SET
	status = EXCLUDED.status,
	finished_at = EXCLUDED.finished_at,
	error_text = EXCLUDED.error_text,
	accepted = EXCLUDED.accepted,
	failed = EXCLUDED.failed,
	results = EXCLUDED.results`, a.table)

	accepted := len(job.Accepted())
	args := []any{
		job.ID,
		job.Provider,
		paramsJSON,
		string(job.Status),
		job.Submitted,
		job.Started,
		job.Finished,
		job.ErrorText,
		accepted,
		len(results) - accepted,
		resultsJSON,
	}
	if _, err := a.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert job archive: %w", err)
	}
	return nil
}
