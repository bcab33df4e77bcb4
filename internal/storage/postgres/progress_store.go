package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/difranardo/vacancies-scrapper/internal/store"
)

// RunStore implements store.RunRepository on a job_runs table:
//
//	CREATE TABLE job_runs (
//		job_id        TEXT PRIMARY KEY,
//		provider      TEXT NOT NULL,
//		started_at    TIMESTAMPTZ NOT NULL,
//		finished_at   TIMESTAMPTZ,
//		status        TEXT NOT NULL,
//		error_message TEXT,
//		pages         BIGINT NOT NULL DEFAULT 0,
//		records       BIGINT NOT NULL DEFAULT 0,
//		failed        BIGINT NOT NULL DEFAULT 0,
//		last_update   TIMESTAMPTZ NOT NULL
//	);
type RunStore struct {
	pool  querier
	table string
}

var _ store.RunRepository = (*RunStore)(nil)

// NewRunStore wraps an existing pool. An empty table defaults to job_runs.
func NewRunStore(pool querier, table string) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := checkTable(table, "job_runs")
	if err != nil {
		return nil, err
	}
	return &RunStore{pool: pool, table: table}, nil
}

// Close closes the underlying connection pool.
func (s *RunStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the table when it does not exist.
func (s *RunStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	job_id TEXT PRIMARY KEY,
	provider TEXT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	status TEXT NOT NULL,
	error_message TEXT,
	pages BIGINT NOT NULL DEFAULT 0,
	records BIGINT NOT NULL DEFAULT 0,
	failed BIGINT NOT NULL DEFAULT 0,
	last_update TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// UpsertRunStart inserts the run or refreshes an unfinished one.
func (s *RunStore) UpsertRunStart(ctx context.Context, jobID, provider string, startedAt time.Time) error {
	query := fmt.Sprintf(`
INSERT INTO %s (job_id, provider, started_at, status, last_update)
VALUES ($1, $2, $3, $4, $3)
ON CONFLICT (job_id) DO UPDATE
SET provider = EXCLUDED.provider, started_at = EXCLUDED.started_at, status = EXCLUDED.status
WHERE %s.finished_at IS NULL`, s.table, s.table)
	if _, err := s.pool.Exec(ctx, query, jobID, provider, startedAt, string(store.RunRunning)); err != nil {
		return fmt.Errorf("upsert run start: %w", err)
	}
	return nil
}

// AddRunProgress increments the counters of a started run.
func (s *RunStore) AddRunProgress(ctx context.Context, jobID string, pages, records, failed int64, at time.Time) error {
	query := fmt.Sprintf(`
UPDATE %s
SET pages = pages + $1, records = records + $2, failed = failed + $3,
	last_update = GREATEST(last_update, $4)
WHERE job_id = $5`, s.table)
	tag, err := s.pool.Exec(ctx, query, pages, records, failed, at, jobID)
	if err != nil {
		return fmt.Errorf("add run progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("add run progress %s: %w", jobID, store.ErrNotFound)
	}
	return nil
}

// CompleteRun marks a run finished with a status and optional error message.
func (s *RunStore) CompleteRun(
	ctx context.Context,
	jobID string,
	finishedAt time.Time,
	status store.RunStatus,
	errMsg *string,
) error {
	if !status.Valid() || status == store.RunRunning {
		return fmt.Errorf("invalid final status %q", status)
	}
	query := fmt.Sprintf(`
UPDATE %s
SET finished_at = $1, status = $2, error_message = $3, last_update = GREATEST(last_update, $1)
WHERE job_id = $4`, s.table)
	tag, err := s.pool.Exec(ctx, query, finishedAt, string(status), errMsg, jobID)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("complete run %s: %w", jobID, store.ErrNotFound)
	}
	return nil
}

const runColumns = `job_id, provider, started_at, finished_at, status, error_message, pages, records, failed, last_update`

// GetRun retrieves a single run by its job id.
func (s *RunStore) GetRun(ctx context.Context, jobID string) (store.Run, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE job_id = $1`, runColumns, s.table)
	run, err := scanRun(s.pool.QueryRow(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves runs, most recent first, with optional status filtering.
func (s *RunStore) ListRuns(ctx context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	query := fmt.Sprintf(`
SELECT %s FROM %s
WHERE ($1::text IS NULL OR status = $1)
ORDER BY started_at DESC
LIMIT $2 OFFSET $3`, runColumns, s.table)
	var filter *string
	if status != nil {
		v := string(*status)
		filter = &v
	}
	rows, err := s.pool.Query(ctx, query, filter, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []store.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.Row) (store.Run, error) {
	var (
		run    store.Run
		status string
	)
	err := row.Scan(
		&run.JobID,
		&run.Provider,
		&run.StartedAt,
		&run.FinishedAt,
		&status,
		&run.ErrorMessage,
		&run.Pages,
		&run.Records,
		&run.Failed,
		&run.LastUpdate,
	)
	if err != nil {
		return store.Run{}, err
	}
	run.Status = store.RunStatus(status)
	return run, nil
}
