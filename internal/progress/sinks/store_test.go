package sinks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/difranardo/vacancies-scrapper/internal/progress"
	"github.com/difranardo/vacancies-scrapper/internal/store"
)

// TestStoreSinkPersistsEvents ensures page counters are collapsed per job before persisting.
func TestStoreSinkPersistsEvents(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{}
	sink := NewStoreSink(repo, nil)
	now := time.Now()

	batch := []progress.Event{
		{JobID: "job-1", Stage: progress.StageJobStart, Provider: "bumeran", TS: now},
		{JobID: "job-1", Stage: progress.StageDetailDone, URL: "https://a/1", TS: now},
		{JobID: "job-1", Stage: progress.StagePageDone, Page: 1, Records: 20, Failed: 1, TS: now.Add(time.Second)},
		{JobID: "job-1", Stage: progress.StagePageDone, Page: 2, Records: 5, TS: now.Add(2 * time.Second)},
		{JobID: "job-1", Stage: progress.StageJobDone, TS: now.Add(3 * time.Second), Dur: 3 * time.Second},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, []string{"job-1"}, repo.starts)
	require.Len(t, repo.progress, 1)
	call := repo.progress[0]
	require.Equal(t, int64(2), call.pages)
	require.Equal(t, int64(25), call.records)
	require.Equal(t, int64(1), call.failed)
	require.True(t, call.at.Equal(now.Add(2*time.Second)))
	require.Len(t, repo.completes, 1)
	require.Equal(t, store.RunSuccess, repo.completes[0].status)
	require.Nil(t, repo.completes[0].errMsg)
}

func TestStoreSinkMapsTerminalStages(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{}
	sink := NewStoreSink(repo, nil)
	now := time.Now()

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{JobID: "a", Stage: progress.StageJobError, TS: now, Note: "search: boom"},
		{JobID: "b", Stage: progress.StageJobCancelled, TS: now, Note: "ignored"},
	}))

	require.Len(t, repo.completes, 2)
	require.Equal(t, store.RunError, repo.completes[0].status)
	require.NotNil(t, repo.completes[0].errMsg)
	require.Equal(t, "search: boom", *repo.completes[0].errMsg)
	require.Equal(t, store.RunCancelled, repo.completes[1].status)
	require.Nil(t, repo.completes[1].errMsg)
}

// TestStoreSinkHandlesErrors surfaces repository failures back to the caller.
func TestStoreSinkHandlesErrors(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{fail: true}
	sink := NewStoreSink(repo, nil)
	err := sink.Consume(context.Background(), []progress.Event{
		{JobID: "job-1", Stage: progress.StageJobStart, TS: time.Now()},
	})
	require.Error(t, err)
}

type fakeRunRepo struct {
	fail      bool
	starts    []string
	progress  []progressCall
	completes []completeCall
}

type progressCall struct {
	jobID   string
	pages   int64
	records int64
	failed  int64
	at      time.Time
}

type completeCall struct {
	jobID  string
	status store.RunStatus
	errMsg *string
}

var errRepo = errors.New("repo failure")

func (f *fakeRunRepo) UpsertRunStart(_ context.Context, jobID, _ string, _ time.Time) error {
	if f.fail {
		return errRepo
	}
	f.starts = append(f.starts, jobID)
	return nil
}

func (f *fakeRunRepo) AddRunProgress(_ context.Context, jobID string, pages, records, failed int64, at time.Time) error {
	if f.fail {
		return errRepo
	}
	f.progress = append(f.progress, progressCall{jobID: jobID, pages: pages, records: records, failed: failed, at: at})
	return nil
}

func (f *fakeRunRepo) CompleteRun(
	_ context.Context,
	jobID string,
	_ time.Time,
	status store.RunStatus,
	errMsg *string,
) error {
	if f.fail {
		return errRepo
	}
	f.completes = append(f.completes, completeCall{jobID: jobID, status: status, errMsg: errMsg})
	return nil
}

func (f *fakeRunRepo) GetRun(context.Context, string) (store.Run, error) {
	return store.Run{}, store.ErrNotFound
}

func (f *fakeRunRepo) ListRuns(context.Context, *store.RunStatus, int, int) ([]store.Run, error) {
	return nil, nil
}
