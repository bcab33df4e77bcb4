package sinks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/difranardo/vacancies-scrapper/internal/progress"
	"github.com/difranardo/vacancies-scrapper/internal/store"
)

// StoreSink persists progress deltas via a store.RunRepository. It collapses
// page counters per job to reduce write amplification.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger.Named("run_store")}
}

// Consume records job starts immediately, then forwards the collapsed page
// deltas, then completes finished jobs. It respects ctx deadlines and returns
// the first repository error.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	deltas := make(map[string]*runDelta)
	var order []string
	var terminal []progress.Event

	for _, evt := range batch {
		switch {
		case evt.Stage == progress.StageJobStart:
			if err := s.repo.UpsertRunStart(ctx, evt.JobID, evt.Provider, evt.TS); err != nil {
				return fmt.Errorf("upsert run start: %w", err)
			}
		case evt.Stage == progress.StagePageDone:
			delta := deltas[evt.JobID]
			if delta == nil {
				delta = &runDelta{}
				deltas[evt.JobID] = delta
				order = append(order, evt.JobID)
			}
			delta.pages++
			delta.records += evt.Records
			delta.failed += evt.Failed
			if evt.TS.After(delta.at) {
				delta.at = evt.TS
			}
		case evt.Stage.Terminal():
			terminal = append(terminal, evt)
		}
	}

	for _, jobID := range order {
		delta := deltas[jobID]
		if err := s.repo.AddRunProgress(ctx, jobID, delta.pages, delta.records, delta.failed, delta.at); err != nil {
			return fmt.Errorf("add run progress: %w", err)
		}
	}
	for _, evt := range terminal {
		if err := s.complete(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

func (s *StoreSink) complete(ctx context.Context, evt progress.Event) error {
	status := store.RunSuccess
	switch evt.Stage {
	case progress.StageJobError:
		status = store.RunError
	case progress.StageJobCancelled:
		status = store.RunCancelled
	}
	var note *string
	if evt.Stage == progress.StageJobError && evt.Note != "" {
		note = &evt.Note
	}
	if err := s.repo.CompleteRun(ctx, evt.JobID, evt.TS, status, note); err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

type runDelta struct {
	pages   int64
	records int64
	failed  int64
	at      time.Time
}
