// Package runner executes scrape jobs: one goroutine per job, a guaranteed
// final flush into the registry, and the post-run side effects (progress
// events, archive, completion notification).
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/difranardo/vacancies-scrapper/internal/logging"
	"github.com/difranardo/vacancies-scrapper/internal/metrics"
	"github.com/difranardo/vacancies-scrapper/internal/pipeline"
	"github.com/difranardo/vacancies-scrapper/internal/progress"
	"github.com/difranardo/vacancies-scrapper/internal/scrape"
	"github.com/difranardo/vacancies-scrapper/internal/telemetry"
)

// Providers resolves provider ids to sites.
type Providers interface {
	Lookup(id string) (pipeline.Site, error)
}

// JobStore is the registry surface the runner drives.
type JobStore interface {
	MarkRunning(id string) error
	CancelRequested(id string) bool
	AppendResult(id string, rec scrape.Record) (bool, error)
	ReplaceResults(id string, recs []scrape.Record) error
	Finish(id, errText string) error
	Read(id string) (scrape.Job, bool)
}

// Config controls Runner behavior.
type Config struct {
	// MaxConcurrentJobs caps running jobs; 0 means unbounded.
	MaxConcurrentJobs int
	Timeouts          pipeline.Timeouts
	// Topic receives job-completed notifications when a Publisher is set.
	Topic string
	// SideEffectTimeout bounds archiving and publishing after a job ends.
	SideEffectTimeout time.Duration
}

// Deps are the optional collaborators of a Runner.
type Deps struct {
	Limiter   scrape.Limiter
	Snapshots scrape.BlobStore
	Archive   scrape.Archive
	Publisher scrape.Publisher
	Emitter   progress.Emitter
	Clock     scrape.Clock
}

// Runner launches pipelines for registered jobs.
type Runner struct {
	providers Providers
	jobs      JobStore
	drivers   scrape.DriverFactory
	deps      Deps
	cfg       Config
	logger    *zap.Logger

	sem  chan struct{}
	base context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
}

// New constructs a Runner.
func New(
	providers Providers,
	jobs JobStore,
	drivers scrape.DriverFactory,
	deps Deps,
	cfg Config,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Emitter == nil {
		deps.Emitter = progress.NopEmitter{}
	}
	if cfg.SideEffectTimeout <= 0 {
		cfg.SideEffectTimeout = 30 * time.Second
	}
	base, stop := context.WithCancel(context.Background())
	r := &Runner{
		providers: providers,
		jobs:      jobs,
		drivers:   drivers,
		deps:      deps,
		cfg:       cfg,
		logger:    logger.Named("runner"),
		base:      base,
		stop:      stop,
	}
	if cfg.MaxConcurrentJobs > 0 {
		r.sem = make(chan struct{}, cfg.MaxConcurrentJobs)
	}
	return r
}

// Start resolves the provider and spawns the job goroutine. An unknown
// provider is reported synchronously and nothing is spawned. The job runs
// under the runner's own lifetime, not ctx.
func (r *Runner) Start(ctx context.Context, jobID, providerID string, params scrape.SearchParams) error {
	site, err := r.providers.Lookup(providerID)
	if err != nil {
		return fmt.Errorf("start job %s: %w", jobID, err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("start job %s: %w", jobID, err)
	}
	if err := r.base.Err(); err != nil {
		return fmt.Errorf("start job %s: runner stopped: %w", jobID, err)
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(r.base, jobID, site, params)
	}()
	return nil
}

// Wait blocks until every started job has exited.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Stop interrupts running jobs and waits for them to flush, or for ctx.
func (r *Runner) Stop(ctx context.Context) error {
	r.stop()
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for jobs: %w", ctx.Err())
	}
}

func (r *Runner) run(ctx context.Context, jobID string, site pipeline.Site, params scrape.SearchParams) {
	logger := logging.ForJob(r.logger, jobID, site.ID())
	ctx, span := telemetry.StartJobSpan(ctx, jobID, site.ID())
	if !r.acquire(ctx) {
		logger.Warn("job interrupted while waiting for a slot")
		err := fmt.Errorf("waiting for slot: %w", ctx.Err())
		r.finish(ctx, jobID, site.ID(), nil, time.Time{}, err, logger)
		telemetry.EndJobSpan(span, 0, 0, err)
		return
	}
	defer r.release()

	if r.jobs.CancelRequested(jobID) {
		logger.Info("job cancelled before start")
		r.finish(ctx, jobID, site.ID(), nil, time.Time{}, nil, logger)
		telemetry.EndJobSpan(span, 0, 0, nil)
		return
	}
	if err := r.jobs.MarkRunning(jobID); err != nil {
		logger.Error("mark running failed", zap.Error(err))
		telemetry.EndJobSpan(span, 0, 0, err)
		return
	}
	started := r.now()
	r.emit(progress.Event{JobID: jobID, TS: started, Stage: progress.StageJobStart, Provider: site.ID()})
	logger.Info("job started", zap.String("query", params.Query), zap.String("location", params.Location))

	buf := &buffer{jobID: jobID, jobs: r.jobs, logger: logger}
	err := r.execute(ctx, jobID, site, params, buf, logger)
	results := buf.snapshot()
	r.finish(ctx, jobID, site.ID(), results, started, err, logger)
	accepted := 0
	for _, rec := range results {
		if rec.Accepted() {
			accepted++
		}
	}
	telemetry.EndJobSpan(span, accepted, len(results)-accepted, err)
}

// execute runs the pipeline and converts panics into errors.
func (r *Runner) execute(
	ctx context.Context,
	jobID string,
	site pipeline.Site,
	params scrape.SearchParams,
	buf *buffer,
	logger *zap.Logger,
) (err error) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("job panicked", zap.Any("panic", p), zap.Stack("stack"))
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	tabs, err := r.openTabs(ctx, jobID, params.Headless)
	if err != nil {
		return err
	}
	defer func() {
		for _, drv := range []scrape.Driver{tabs.Listing, tabs.Detail} {
			if cerr := drv.Close(); cerr != nil {
				logger.Warn("close driver session failed", zap.Error(cerr))
			}
			metrics.SessionClosed()
		}
	}()

	p := pipeline.New(site, pipeline.Config{
		Timeouts:  r.cfg.Timeouts,
		Limiter:   r.deps.Limiter,
		Snapshots: r.deps.Snapshots,
		Clock:     r.deps.Clock,
		Observer:  newObserver(jobID, site.ID(), r.deps.Emitter, r.now),
		Logger:    r.logger,
	})
	return p.Run(ctx, jobID, tabs, params, buf)
}

func (r *Runner) openTabs(ctx context.Context, jobID string, headless bool) (pipeline.Tabs, error) {
	opts := scrape.SessionOptions{JobID: jobID, Headless: headless}
	listing, err := r.drivers.Open(ctx, opts)
	if err != nil {
		return pipeline.Tabs{}, fmt.Errorf("open listing session: %w", err)
	}
	detail, err := r.drivers.Open(ctx, opts)
	if err != nil {
		_ = listing.Close()
		return pipeline.Tabs{}, fmt.Errorf("open detail session: %w", err)
	}
	metrics.SessionOpened()
	metrics.SessionOpened()
	return pipeline.Tabs{Listing: listing, Detail: detail}, nil
}

// finish flushes the buffer, marks the job done and runs side effects. It is
// reached on every exit path of a started job. Side effects outlive ctx
// cancellation but keep its trace.
func (r *Runner) finish(ctx context.Context, jobID, provider string, results []scrape.Record, started time.Time, runErr error, logger *zap.Logger) {
	errText := ""
	if runErr != nil {
		errText = runErr.Error()
		logger.Error("job failed", zap.Error(runErr))
	}
	if results != nil {
		if err := r.jobs.ReplaceResults(jobID, results); err != nil && !errors.Is(err, scrape.ErrJobNotFound) {
			logger.Error("flush results failed", zap.Error(err))
		}
	}
	if err := r.jobs.Finish(jobID, errText); err != nil {
		if errors.Is(err, scrape.ErrJobNotFound) {
			logger.Info("job disposed before completion")
			return
		}
		logger.Error("finish job failed", zap.Error(err))
		return
	}

	job, ok := r.jobs.Read(jobID)
	if !ok {
		logger.Warn("job disposed before completion")
		return
	}
	accepted := len(job.Accepted())
	failed := len(job.Results) - accepted

	stage := progress.StageJobDone
	switch {
	case runErr != nil:
		stage = progress.StageJobError
	case job.CancelRequested:
		stage = progress.StageJobCancelled
	}
	now := r.now()
	var dur time.Duration
	if !started.IsZero() && now.After(started) {
		dur = now.Sub(started)
	}
	r.emit(progress.Event{
		JobID:    jobID,
		TS:       now,
		Stage:    stage,
		Provider: provider,
		Records:  int64(accepted),
		Failed:   int64(failed),
		Dur:      dur,
		Note:     errText,
	})
	logger.Info("job finished",
		zap.String("stage", string(stage)),
		zap.Int("records", accepted),
		zap.Int("failed", failed),
		zap.Duration("dur", dur),
	)

	sideCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.SideEffectTimeout)
	defer cancel()
	r.archive(sideCtx, job, logger)
	r.publish(sideCtx, job, stage, logger)
}

func (r *Runner) archive(ctx context.Context, job scrape.Job, logger *zap.Logger) {
	if r.deps.Archive == nil {
		return
	}
	if err := r.deps.Archive.StoreJob(ctx, job); err != nil {
		logger.Error("archive job failed", zap.Error(err))
		return
	}
	logger.Debug("job archived")
}

func (r *Runner) publish(ctx context.Context, job scrape.Job, stage progress.Stage, logger *zap.Logger) {
	if r.cfg.Topic == "" || r.deps.Publisher == nil {
		return
	}
	payload := map[string]any{
		"job_id":   job.ID,
		"provider": job.Provider,
		"query":    job.Params.Query,
		"location": job.Params.Location,
		"stage":    string(stage),
		"records":  len(job.Accepted()),
		"failed":   len(job.Diagnostics()),
		"error":    job.ErrorText,
	}
	if job.Finished != nil {
		payload["finished_at"] = job.Finished.Format(time.RFC3339)
	}
	msgID, err := r.deps.Publisher.Publish(ctx, r.cfg.Topic, payload)
	if err != nil {
		logger.Error("publish job completion failed", zap.Error(err))
		return
	}
	logger.Info("job completion published", zap.String("message_id", msgID), zap.String("topic", r.cfg.Topic))
}

func (r *Runner) acquire(ctx context.Context) bool {
	if r.sem == nil {
		return true
	}
	select {
	case r.sem <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (r *Runner) release() {
	if r.sem != nil {
		<-r.sem
	}
}

func (r *Runner) emit(evt progress.Event) {
	r.deps.Emitter.Emit(evt)
}

func (r *Runner) now() time.Time {
	if r.deps.Clock == nil {
		return time.Now().UTC()
	}
	return r.deps.Clock.Now()
}

// buffer is the per-job ResultSink. Records are appended to the registry as
// they arrive so readers see progress, and kept locally for the final flush.
type buffer struct {
	jobID  string
	jobs   JobStore
	logger *zap.Logger

	mu      sync.Mutex
	records []scrape.Record
}

var _ scrape.ResultSink = (*buffer)(nil)

func (b *buffer) Append(rec scrape.Record) {
	b.mu.Lock()
	b.records = append(b.records, rec.Clone())
	b.mu.Unlock()
	if _, err := b.jobs.AppendResult(b.jobID, rec); err != nil && !errors.Is(err, scrape.ErrJobNotFound) {
		b.logger.Warn("append result failed", zap.String("url", rec.URL), zap.Error(err))
	}
}

// CancelRequested also reports true once the job has been disposed, so a
// deleted job stops at the next poll.
func (b *buffer) CancelRequested() bool {
	if b.jobs.CancelRequested(b.jobID) {
		return true
	}
	_, ok := b.jobs.Read(b.jobID)
	return !ok
}

func (b *buffer) snapshot() []scrape.Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]scrape.Record, len(b.records))
	copy(out, b.records)
	return out
}
