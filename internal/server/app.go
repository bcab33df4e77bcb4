// Package server assembles the service: configuration-driven construction of
// drivers, storage, progress sinks, the runner and the HTTP API, plus the
// serve and shutdown lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/difranardo/vacancies-scrapper/internal/api"
	"github.com/difranardo/vacancies-scrapper/internal/clock/system"
	"github.com/difranardo/vacancies-scrapper/internal/config"
	chromedpdriver "github.com/difranardo/vacancies-scrapper/internal/driver/chromedp"
	collydriver "github.com/difranardo/vacancies-scrapper/internal/driver/colly"
	"github.com/difranardo/vacancies-scrapper/internal/id/uuid"
	"github.com/difranardo/vacancies-scrapper/internal/jobs"
	"github.com/difranardo/vacancies-scrapper/internal/metrics"
	"github.com/difranardo/vacancies-scrapper/internal/policy/ratelimit"
	"github.com/difranardo/vacancies-scrapper/internal/progress"
	progresssinks "github.com/difranardo/vacancies-scrapper/internal/progress/sinks"
	"github.com/difranardo/vacancies-scrapper/internal/provider"
	memorypublisher "github.com/difranardo/vacancies-scrapper/internal/publisher/memory"
	gcppublisher "github.com/difranardo/vacancies-scrapper/internal/publisher/pubsub"
	"github.com/difranardo/vacancies-scrapper/internal/runner"
	"github.com/difranardo/vacancies-scrapper/internal/scrape"
	gcsstorage "github.com/difranardo/vacancies-scrapper/internal/storage/gcs"
	localstorage "github.com/difranardo/vacancies-scrapper/internal/storage/local"
	memorystorage "github.com/difranardo/vacancies-scrapper/internal/storage/memory"
	pgstore "github.com/difranardo/vacancies-scrapper/internal/storage/postgres"
	"github.com/difranardo/vacancies-scrapper/internal/store"
	"github.com/difranardo/vacancies-scrapper/internal/telemetry"
)

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	registry  *memorystorage.Registry
	providers *provider.Registry
	runner    *runner.Runner
	jobs      *jobs.Service
	hub       *progress.Hub
	apiServer *api.Server

	pool    *pgxpool.Pool
	runRepo store.RunRepository
	archive scrape.Archive

	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

// Options tune Build for embedding and tests.
type Options struct {
	// Registerer receives the progress metrics; nil uses the default registry.
	Registerer prometheus.Registerer
}

// Build creates the application's dependencies from cfg. On error every
// resource opened so far is released.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{cfg: cfg, logger: logger}
	built := false
	defer func() {
		if !built {
			app.closeResources()
		}
	}()

	app.logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.String("driver", cfg.Driver.Kind),
		zap.String("snapshots", cfg.Snapshots.Backend),
	)
	metrics.Init()
	telemetry.InitPropagation()

	drivers, err := app.setupDrivers()
	if err != nil {
		return nil, err
	}
	snapshots, err := app.setupSnapshots(ctx)
	if err != nil {
		return nil, err
	}
	if err := app.setupDatabase(ctx); err != nil {
		return nil, err
	}
	publisher, err := app.setupPublisher(ctx)
	if err != nil {
		return nil, err
	}
	if err := app.setupProgress(ctx, opts.Registerer); err != nil {
		return nil, err
	}

	clock := system.New()
	timeouts := cfg.Timeouts()
	app.providers = provider.NewRegistry(timeouts, logger)
	app.registry = memorystorage.NewRegistry(uuid.New(), clock)

	deps := runner.Deps{
		Snapshots: snapshots,
		Archive:   app.archive,
		Publisher: publisher,
		Emitter:   app.hub,
		Clock:     clock,
	}
	if cfg.Politeness.RequestsPerSecond > 0 {
		deps.Limiter = ratelimit.New(ratelimit.Config{
			RequestsPerSecond: cfg.Politeness.RequestsPerSecond,
			Burst:             cfg.Politeness.Burst,
		})
		app.logger.Info("politeness limiter enabled",
			zap.Float64("requests_per_second", cfg.Politeness.RequestsPerSecond),
			zap.Int("burst", cfg.Politeness.Burst),
		)
	}
	app.runner = runner.New(app.providers, app.registry, drivers, deps, runner.Config{
		MaxConcurrentJobs: cfg.Runner.MaxConcurrentJobs,
		Timeouts:          timeouts,
		Topic:             cfg.PubSub.TopicName,
		SideEffectTimeout: time.Duration(cfg.Runner.SideEffectTimeoutSeconds) * time.Second,
	}, logger)
	app.jobs = jobs.NewService(app.registry, app.providers, app.runner, jobs.Config{
		DefaultMaxPages: cfg.Scraper.DefaultMaxPages,
	}, logger)

	var ready []api.ReadyFunc
	if app.pool != nil {
		ready = append(ready, func(ctx context.Context) error { return app.pool.Ping(ctx) })
	}
	app.apiServer = api.NewServer(app.jobs, app.runRepo, cfg, logger, ready...)
	built = true
	return app, nil
}

// Jobs returns the job control service.
func (a *App) Jobs() *jobs.Service {
	return a.jobs
}

// Handler returns the HTTP API handler.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run serves the API until ctx is canceled or the listener fails, then shuts
// down gracefully.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.shutdownTimeout())
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("server shutdown error", zap.Error(err))
		}
		return nil
	})

	err := g.Wait()
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.shutdownTimeout())
	defer cancel()
	if closeErr := a.Close(closeCtx); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// WaitJobs blocks until every started job has finished. When ctx ends first,
// running jobs are interrupted and flushed.
func (a *App) WaitJobs(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.runner.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.shutdownTimeout())
		defer cancel()
		if err := a.runner.Stop(stopCtx); err != nil {
			return fmt.Errorf("stop jobs: %w", err)
		}
		return fmt.Errorf("jobs interrupted: %w", ctx.Err())
	}
}

// Close stops the runner, drains progress and releases infrastructure.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.runner != nil {
		if err := a.runner.Stop(ctx); err != nil {
			a.logger.Warn("runner stop failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	a.closeResources()
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeResources() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			a.logger.Warn("close failed", zap.String("resource", c.name), zap.Error(err))
		}
	}
	a.closers = nil
}

func (a *App) onClose(name string, fn func() error) {
	a.closers = append(a.closers, namedCloser{name: name, close: fn})
}

func (a *App) shutdownTimeout() time.Duration {
	if d := a.cfg.ShutdownTimeout(); d > 0 {
		return d
	}
	return 10 * time.Second
}

func (a *App) setupDrivers() (scrape.DriverFactory, error) {
	ua := a.cfg.Driver.UserAgent
	switch a.cfg.Driver.Kind {
	case config.DriverChromedp:
		factory, err := chromedpdriver.New(chromedpdriver.Config{
			MaxParallel:       a.cfg.Headless.MaxParallel,
			UserAgent:         ua,
			NavigationTimeout: time.Duration(a.cfg.Scraper.NavigationTimeoutSeconds) * time.Second,
			OperationTimeout:  time.Duration(a.cfg.Headless.OperationTimeoutSeconds) * time.Second,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("chromedp driver init failed: %w", err)
		}
		a.onClose("chromedp", func() error {
			factory.Close()
			return nil
		})
		a.logger.Info("using chromedp driver", zap.Int("max_parallel", a.cfg.Headless.MaxParallel))
		return factory, nil
	default:
		a.logger.Info("using colly driver", zap.String("user_agent", ua))
		return collydriver.NewFactory(collydriver.Config{
			UserAgent:     ua,
			RespectRobots: a.cfg.HTTP.RespectRobots,
			Timeout:       time.Duration(a.cfg.HTTP.TimeoutSeconds) * time.Second,
		}, a.logger), nil
	}
}

func (a *App) setupSnapshots(ctx context.Context) (scrape.BlobStore, error) {
	switch a.cfg.Snapshots.Backend {
	case config.SnapshotsGCS:
		blobs, closeFn, err := gcsstorage.Dial(ctx, gcsstorage.Config{
			Bucket: a.cfg.Snapshots.GCSBucket,
			Prefix: a.cfg.Snapshots.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs snapshot store init failed: %w", err)
		}
		a.onClose("gcs", closeFn)
		a.logger.Info("using GCS snapshot store", zap.String("bucket", a.cfg.Snapshots.GCSBucket))
		return blobs, nil
	case config.SnapshotsLocal:
		blobs, err := localstorage.New(localstorage.Config{
			BaseDir: a.cfg.Snapshots.LocalDir,
			Prefix:  a.cfg.Snapshots.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("local snapshot store init failed: %w", err)
		}
		a.logger.Info("using local snapshot store", zap.String("path", a.cfg.Snapshots.LocalDir))
		return blobs, nil
	case config.SnapshotsMemory:
		a.logger.Info("using in-memory snapshot store")
		return memorystorage.NewBlobStore(), nil
	default:
		a.logger.Info("listing snapshots disabled")
		return nil, nil
	}
}

func (a *App) setupDatabase(ctx context.Context) error {
	if a.cfg.Archive.DSN == "" {
		a.logger.Warn("no archive DSN configured, skipping job archive and run history")
		return nil
	}
	pool, err := pgstore.NewPool(ctx, pgstore.PoolConfig{
		DSN:             a.cfg.Archive.DSN,
		MaxConns:        a.cfg.Archive.MaxConns,
		MinConns:        a.cfg.Archive.MinConns,
		MaxConnLifetime: time.Duration(a.cfg.Archive.MaxConnLifetimeSeconds) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("postgres pool init failed: %w", err)
	}
	a.pool = pool
	a.onClose("postgres", func() error {
		pool.Close()
		return nil
	})

	runs, err := pgstore.NewRunStore(pool, a.cfg.Archive.RunsTable)
	if err != nil {
		return fmt.Errorf("run store init failed: %w", err)
	}
	archive, err := pgstore.NewJobArchive(pool, a.cfg.Archive.JobsTable)
	if err != nil {
		return fmt.Errorf("job archive init failed: %w", err)
	}
	if a.cfg.Archive.EnsureSchema {
		if err := runs.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("run store schema: %w", err)
		}
		if err := archive.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("job archive schema: %w", err)
		}
	}
	a.runRepo = runs
	a.archive = archive
	a.logger.Info("postgres archive initialized",
		zap.String("jobs_table", a.cfg.Archive.JobsTable),
		zap.String("runs_table", a.cfg.Archive.RunsTable),
	)
	return nil
}

func (a *App) setupPublisher(ctx context.Context) (scrape.Publisher, error) {
	if a.cfg.PubSub.TopicName == "" || a.cfg.PubSub.ProjectID == "" {
		a.logger.Warn("no Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	pub, closeFn, err := gcppublisher.Dial(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.onClose("pubsub", closeFn)
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return pub, nil
}

func (a *App) setupProgress(ctx context.Context, reg prometheus.Registerer) error {
	promSink, err := progresssinks.NewPrometheusSink(reg)
	if err != nil {
		return fmt.Errorf("progress metrics init failed: %w", err)
	}
	sinkList := []progress.Sink{promSink}
	if a.runRepo != nil {
		sinkList = append(sinkList, progresssinks.NewStoreSink(a.runRepo, a.logger))
	}
	if a.cfg.Progress.LogEvents {
		sinkList = append(sinkList, progresssinks.NewLogSink(a.logger))
	}
	hubCfg := progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.BatchSize,
		MaxBatchWait:   time.Duration(a.cfg.Progress.BatchWaitMs) * time.Millisecond,
		SinkTimeout:    time.Duration(a.cfg.Progress.SinkTimeoutSeconds) * time.Second,
		BaseContext:    context.WithoutCancel(ctx),
		Logger:         a.logger,
	}
	a.hub = progress.NewHub(hubCfg, sinkList...)
	a.logger.Info("progress hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
	)
	return nil
}
