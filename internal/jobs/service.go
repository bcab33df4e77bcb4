// Package jobs is the façade callers use to submit, poll, read, cancel and
// dispose of scrape jobs.
package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/difranardo/vacancies-scrapper/internal/pipeline"
	"github.com/difranardo/vacancies-scrapper/internal/scrape"
)

// Registry is the job store the service reads and mutates.
type Registry interface {
	Create(params scrape.SearchParams) (scrape.Job, error)
	Cancel(id string) bool
	Read(id string) (scrape.Job, bool)
	Delete(id string) bool
}

// Providers validates provider ids.
type Providers interface {
	Lookup(id string) (pipeline.Site, error)
}

// Starter launches a registered job.
type Starter interface {
	Start(ctx context.Context, jobID, providerID string, params scrape.SearchParams) error
}

// Status is the poll view of a job.
type Status struct {
	Exists          bool             `json:"-"`
	ID              string           `json:"job_id"`
	Provider        string           `json:"provider"`
	State           scrape.JobStatus `json:"status"`
	Done            bool             `json:"done"`
	CancelRequested bool             `json:"cancel_requested"`
	RecordCount     int              `json:"records"`
	FailedCount     int              `json:"failed"`
	ErrorText       string           `json:"error,omitempty"`
	Submitted       time.Time        `json:"submitted_at"`
	Started         *time.Time       `json:"started_at,omitempty"`
	Finished        *time.Time       `json:"finished_at,omitempty"`
}

// Config tunes submission defaults.
type Config struct {
	// DefaultMaxPages applies when a submission leaves MaxPages unset; 0
	// keeps pagination unbounded.
	DefaultMaxPages int
}

// Service wires the registry, provider set and runner together.
type Service struct {
	registry  Registry
	providers Providers
	runner    Starter
	cfg       Config
	logger    *zap.Logger
}

// NewService constructs a Service.
func NewService(registry Registry, providers Providers, runner Starter, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		registry:  registry,
		providers: providers,
		runner:    runner,
		cfg:       cfg,
		logger:    logger.Named("jobs"),
	}
}

// Submit validates the provider, registers a job and starts it. An unknown
// provider returns scrape.ErrUnknownProvider and creates nothing.
func (s *Service) Submit(ctx context.Context, providerID string, params scrape.SearchParams) (string, error) {
	providerID = strings.ToLower(strings.TrimSpace(providerID))
	if _, err := s.providers.Lookup(providerID); err != nil {
		return "", fmt.Errorf("submit: %w", err)
	}
	params.ProviderID = providerID
	params.Query = strings.TrimSpace(params.Query)
	params.Location = strings.TrimSpace(params.Location)
	if params.MaxPages == nil && s.cfg.DefaultMaxPages > 0 {
		n := s.cfg.DefaultMaxPages
		params.MaxPages = &n
	}

	job, err := s.registry.Create(params)
	if err != nil {
		return "", fmt.Errorf("submit: %w", err)
	}
	if err := s.runner.Start(ctx, job.ID, providerID, params); err != nil {
		s.registry.Delete(job.ID)
		return "", fmt.Errorf("submit: %w", err)
	}
	s.logger.Info("job submitted",
		zap.String("job_id", job.ID),
		zap.String("provider", providerID),
		zap.String("query", params.Query),
		zap.String("location", params.Location),
	)
	return job.ID, nil
}

// Status reports the job state. Exists is false for unknown ids.
func (s *Service) Status(id string) Status {
	job, ok := s.registry.Read(id)
	if !ok {
		return Status{ID: id}
	}
	accepted := len(job.Accepted())
	return Status{
		Exists:          true,
		ID:              job.ID,
		Provider:        job.Provider,
		State:           job.Status,
		Done:            job.Status.IsTerminal(),
		CancelRequested: job.CancelRequested,
		RecordCount:     accepted,
		FailedCount:     len(job.Results) - accepted,
		ErrorText:       job.ErrorText,
		Submitted:       job.Submitted,
		Started:         job.Started,
		Finished:        job.Finished,
	}
}

// Results returns the accepted records. false means the id is unknown.
func (s *Service) Results(id string) ([]scrape.Record, bool) {
	job, ok := s.registry.Read(id)
	if !ok {
		return nil, false
	}
	return job.Accepted(), true
}

// Diagnostics returns the per-item error records. false means the id is
// unknown.
func (s *Service) Diagnostics(id string) ([]scrape.Record, bool) {
	job, ok := s.registry.Read(id)
	if !ok {
		return nil, false
	}
	return job.Diagnostics(), true
}

// Cancel requests cooperative cancellation. It is idempotent and reports
// whether the job exists.
func (s *Service) Cancel(id string) bool {
	ok := s.registry.Cancel(id)
	if ok {
		s.logger.Info("job cancel requested", zap.String("job_id", id))
	}
	return ok
}

// Dispose cancels the job and forgets it. A running job stops at its next
// cancellation poll and its results are dropped.
func (s *Service) Dispose(id string) bool {
	s.registry.Cancel(id)
	ok := s.registry.Delete(id)
	if ok {
		s.logger.Debug("job disposed", zap.String("job_id", id))
	}
	return ok
}

// ProviderIDs lists the accepted provider ids when the provider set can
// enumerate them.
func (s *Service) ProviderIDs() []string {
	if lister, ok := s.providers.(interface{ IDs() []string }); ok {
		return lister.IDs()
	}
	return nil
}
