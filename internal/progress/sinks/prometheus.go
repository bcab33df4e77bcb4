package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/difranardo/vacancies-scrapper/internal/progress"
)

// PrometheusSink exports scrape progress metrics via Prometheus. It owns all
// collectors for jobs started/completed/running and per-provider record
// counters.
type PrometheusSink struct {
	jobsStarted   *prometheus.CounterVec
	jobsCompleted *prometheus.CounterVec
	jobsRunning   prometheus.Gauge
	jobRuntime    *prometheus.HistogramVec

	pages   *prometheus.CounterVec
	records *prometheus.CounterVec

	tracker *jobTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		jobsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_jobs_started_total",
			Help: "Total jobs that have started, per provider.",
		}, []string{"provider"}),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_jobs_completed_total",
			Help: "Total jobs completed partitioned by provider and result.",
		}, []string{"provider", "result"}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scraper_jobs_running",
			Help: "Current number of running jobs.",
		}),
		jobRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scraper_job_runtime_seconds",
			Help:    "Wall time per completed job.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"result"}),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_pages_total",
			Help: "Listing pages completed per provider.",
		}, []string{"provider"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_records_total",
			Help: "Detail records per provider partitioned by outcome.",
		}, []string{"provider", "outcome"}),
		tracker: newJobTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.jobsStarted,
		s.jobsCompleted,
		s.jobsRunning,
		s.jobRuntime,
		s.pages,
		s.records,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	provider := evt.Provider
	if provider == "" {
		provider = "unknown"
	}
	switch evt.Stage {
	case progress.StageJobStart:
		s.jobsStarted.WithLabelValues(provider).Inc()
		if s.tracker.start(evt.JobID) {
			s.jobsRunning.Inc()
		}
	case progress.StageJobDone, progress.StageJobError, progress.StageJobCancelled:
		result := resultLabel(evt.Stage)
		s.jobsCompleted.WithLabelValues(provider, result).Inc()
		if evt.Dur > 0 {
			s.jobRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
		}
		if s.tracker.complete(evt.JobID) {
			s.jobsRunning.Dec()
		}
	case progress.StagePageDone:
		s.pages.WithLabelValues(provider).Inc()
	case progress.StageDetailDone:
		s.records.WithLabelValues(provider, "accepted").Inc()
	case progress.StageDetailError:
		s.records.WithLabelValues(provider, "failed").Inc()
	}
}

func resultLabel(stage progress.Stage) string {
	switch stage {
	case progress.StageJobError:
		return "error"
	case progress.StageJobCancelled:
		return "cancelled"
	default:
		return "success"
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type jobTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newJobTracker() *jobTracker {
	return &jobTracker{running: make(map[string]struct{})}
}

func (t *jobTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *jobTracker) complete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
