// Package memory holds process-lifetime, in-memory stores: the job registry
// and a blob store for diagnostic snapshots.
package memory

import (
	"fmt"
	"sync"
	"time"

	"github.com/difranardo/vacancies-scrapper/internal/scrape"
)

// Registry owns every job for the lifetime of the process. The map lock only
// guards membership; each entry carries its own lock so appends to one job
// never contend with reads of another.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	idGen   scrape.IDGenerator
	clock   scrape.Clock
}

type entry struct {
	mu   sync.Mutex
	job  scrape.Job
	seen map[string]struct{}
}

// NewRegistry constructs a Registry.
func NewRegistry(idGen scrape.IDGenerator, clock scrape.Clock) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		idGen:   idGen,
		clock:   clock,
	}
}

// Create registers a pending job for params and returns a copy of it.
func (r *Registry) Create(params scrape.SearchParams) (scrape.Job, error) {
	id, err := r.idGen.NewID()
	if err != nil {
		return scrape.Job{}, fmt.Errorf("generate job id: %w", err)
	}
	job := scrape.Job{
		ID:        id,
		Provider:  params.ProviderID,
		Params:    params,
		Status:    scrape.JobStatusPending,
		Results:   []scrape.Record{},
		Submitted: r.now(),
	}
	job = job.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[id]; exists {
		return scrape.Job{}, fmt.Errorf("job %s already exists", id)
	}
	r.entries[id] = &entry{job: job, seen: make(map[string]struct{})}
	return job.Clone(), nil
}

// MarkRunning moves a pending job to running. Cancelled or finished jobs are
// left untouched.
func (r *Registry) MarkRunning(id string) error {
	e, ok := r.get(id)
	if !ok {
		return fmt.Errorf("mark running %s: %w", id, scrape.ErrJobNotFound)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.job.Status == scrape.JobStatusPending {
		e.job.Status = scrape.JobStatusRunning
		e.job.Started = pointerTime(r.now())
	}
	return nil
}

// Cancel sets the cooperative cancellation flag. It is idempotent and a no-op
// for unknown or finished jobs; the return value reports whether the job
// exists.
func (r *Registry) Cancel(id string) bool {
	e, ok := r.get(id)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.job.Status.IsTerminal() {
		return true
	}
	e.job.CancelRequested = true
	e.job.Status = scrape.JobStatusCancelling
	return true
}

// CancelRequested reports whether cancellation was requested for id.
func (r *Registry) CancelRequested(id string) bool {
	e, ok := r.get(id)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job.CancelRequested
}

// AppendResult appends rec to the job's results. Records for a URL already
// present and appends to finished jobs are dropped; the boolean reports
// whether rec was stored.
func (r *Registry) AppendResult(id string, rec scrape.Record) (bool, error) {
	e, ok := r.get(id)
	if !ok {
		return false, fmt.Errorf("append result %s: %w", id, scrape.ErrJobNotFound)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.job.Status.IsTerminal() {
		return false, nil
	}
	if _, dup := e.seen[rec.URL]; dup {
		return false, nil
	}
	e.seen[rec.URL] = struct{}{}
	e.job.Results = append(e.job.Results, rec.Clone())
	return true, nil
}

// ReplaceResults atomically overwrites the job's results; it is the final
// flush performed by the runner. Duplicate URLs keep their first record.
func (r *Registry) ReplaceResults(id string, recs []scrape.Record) error {
	e, ok := r.get(id)
	if !ok {
		return fmt.Errorf("replace results %s: %w", id, scrape.ErrJobNotFound)
	}
	results := make([]scrape.Record, 0, len(recs))
	seen := make(map[string]struct{}, len(recs))
	for _, rec := range recs {
		if _, dup := seen[rec.URL]; dup {
			continue
		}
		seen[rec.URL] = struct{}{}
		results = append(results, rec.Clone())
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.job.Status.IsTerminal() {
		return nil
	}
	e.job.Results = results
	e.seen = seen
	return nil
}

// Finish marks the job done. After Finish the job is immutable.
func (r *Registry) Finish(id, errText string) error {
	e, ok := r.get(id)
	if !ok {
		return fmt.Errorf("finish %s: %w", id, scrape.ErrJobNotFound)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.job.Status.IsTerminal() {
		return nil
	}
	now := r.now()
	if e.job.Started == nil {
		e.job.Started = pointerTime(now)
	}
	e.job.Status = scrape.JobStatusDone
	e.job.Finished = pointerTime(now)
	e.job.ErrorText = errText
	return nil
}

// Read returns a snapshot of the job. The boolean is false for unknown ids,
// which is distinct from a job that exists with no results yet.
func (r *Registry) Read(id string) (scrape.Job, bool) {
	e, ok := r.get(id)
	if !ok {
		return scrape.Job{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job.Clone(), true
}

// Delete removes the job. It reports whether the job existed.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return false
	}
	delete(r.entries, id)
	return true
}

// Len returns the number of registered jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Registry) get(id string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

func (r *Registry) now() time.Time {
	if r.clock == nil {
		return time.Now().UTC()
	}
	return r.clock.Now()
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
