// Package progress defines the events emitted while scrape jobs run.
package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageJobStart     Stage = "JOB_START"
	StageJobDone      Stage = "JOB_DONE"
	StageJobError     Stage = "JOB_ERROR"
	StageJobCancelled Stage = "JOB_CANCELLED"
	StagePageDone     Stage = "PAGE_DONE"
	StageDetailDone   Stage = "DETAIL_DONE"
	StageDetailError  Stage = "DETAIL_ERROR"
)

// Terminal reports whether the stage ends a job.
func (s Stage) Terminal() bool {
	return s == StageJobDone || s == StageJobError || s == StageJobCancelled
}

// Event captures a single milestone of a job.
type Event struct {
	// JobID identifies the job run.
	JobID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle milestone occurred.
	Stage Stage
	// Provider is the site the job scrapes.
	Provider string
	// URL is the detail page for DETAIL_* events.
	URL string
	// Page is the 1-based listing page for PAGE_DONE.
	Page int
	// Records counts accepted records (PAGE_DONE: on the page, JOB_*: total).
	Records int64
	// Failed counts diagnostic records, mirroring Records.
	Failed int64
	// Dur captures job runtime on terminal events.
	Dur time.Duration
	// Note carries low-volume context: the error kind or job error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == "" {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageJobStart, StageJobDone, StageJobError, StageJobCancelled:
	case StagePageDone:
		if e.Page <= 0 {
			return errors.New("page done requires a page index")
		}
	case StageDetailDone, StageDetailError:
		if e.URL == "" {
			return fmt.Errorf("%s requires url", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	if e.Records < 0 || e.Failed < 0 {
		return errors.New("counters must be >= 0")
	}
	return nil
}
