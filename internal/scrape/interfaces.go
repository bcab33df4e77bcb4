package scrape

import (
	"context"
	"io"
	"time"
)

// WaitState selects what WaitFor waits on.
type WaitState string

// Wait states understood by drivers.
const (
	WaitAttached WaitState = "attached"
	WaitVisible  WaitState = "visible"
)

// WaitOptions bounds a selector wait.
type WaitOptions struct {
	State   WaitState
	Timeout time.Duration
}

// Element is an opaque handle to a node returned by Driver.QueryAll. Handles
// are only valid until the next navigation of the same session.
type Element struct {
	ID int64
}

// Driver is the page automation primitive used by pipelines. Every call that
// can block takes a context and returns ErrNavigationTimeout when its own
// bound expires.
type Driver interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	WaitFor(ctx context.Context, selector string, opts WaitOptions) error
	QueryAll(ctx context.Context, selector string) ([]Element, error)
	Text(ctx context.Context, el Element) (string, error)
	Attr(ctx context.Context, el Element, name string) (string, bool, error)
	Click(ctx context.Context, el Element, timeout time.Duration) error
	IsEnabled(ctx context.Context, el Element) (bool, error)
	HTML(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)
	Reload(ctx context.Context, timeout time.Duration) error
	Close() error
}

// SessionOptions configures a driver session for one job.
type SessionOptions struct {
	JobID    string
	Headless bool
}

// DriverFactory opens a fresh driver session per job.
type DriverFactory interface {
	Open(ctx context.Context, opts SessionOptions) (Driver, error)
}

// ResultSink receives records as a pipeline produces them and answers the
// cooperative cancellation poll.
type ResultSink interface {
	Append(rec Record)
	CancelRequested() bool
}

// BlobStore writes raw artifacts (diagnostic snapshots) and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Archive persists finished jobs outside the process.
type Archive interface {
	StoreJob(ctx context.Context, job Job) error
}

// Limiter throttles requests per host.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
