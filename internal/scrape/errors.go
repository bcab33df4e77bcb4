package scrape

import (
	"context"
	"errors"
)

// Sentinel errors shared by drivers, pipelines, and the runner.
var (
	ErrUnknownProvider    = errors.New("unknown provider")
	ErrNavigationTimeout  = errors.New("navigation timeout")
	ErrListingEmpty       = errors.New("listing empty")
	ErrDetailUnavailable  = errors.New("detail unavailable")
	ErrDetailTimeout      = errors.New("detail timeout")
	ErrCancelled          = errors.New("cancelled")
	ErrJobNotFound        = errors.New("job not found")
	ErrElementNotFound    = errors.New("element not found")
	ErrNavigationRejected = errors.New("navigation rejected")
)

// IsTimeout reports whether err represents a bounded wait that expired.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrNavigationTimeout) ||
		errors.Is(err, ErrDetailTimeout) ||
		errors.Is(err, context.DeadlineExceeded)
}
