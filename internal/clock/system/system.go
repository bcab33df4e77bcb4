// Package system provides the wall clock used outside tests.
package system

import (
	"time"

	"github.com/difranardo/vacancies-scrapper/internal/scrape"
)

// Clock implements scrape.Clock using time.Now in UTC.
type Clock struct{}

var _ scrape.Clock = Clock{}

// New creates a new Clock.
func New() Clock {
	return Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
