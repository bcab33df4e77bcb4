// Package memory serves fixed HTML fixtures through the dom driver. It backs
// pipeline tests and replays of stored snapshots.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/difranardo/vacancies-scrapper/internal/driver/dom"
	"github.com/difranardo/vacancies-scrapper/internal/scrape"
)

// ErrNotFound is returned for URLs without a registered page.
var ErrNotFound = errors.New("page not found")

// Site maps URLs to markup. A URL may carry a sequence of bodies; each load
// consumes the next one and the last repeats.
type Site struct {
	mu       sync.Mutex
	pages    map[string][]string
	failures map[string]error
	visits   map[string]int
}

// NewSite builds an empty Site.
func NewSite() *Site {
	return &Site{
		pages:    make(map[string][]string),
		failures: make(map[string]error),
		visits:   make(map[string]int),
	}
}

// Add registers the markup served for url. Extra bodies are served on
// subsequent loads.
func (s *Site) Add(url string, body string, more ...string) *Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[url] = append([]string{body}, more...)
	return s
}

// Fail makes loads of url return err.
func (s *Site) Fail(url string, err error) *Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[url] = err
	return s
}

// Visits reports how many times url was loaded.
func (s *Site) Visits(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visits[url]
}

// Load implements dom.Loader.
func (s *Site) Load(ctx context.Context, url string) (dom.Page, error) {
	if err := ctx.Err(); err != nil {
		return dom.Page{}, fmt.Errorf("load %s: %w", url, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visits[url]++
	if err, ok := s.failures[url]; ok {
		return dom.Page{}, err
	}
	bodies, ok := s.pages[url]
	if !ok {
		return dom.Page{}, fmt.Errorf("%s: %w", url, ErrNotFound)
	}
	idx := s.visits[url] - 1
	if idx >= len(bodies) {
		idx = len(bodies) - 1
	}
	return dom.Page{URL: url, Body: []byte(bodies[idx])}, nil
}

// Factory opens dom sessions over a shared Site.
type Factory struct {
	site   *Site
	logger *zap.Logger
}

// NewFactory builds a Factory.
func NewFactory(site *Site, logger *zap.Logger) *Factory {
	return &Factory{site: site, logger: logger}
}

// Open implements scrape.DriverFactory.
func (f *Factory) Open(_ context.Context, _ scrape.SessionOptions) (scrape.Driver, error) {
	return dom.NewSession(f.site, f.logger), nil
}
