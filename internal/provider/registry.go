// Package provider is the closed set of job sites the scraper knows about.
package provider

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/difranardo/vacancies-scrapper/internal/pipeline"
	"github.com/difranardo/vacancies-scrapper/internal/provider/bumeran"
	"github.com/difranardo/vacancies-scrapper/internal/provider/computrabajo"
	"github.com/difranardo/vacancies-scrapper/internal/provider/zonajobs"
	"github.com/difranardo/vacancies-scrapper/internal/scrape"
)

// Registry resolves provider ids to sites. It is immutable after construction.
type Registry struct {
	sites map[string]pipeline.Site
}

// NewRegistry builds the registry with the built-in providers.
func NewRegistry(timeouts pipeline.Timeouts, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("provider")
	return NewRegistryWith(
		bumeran.New(timeouts, logger),
		zonajobs.New(timeouts, logger),
		computrabajo.New(timeouts, logger),
	)
}

// NewRegistryWith builds a registry over the given sites. Later sites with a
// duplicate id replace earlier ones.
func NewRegistryWith(sites ...pipeline.Site) *Registry {
	r := &Registry{sites: make(map[string]pipeline.Site, len(sites))}
	for _, s := range sites {
		r.sites[normalizeID(s.ID())] = s
	}
	return r
}

// Lookup returns the site registered under id, ignoring case and
// surrounding space. Unknown ids yield scrape.ErrUnknownProvider.
func (r *Registry) Lookup(id string) (pipeline.Site, error) {
	if s, ok := r.sites[normalizeID(id)]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: %q", scrape.ErrUnknownProvider, id)
}

// IDs lists the registered provider ids in lexical order.
func (r *Registry) IDs() []string {
	out := make([]string, 0, len(r.sites))
	for id := range r.sites {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
