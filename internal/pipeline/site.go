package pipeline

import (
	"context"
	"time"

	"github.com/difranardo/vacancies-scrapper/internal/headless/detector"
	"github.com/difranardo/vacancies-scrapper/internal/scrape"
)

// Site supplies the provider-specific parts of a scrape run.
type Site interface {
	// ID is the provider identifier, e.g. "bumeran".
	ID() string
	// Search navigates the listing tab to the filtered search, or to the
	// "most recent" listing when query and location are both empty.
	Search(ctx context.Context, drv scrape.Driver, params scrape.SearchParams) error
	// ListingSelector matches the listing entries once the page has booted.
	ListingSelector() string
	// DetailURLs enumerates the detail links on the current listing page.
	DetailURLs(ctx context.Context, drv scrape.Driver) ([]string, error)
	// NextPage advances the listing tab. false means there is no next page.
	NextPage(ctx context.Context, drv scrape.Driver) (bool, error)
	// IsDetailURL reports whether url looks like a posting detail page.
	IsDetailURL(url string) bool
	// Extract visits url on the detail tab and reads the posting. Returned
	// errors are classified into per-item error kinds by the pipeline.
	Extract(ctx context.Context, drv scrape.Driver, url string) (scrape.Record, error)
}

// ShellSite is implemented by sites that can describe their rendered
// listing, so an empty first page can be classified.
type ShellSite interface {
	ListingShell() detector.Shell
}

// Tabs are the two driver sessions a job uses: one stays on the listing,
// the other visits details so pagination state is never lost.
type Tabs struct {
	Listing scrape.Driver
	Detail  scrape.Driver
}

// Timeouts bound every wait a site performs.
type Timeouts struct {
	Navigation time.Duration
	Wait       time.Duration
	Detail     time.Duration
}

// WithDefaults fills zero values.
func (t Timeouts) WithDefaults() Timeouts {
	if t.Navigation <= 0 {
		t.Navigation = 25 * time.Second
	}
	if t.Wait <= 0 {
		t.Wait = 15 * time.Second
	}
	if t.Detail <= 0 {
		t.Detail = 15 * time.Second
	}
	return t
}
