// Package navent holds the listing, pagination and search-URL logic shared by
// the portals running on the Navent platform (bumeran, zonajobs).
package navent

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/difranardo/vacancies-scrapper/internal/headless/detector"
	"github.com/difranardo/vacancies-scrapper/internal/normalize"
	"github.com/difranardo/vacancies-scrapper/internal/pipeline"
	"github.com/difranardo/vacancies-scrapper/internal/scrape"
)

// Selectors common to every Navent portal.
const (
	ListingSelector = "#listado-avisos a[href*='/empleos/']"
	DetailContainer = "#section-detalle"
	NextSelector    = "a:has(i[name='icon-light-caret-right'])"
	RecentPath      = "empleos.html?recientes=true&page=1"
)

var (
	detailURLRE = regexp.MustCompile(`(?i)/empleos/[^/]+-\d+\.html$`)

	// UnavailableRE matches the body of removed postings.
	UnavailableRE = regexp.MustCompile(`(?i)Aviso no disponible|No encontramos el aviso`)

	// NoResultsRE matches the empty-search message of the listing.
	NoResultsRE = regexp.MustCompile(`(?i)no\s+(encontramos|hay)\s+(avisos|resultados)`)

	// ConfidentialRE matches postings that hide the employer.
	ConfidentialRE = regexp.MustCompile(`(?i)\bconfidencial\b`)

	// ProfileRE captures the company slug of /perfiles/empresa_<slug> links.
	ProfileRE = regexp.MustCompile(`/perfiles/empresa_([^/?#]+?)(?:\.html)?(?:[?#]|$)`)

	// TitleSlugRE captures the title slug of a detail URL.
	TitleSlugRE = regexp.MustCompile(`(?i)/empleos/([^/?#]+?)-\d+\.html?`)
)

// CookieSelectors close the OneTrust consent banner.
var CookieSelectors = []string{
	"button#onetrust-accept-btn-handler",
	"#onetrust-banner-sdk button.onetrust-close-btn-handler",
}

// Portal implements the listing side of pipeline.Site for one Navent host.
type Portal struct {
	Name     string
	Base     string
	Timeouts pipeline.Timeouts
}

// ID returns the provider id.
func (p Portal) ID() string { return p.Name }

// ListingSelector implements pipeline.Site.
func (p Portal) ListingSelector() string { return ListingSelector }

// SearchURL builds the filtered listing URL. Locations become an en-<slug>
// path segment, except Capital Federal which lives under Buenos Aires; the
// query becomes empleos-busqueda-<slug>.html. With neither, the most recent
// postings are listed.
func (p Portal) SearchURL(params scrape.SearchParams) string {
	query := normalize.CleanText(params.Query)
	location := normalize.CleanText(params.Location)
	if query == "" && location == "" {
		return p.resolve(RecentPath)
	}
	var parts []string
	switch {
	case normalize.Fold(location) == "capital federal":
		parts = append(parts, "en-buenos-aires/capital-federal")
	case location != "":
		parts = append(parts, "en-"+normalize.Slugify(location))
	}
	if query != "" {
		parts = append(parts, "empleos-busqueda-"+normalize.Slugify(query)+".html")
	} else {
		parts = append(parts, "empleos.html")
	}
	return p.resolve(strings.Join(parts, "/"))
}

// RecentURL lists the most recent postings.
func (p Portal) RecentURL() string { return p.resolve(RecentPath) }

// Open navigates drv to target and dismisses the cookie banner.
func (p Portal) Open(ctx context.Context, drv scrape.Driver, target string) error {
	if err := drv.Navigate(ctx, target, p.Timeouts.Navigation); err != nil {
		return fmt.Errorf("open %s: %w", target, err)
	}
	pipeline.DismissPopups(ctx, drv, CookieSelectors...)
	return nil
}

// DetailURLs implements pipeline.Site.
func (p Portal) DetailURLs(ctx context.Context, drv scrape.Driver) ([]string, error) {
	return pipeline.CollectLinks(ctx, drv, ListingSelector, "href", p.IsDetailURL)
}

// IsDetailURL reports whether u is a posting page (/empleos/<slug>-<id>.html).
func (p Portal) IsDetailURL(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	return detailURLRE.MatchString(parsed.Path)
}

// NextPage implements pipeline.Site.
func (p Portal) NextPage(ctx context.Context, drv scrape.Driver) (bool, error) {
	return pipeline.ClickNext(ctx, drv, NextSelector, ListingSelector, p.Timeouts)
}

// ListingShell implements pipeline.ShellSite. The listing mounts an empty
// #listado-avisos before the postings are rendered into it.
func (p Portal) ListingShell() detector.Shell {
	return detector.Shell{
		Container: "#listado-avisos",
		Item:      "a[href*='/empleos/']",
		NoResults: NoResultsRE,
	}
}

// Detail describes a loaded Navent posting.
func (p Portal) Detail() pipeline.DetailPage {
	return pipeline.DetailPage{
		Ready:       []string{DetailContainer, "h1"},
		Unavailable: UnavailableRE,
	}
}

func (p Portal) resolve(path string) string {
	out, err := pipeline.Resolve(p.Base, path)
	if err != nil {
		return p.Base + path
	}
	return out
}
