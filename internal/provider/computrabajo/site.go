// Package computrabajo scrapes ar.computrabajo.com.
package computrabajo

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/difranardo/vacancies-scrapper/internal/extract"
	"github.com/difranardo/vacancies-scrapper/internal/headless/detector"
	"github.com/difranardo/vacancies-scrapper/internal/normalize"
	"github.com/difranardo/vacancies-scrapper/internal/pipeline"
	"github.com/difranardo/vacancies-scrapper/internal/scrape"
)

// ID is the provider id.
const ID = "computrabajo"

// BaseURL is the portal root.
const BaseURL = "https://ar.computrabajo.com/"

const (
	listingSelector = "article.box_offer h2 a.js-o-link, article.box_offer a.js-o-link, article a.js-o-link"
	detailPanel     = "main.detail_fs"
	nextSelector    = "span[title='Siguiente'][data-path]"
	infoSelector    = "main.detail_fs div.container p.fs16"
	tagSelector     = "main.detail_fs div.mbB span.tag"

	// The detail header reads "Empresa - Ubicación".
	infoSep = " - "
)

var (
	detailURLRE = regexp.MustCompile(`/ofertas-de-trabajo/[^/?#]+`)
	noResultsRE = regexp.MustCompile(`(?i)no\s+(se\s+)?(encontr\w+|hay)\s+ofertas`)
)

// Tag spans appear in this order under the title.
var tagExtras = []string{"salary", "contract", "schedule", "modality"}

var popupSelectors = []string{
	"button#didomi-notice-agree-button",
	"button[onclick*='webpush_subscribe']",
	"div.popup_webpush button.reject",
	"#js_close_box_alert",
	"[data-close-popup]",
}

// Site implements pipeline.Site for Computrabajo.
type Site struct {
	timeouts pipeline.Timeouts
	logger   *zap.Logger

	title        *extract.Chain[string]
	organization *extract.Chain[string]
	location     *extract.Chain[string]
	published    *extract.Chain[string]
	description  *extract.Chain[string]
	requirements *extract.Chain[[]string]
	tags         *extract.Chain[[]string]
}

var (
	_ pipeline.Site      = (*Site)(nil)
	_ pipeline.ShellSite = (*Site)(nil)
)

// New builds the Computrabajo site.
func New(timeouts pipeline.Timeouts, logger *zap.Logger) *Site {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Site{
		timeouts: timeouts.WithDefaults(),
		logger:   logger.Named(ID),
		title: extract.NewTextChain(
			extract.Selector("main.detail_fs h1"),
			extract.JSONLD("title"),
			extract.Selector("h1"),
		),
		organization: extract.NewTextChain(
			extract.Map(extract.Selector(infoSelector), beforeSep),
			extract.JSONLD("hiringOrganization", "name"),
		),
		location: extract.NewTextChain(
			extract.Map(extract.Selector(infoSelector), afterSep),
			extract.JSONLD("jobLocation", "address", "addressLocality"),
		),
		published: extract.NewTextChain(
			extract.LastSelector("main.detail_fs div[div-link='oferta'] p.fc_aux.fs13"),
			extract.JSONLD("datePosted"),
		),
		description: extract.NewTextChain(
			extract.Selector("main.detail_fs div[div-link='oferta'] p.mbB"),
			extract.Paragraphs("main.detail_fs p", 21, nil),
			extract.JSONLD("description"),
		),
		requirements: extract.NewListChain(
			extract.ListItems("main.detail_fs ul.disc.mbB li"),
		),
		tags: extract.NewListChain(
			extract.ListItems(tagSelector),
			extract.AsList(extract.JSONLD("employmentType")),
		),
	}
}

// ID returns the provider id.
func (s *Site) ID() string { return ID }

// ListingSelector implements pipeline.Site.
func (s *Site) ListingSelector() string { return listingSelector }

// ListingShell implements pipeline.ShellSite.
func (s *Site) ListingShell() detector.Shell {
	return detector.Shell{
		Container: "div#offers, div#p_ofertas, ul.offer_list",
		Item:      "article.box_offer, article, li",
		NoResults: noResultsRE,
	}
}

// SearchURL builds the listing URL: trabajo-de-<query>-en-<location>, with
// either half dropped when empty and the general listing when both are.
func SearchURL(params scrape.SearchParams) string {
	query := normalize.Slugify(params.Query)
	location := normalize.Slugify(params.Location)
	var path string
	switch {
	case query != "" && location != "":
		path = fmt.Sprintf("trabajo-de-%s-en-%s", query, location)
	case query != "":
		path = "trabajo-de-" + query
	case location != "":
		path = "empleos-en-" + location
	default:
		path = "ofertas-de-trabajo/"
	}
	return BaseURL + path
}

// Search opens the filtered listing.
func (s *Site) Search(ctx context.Context, drv scrape.Driver, params scrape.SearchParams) error {
	target := SearchURL(params)
	s.logger.Debug("search", zap.String("url", target))
	if err := drv.Navigate(ctx, target, s.timeouts.Navigation); err != nil {
		return fmt.Errorf("open %s: %w", target, err)
	}
	pipeline.DismissPopups(ctx, drv, popupSelectors...)
	return nil
}

// DetailURLs implements pipeline.Site.
func (s *Site) DetailURLs(ctx context.Context, drv scrape.Driver) ([]string, error) {
	return pipeline.CollectLinks(ctx, drv, listingSelector, "href", s.IsDetailURL)
}

// IsDetailURL reports whether u is an offer page under /ofertas-de-trabajo/.
func (s *Site) IsDetailURL(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	return detailURLRE.MatchString(parsed.Path)
}

// NextPage follows the data-path of the "Siguiente" control.
func (s *Site) NextPage(ctx context.Context, drv scrape.Driver) (bool, error) {
	els, err := drv.QueryAll(ctx, nextSelector)
	if err != nil {
		return false, fmt.Errorf("query next: %w", err)
	}
	if len(els) == 0 {
		return false, nil
	}
	if enabled, err := drv.IsEnabled(ctx, els[0]); err != nil || !enabled {
		return false, err
	}
	path, ok, err := drv.Attr(ctx, els[0], "data-path")
	if err != nil || !ok || strings.TrimSpace(path) == "" {
		return false, err
	}
	next, err := pipeline.Resolve(BaseURL, path)
	if err != nil {
		return false, fmt.Errorf("next page: %w", err)
	}
	if current, _ := drv.URL(ctx); current == next {
		return false, nil
	}
	if err := drv.Navigate(ctx, next, s.timeouts.Navigation); err != nil {
		return false, fmt.Errorf("open next page: %w", err)
	}
	if err := drv.WaitFor(ctx, listingSelector, scrape.WaitOptions{State: scrape.WaitAttached, Timeout: s.timeouts.Wait}); err != nil {
		return false, fmt.Errorf("wait next listing: %w", err)
	}
	pipeline.DismissPopups(ctx, drv, popupSelectors...)
	return true, nil
}

// Extract reads one offer.
func (s *Site) Extract(ctx context.Context, drv scrape.Driver, pageURL string) (scrape.Record, error) {
	doc, err := pipeline.LoadDetail(ctx, drv, pageURL, pipeline.DetailPage{Ready: []string{detailPanel}}, s.timeouts)
	if err != nil {
		return scrape.Record{}, err
	}
	rec := scrape.Record{URL: pageURL}
	var orgBy string
	rec.Title, _ = s.title.Run(doc)
	rec.Organization, orgBy = s.organization.Run(doc)
	rec.Location, _ = s.location.Run(doc)
	rec.PublishedText, _ = s.published.Run(doc)
	rec.Description, _ = s.description.Run(doc)
	rec.Requirements, _ = s.requirements.Run(doc)
	rec.Tags, _ = s.tags.Run(doc)
	rec.Extras = tagsToExtras(doc.Texts(tagSelector))
	s.logger.Debug("extracted", zap.String("url", pageURL), zap.String("organization_by", orgBy))
	return rec, nil
}

func tagsToExtras(tags []string) map[string]string {
	out := make(map[string]string)
	for i, tag := range tags {
		if i >= len(tagExtras) {
			break
		}
		if tag = normalize.CleanText(tag); tag != "" {
			out[tagExtras[i]] = tag
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func beforeSep(info string) string {
	org, _, _ := strings.Cut(info, infoSep)
	return strings.TrimSpace(org)
}

func afterSep(info string) string {
	_, loc, _ := strings.Cut(info, infoSep)
	return strings.TrimSpace(loc)
}
