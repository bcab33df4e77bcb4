// Package bumeran scrapes www.bumeran.com.ar.
package bumeran

import (
	"context"
	"regexp"

	"go.uber.org/zap"

	"github.com/difranardo/vacancies-scrapper/internal/extract"
	"github.com/difranardo/vacancies-scrapper/internal/pipeline"
	"github.com/difranardo/vacancies-scrapper/internal/provider/navent"
	"github.com/difranardo/vacancies-scrapper/internal/scrape"
)

// ID is the provider id.
const ID = "bumeran"

// BaseURL is the portal root.
const BaseURL = "https://www.bumeran.com.ar/"

var (
	// Label paragraphs that sit next to the description body.
	labelRE     = regexp.MustCompile(`(?i)^(Ubicaci[oó]n|Industria|Publicado|Actualizado|Lugar de trabajo)\b`)
	publishedXP = `(//*[@id='section-detalle']//*[not(*)][contains(., 'Publicado') or contains(., 'Actualizado')])[last()]`
	anyPubXP    = `(//*[not(*)][contains(., 'Publicado') or contains(., 'Actualizado')])[last()]`
	descHeadRE  = regexp.MustCompile(`(?i)descripci[oó]n del (puesto|empleo|aviso)`)
)

var benefitNoise = []string{"ver más", "ver menos", "postularme", "postularme ahora"}

// Site implements pipeline.Site for Bumeran.
type Site struct {
	navent.Portal
	logger *zap.Logger

	title        *extract.Chain[string]
	organization *extract.Chain[string]
	location     *extract.Chain[string]
	industry     *extract.Chain[string]
	published    *extract.Chain[string]
	description  *extract.Chain[string]
	benefits     *extract.Chain[[]string]
	tags         *extract.Chain[[]string]
}

var (
	_ pipeline.Site      = (*Site)(nil)
	_ pipeline.ShellSite = (*Site)(nil)
)

// New builds the Bumeran site.
func New(timeouts pipeline.Timeouts, logger *zap.Logger) *Site {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Site{
		Portal: navent.Portal{Name: ID, Base: BaseURL, Timeouts: timeouts.WithDefaults()},
		logger: logger.Named(ID),
		title: extract.NewTextChain(
			extract.JSONLD("title"),
			extract.Selector("#section-detalle h1"),
			extract.Selector("h1"),
			extract.FromSlug("title", extract.FromPageURL(), navent.TitleSlugRE),
		),
		organization: extract.NewTextChain(
			extract.RejectMatching(extract.JSONLD("hiringOrganization", "name"), navent.ConfidentialRE),
			extract.Selector("#section-detalle .sc-dqbauf"),
			extract.Selector("#section-detalle a[href*='/empresa']"),
			extract.FromSlug("profile", extract.FromAttr("a[href*='/perfiles/empresa_']", "href"), navent.ProfileRE),
			extract.Marker(navent.ConfidentialRE, "Confidencial"),
		),
		location: extract.NewTextChain(
			extract.LabelValue("Ubicación"),
			extract.LabelValue("Lugar de trabajo"),
			extract.JSONLD("jobLocation", "address", "addressLocality"),
		),
		industry: extract.NewTextChain(
			extract.LabelValue("Industria"),
			extract.JSONLD("industry"),
		),
		published: extract.NewTextChain(
			extract.XPath(publishedXP),
			extract.XPath(anyPubXP),
			extract.JSONLD("datePosted"),
		),
		description: extract.NewTextChain(
			extract.AfterHeading(descHeadRE),
			extract.Paragraphs("#section-detalle article p, #section-detalle .descripcion p", 0, labelRE),
			extract.Paragraphs("#section-detalle p, main p", 20, labelRE),
			extract.JSONLD("description"),
		),
		benefits: extract.NewListChain(
			extract.ExcludeItems(extract.ListItems("#section-detalle ul:has(li p) li p"), benefitNoise...),
			extract.ExcludeItems(extract.ListItems("ul:has(li p) li p"), benefitNoise...),
		),
		tags: extract.NewListChain(
			extract.LabelValues("Modalidad de trabajo", "Tipo de puesto", "Jornada"),
			extract.AsList(extract.JSONLD("employmentType")),
		),
	}
}

// Search opens the filtered listing.
func (s *Site) Search(ctx context.Context, drv scrape.Driver, params scrape.SearchParams) error {
	target := s.SearchURL(params)
	s.logger.Debug("search", zap.String("url", target))
	return s.Open(ctx, drv, target)
}

// Extract reads one posting.
func (s *Site) Extract(ctx context.Context, drv scrape.Driver, url string) (scrape.Record, error) {
	doc, err := pipeline.LoadDetail(ctx, drv, url, s.Detail(), s.Timeouts)
	if err != nil {
		return scrape.Record{}, err
	}
	rec := scrape.Record{URL: url}
	var by struct{ title, org, published string }
	rec.Title, by.title = s.title.Run(doc)
	rec.Organization, by.org = s.organization.Run(doc)
	rec.Location, _ = s.location.Run(doc)
	rec.Industry, _ = s.industry.Run(doc)
	rec.PublishedText, by.published = s.published.Run(doc)
	rec.Description, _ = s.description.Run(doc)
	rec.Benefits, _ = s.benefits.Run(doc)
	rec.Tags, _ = s.tags.Run(doc)
	s.logger.Debug("extracted",
		zap.String("url", url),
		zap.String("title_by", by.title),
		zap.String("organization_by", by.org),
		zap.String("published_by", by.published),
	)
	return rec, nil
}
