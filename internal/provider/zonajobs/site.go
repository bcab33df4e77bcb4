// Package zonajobs scrapes www.zonajobs.com.ar.
package zonajobs

import (
	"context"
	"regexp"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/difranardo/vacancies-scrapper/internal/extract"
	"github.com/difranardo/vacancies-scrapper/internal/pipeline"
	"github.com/difranardo/vacancies-scrapper/internal/provider/navent"
	"github.com/difranardo/vacancies-scrapper/internal/scrape"
)

// ID is the provider id.
const ID = "zonajobs"

// BaseURL is the portal root.
const BaseURL = "https://www.zonajobs.com.ar/"

var (
	// Headings that are section labels rather than the posting title.
	badTitleRE = regexp.MustCompile(`(?i)(descripci[oó]n del puesto|publicado|actualizado)`)
	letterRE   = regexp.MustCompile(`[A-Za-zÁÉÍÓÚÑáéíóúñ]`)
)

const (
	companyBadgeXP = `(//span[starts-with(@data-url,'/perfiles/empresa_')]//*[contains(@class,'sc-glwGys')])[1]`
	companyTextXP  = `(//p[contains(@class,'sc-ktJJTZ') or contains(@class,'sc-gCeyOJ') or contains(@class,'sc-hyMgjL')])[1]`
	verifiedXP     = `(//p[.//div[contains(@class,'company-verified')]])[1]`
	publishedXP    = `(//*[@id='section-detalle']//*[not(*)][contains(., 'Publicado') or contains(., 'Actualizado')])[1]`
	descriptionXP  = `(//h3[contains(normalize-space(.), 'Descripción del puesto')])[1]/following-sibling::*[1]`
)

// Site implements pipeline.Site for ZonaJobs.
type Site struct {
	navent.Portal
	logger *zap.Logger

	title        *extract.Chain[string]
	organization *extract.Chain[string]
	location     *extract.Chain[string]
	published    *extract.Chain[string]
	description  *extract.Chain[string]
	benefits     *extract.Chain[[]string]
	tags         *extract.Chain[[]string]
	modality     *extract.Chain[string]
	companySize  *extract.Chain[string]
}

var (
	_ pipeline.Site      = (*Site)(nil)
	_ pipeline.ShellSite = (*Site)(nil)
)

// New builds the ZonaJobs site.
func New(timeouts pipeline.Timeouts, logger *zap.Logger) *Site {
	if logger == nil {
		logger = zap.NewNop()
	}
	heading := func(s extract.Strategy[string]) extract.Strategy[string] {
		return extract.Map(extract.RejectMatching(s, badTitleRE), reasonableTitle)
	}
	notConfidential := func(path ...string) extract.Strategy[string] {
		return extract.RejectMatching(extract.JSONLD(path...), navent.ConfidentialRE)
	}
	return &Site{
		Portal: navent.Portal{Name: ID, Base: BaseURL, Timeouts: timeouts.WithDefaults()},
		logger: logger.Named(ID),
		title: extract.NewTextChain(
			heading(extract.Selector("#section-detalle h1")),
			heading(extract.Selector("h1")),
			heading(extract.Selector("#section-detalle h2")),
			heading(extract.JSONLD("title")),
			extract.FromSlug("title", extract.FromPageURL(), navent.TitleSlugRE),
		),
		organization: extract.NewTextChain(
			notConfidential("hiringOrganization", "name"),
			notConfidential("organization", "name"),
			notConfidential("publisher", "name"),
			extract.XPath(companyBadgeXP),
			extract.XPath(companyTextXP),
			extract.XPath(verifiedXP),
			extract.FromSlug("profile", extract.FromAttr("[data-url^='/perfiles/empresa_']", "data-url"), navent.ProfileRE),
			extract.FromSlug("profile-link", extract.FromAttr("a[href^='/perfiles/empresa_']", "href"), navent.ProfileRE),
			extract.Marker(navent.ConfidentialRE, "Confidencial"),
		),
		location: extract.NewTextChain(
			extract.Selector("#section-detalle a:has(i[name='icon-light-location-pin']) h2"),
			extract.Selector("#section-detalle p.sc-sJJJd"),
			extract.JSONLD("jobLocation", "address", "addressLocality"),
			extract.LabelValue("Ubicación"),
		),
		published: extract.NewTextChain(
			extract.Selector("#section-detalle h2.sc-iKcCTQ"),
			extract.XPath(publishedXP),
			extract.JSONLD("datePosted"),
		),
		description: extract.NewTextChain(
			extract.XPath(descriptionXP),
			extract.Paragraphs("#section-detalle p", 21, nil),
			extract.JSONLD("description"),
		),
		benefits: extract.NewListChain(
			extract.ExcludeItems(extract.ListItems("#section-detalle ul:has(li p) li p"), "ver más", "postularme"),
		),
		tags: extract.NewListChain(
			extract.LabelValues("Modalidad de trabajo", "Tipo de puesto"),
			extract.AsList(extract.JSONLD("employmentType")),
		),
		modality: extract.NewTextChain(
			extract.LabelValue("Modalidad de trabajo"),
			extract.Selector("#section-detalle a:has(i[name='icon-light-office']) h2"),
		),
		companySize: extract.NewTextChain(
			extract.LabelValue("Cantidad de empleados"),
			extract.LabelValue("Tamaño de la empresa"),
		),
	}
}

// Search opens the filtered listing and falls back to the most recent
// postings when the filtered one never renders.
func (s *Site) Search(ctx context.Context, drv scrape.Driver, params scrape.SearchParams) error {
	target := s.SearchURL(params)
	s.logger.Debug("search", zap.String("url", target))
	if err := s.Open(ctx, drv, target); err != nil && !scrape.IsTimeout(err) {
		return err
	}
	err := drv.WaitFor(ctx, navent.ListingSelector, scrape.WaitOptions{State: scrape.WaitAttached, Timeout: s.Timeouts.Wait})
	if err == nil || !scrape.IsTimeout(err) || target == s.RecentURL() {
		return err
	}
	s.logger.Warn("search listing missing, falling back to recent postings", zap.String("url", target))
	return s.Open(ctx, drv, s.RecentURL())
}

// Extract reads one posting.
func (s *Site) Extract(ctx context.Context, drv scrape.Driver, url string) (scrape.Record, error) {
	doc, err := pipeline.LoadDetail(ctx, drv, url, s.Detail(), s.Timeouts)
	if err != nil {
		return scrape.Record{}, err
	}
	rec := scrape.Record{URL: url}
	var titleBy, orgBy string
	rec.Title, titleBy = s.title.Run(doc)
	rec.Organization, orgBy = s.organization.Run(doc)
	rec.Location, _ = s.location.Run(doc)
	rec.PublishedText, _ = s.published.Run(doc)
	rec.Description, _ = s.description.Run(doc)
	rec.Benefits, _ = s.benefits.Run(doc)
	rec.Tags, _ = s.tags.Run(doc)
	extras := map[string]string{}
	if v, _ := s.modality.Run(doc); v != "" {
		extras["modality"] = v
	}
	if v, _ := s.companySize.Run(doc); v != "" {
		extras["company_size"] = v
	}
	if len(extras) > 0 {
		rec.Extras = extras
	}
	s.logger.Debug("extracted",
		zap.String("url", url),
		zap.String("title_by", titleBy),
		zap.String("organization_by", orgBy),
	)
	return rec, nil
}

// reasonableTitle blanks values without letters or outside 3..140 runes.
func reasonableTitle(v string) string {
	n := utf8.RuneCountInString(v)
	if n < 3 || n > 140 || !letterRE.MatchString(v) {
		return ""
	}
	return v
}
