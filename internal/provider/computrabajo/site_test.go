package computrabajo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	drivermemory "github.com/difranardo/vacancies-scrapper/internal/driver/memory"
	"github.com/difranardo/vacancies-scrapper/internal/headless/detector"
	"github.com/difranardo/vacancies-scrapper/internal/pipeline"
	"github.com/difranardo/vacancies-scrapper/internal/scrape"
)

var testTimeouts = pipeline.Timeouts{Navigation: time.Second, Wait: time.Second, Detail: time.Second}

const (
	searchURL = BaseURL + "trabajo-de-desarrollador-go-en-rosario"
	page2URL  = BaseURL + "trabajo-de-desarrollador-go-en-rosario?p=2"
	offerURL  = BaseURL + "ofertas-de-trabajo/oferta-de-trabajo-de-desarrollador-go-en-rosario-ABC123"
	offer2URL = BaseURL + "ofertas-de-trabajo/oferta-de-trabajo-de-backend-en-rosario-DEF456"
)

const listingPage1 = `<html><body>
<div class="popup_webpush"><button class="reject">Ahora no</button></div>
<article class="box_offer"><h2><a class="js-o-link" href="/ofertas-de-trabajo/oferta-de-trabajo-de-desarrollador-go-en-rosario-ABC123#lc=ListOffers-Score-1">Desarrollador Go</a></h2></article>
<article class="box_offer"><h2><a class="js-o-link" href="/empresas/ofertas-de-trabajo-de-acme">Acme</a></h2></article>
<span class="b_primary w48 buildLink cp" title="Siguiente" data-path="/trabajo-de-desarrollador-go-en-rosario?p=2"></span>
</body></html>`

const listingPage2 = `<html><body>
<article class="box_offer"><h2><a class="js-o-link" href="/ofertas-de-trabajo/oferta-de-trabajo-de-backend-en-rosario-DEF456">Backend</a></h2></article>
</body></html>`

const offerHTML = `<html><body>
<main class="detail_fs">
  <h1>Desarrollador Go</h1>
  <div class="container"><p class="fs16">Globant - Rosario, Santa Fe</p></div>
  <div class="mbB">
    <span class="tag">$ 900.000 (Mensual)</span>
    <span class="tag">Contrato por tiempo indeterminado</span>
    <span class="tag">Jornada completa</span>
    <span class="tag">Presencial y remoto</span>
  </div>
  <div div-link="oferta">
    <p class="mbB">Buscamos desarrollador backend con Go y PostgreSQL.</p>
    <ul class="disc mbB"><li>3 años de experiencia</li><li>Inglés intermedio</li></ul>
    <p class="fc_aux fs13">Actualizada</p>
    <p class="fc_aux fs13">Hace 2 días</p>
  </div>
</main>
</body></html>`

func open(t *testing.T, site *drivermemory.Site) scrape.Driver {
	t.Helper()
	drv, err := drivermemory.NewFactory(site, zap.NewNop()).Open(context.Background(), scrape.SessionOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = drv.Close() })
	return drv
}

func TestSearchURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		params scrape.SearchParams
		want   string
	}{
		{scrape.SearchParams{Query: "Desarrollador Go", Location: "Rosario"}, searchURL},
		{scrape.SearchParams{Query: "Diseño Gráfico"}, BaseURL + "trabajo-de-diseno-grafico"},
		{scrape.SearchParams{Location: "Capital Federal"}, BaseURL + "empleos-en-capital-federal"},
		{scrape.SearchParams{}, BaseURL + "ofertas-de-trabajo/"},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, SearchURL(tc.params))
	}
}

func TestListingAndPagination(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	site := drivermemory.NewSite().Add(searchURL, listingPage1).Add(page2URL, listingPage2)
	drv := open(t, site)
	s := New(testTimeouts, zap.NewNop())

	require.NoError(t, s.Search(ctx, drv, scrape.SearchParams{Query: "desarrollador go", Location: "Rosario"}))
	urls, err := s.DetailURLs(ctx, drv)
	require.NoError(t, err)
	require.Equal(t, []string{offerURL}, urls)

	more, err := s.NextPage(ctx, drv)
	require.NoError(t, err)
	require.True(t, more)
	current, err := drv.URL(ctx)
	require.NoError(t, err)
	require.Equal(t, page2URL, current)

	urls, err = s.DetailURLs(ctx, drv)
	require.NoError(t, err)
	require.Equal(t, []string{offer2URL}, urls)

	more, err = s.NextPage(ctx, drv)
	require.NoError(t, err)
	require.False(t, more)
}

func TestNextPageListingMissing(t *testing.T) {
	t.Parallel()

	site := drivermemory.NewSite().Add(searchURL, listingPage1).Add(page2URL, `<html><body></body></html>`)
	drv := open(t, site)
	s := New(testTimeouts, zap.NewNop())
	require.NoError(t, s.Search(context.Background(), drv, scrape.SearchParams{Query: "desarrollador go", Location: "rosario"}))

	_, err := s.NextPage(context.Background(), drv)
	require.ErrorIs(t, err, scrape.ErrNavigationTimeout)
}

func TestIsDetailURL(t *testing.T) {
	t.Parallel()

	s := New(testTimeouts, nil)
	require.True(t, s.IsDetailURL(offerURL))
	require.False(t, s.IsDetailURL(BaseURL+"ofertas-de-trabajo/"))
	require.False(t, s.IsDetailURL(BaseURL+"empresas/ofertas-de-trabajo-de-acme"))
}

func TestExtract(t *testing.T) {
	t.Parallel()

	site := drivermemory.NewSite().Add(offerURL, offerHTML)
	rec, err := New(testTimeouts, zap.NewNop()).Extract(context.Background(), open(t, site), offerURL)
	require.NoError(t, err)

	require.Equal(t, "Desarrollador Go", rec.Title)
	require.Equal(t, "Globant", rec.Organization)
	require.Equal(t, "Rosario, Santa Fe", rec.Location)
	require.Equal(t, "Hace 2 días", rec.PublishedText)
	require.Equal(t, "Buscamos desarrollador backend con Go y PostgreSQL.", rec.Description)
	require.Equal(t, []string{"3 años de experiencia", "Inglés intermedio"}, rec.Requirements)
	require.Len(t, rec.Tags, 4)
	require.Equal(t, map[string]string{
		"salary":   "$ 900.000 (Mensual)",
		"contract": "Contrato por tiempo indeterminado",
		"schedule": "Jornada completa",
		"modality": "Presencial y remoto",
	}, rec.Extras)
}

func TestExtractMissingPanel(t *testing.T) {
	t.Parallel()

	site := drivermemory.NewSite().Add(offerURL, `<html><body><p>Cargando…</p></body></html>`)
	_, err := New(testTimeouts, zap.NewNop()).Extract(context.Background(), open(t, site), offerURL)
	require.ErrorIs(t, err, scrape.ErrDetailTimeout)
}

func TestTagsToExtras(t *testing.T) {
	t.Parallel()

	require.Nil(t, tagsToExtras(nil))
	require.Equal(t, map[string]string{"salary": "A convenir"}, tagsToExtras([]string{" A  convenir "}))
}

func TestListingShellClassifiesFixtures(t *testing.T) {
	t.Parallel()

	det := detector.New(New(pipeline.Timeouts{}, zap.NewNop()).ListingShell())
	cases := map[string]struct {
		markup string
		want   detector.Verdict
	}{
		"rendered listing":  {markup: listingPage1, want: detector.VerdictUnknown},
		"offers not loaded": {markup: `<html><body><div id="offers"><div class="spinner"></div></div><script src="/js/list.js"></script></body></html>`, want: detector.VerdictBootShell},
		"no offers":         {markup: `<html><body><div id="offers"><p>No se encontraron ofertas de empleo</p></div></body></html>`, want: detector.VerdictNoResults},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got, err := det.Classify(tc.markup)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}
