package extract

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

const detailHTML = `<html><head>
<script type="application/ld+json">
{"@context":"https://schema.org","@graph":[
  {"@type":"WebSite","name":"Portal"},
  {"@type":"JobPosting","title":"Analista de Datos","datePosted":"2025-06-01",
   "hiringOrganization":{"@type":"Organization","name":"Acme SA"},
   "jobLocation":[{"address":{"addressLocality":"Rosario"}}]}
]}
</script>
<script type="application/ld+json">not json</script>
</head><body>
<section id="section-detalle">
  <h1>  Analista   de Datos </h1>
  <div><p>Industria</p><p>Tecnología</p></div>
  <dl><dt>Modalidad</dt><dd>Remoto</dd></dl>
  <h3>Descripción del puesto</h3>
  <p>Buscamos una persona analista con experiencia en SQL.</p>
  <p>Buscamos una persona analista con experiencia en SQL.</p>
  <p>Ofrecemos crecimiento profesional y capacitación.</p>
  <h3>Beneficios</h3>
  <ul><li><p>Prepaga</p></li><li><p>Comedor</p></li><li><p>Prepaga</p></li><li><p>Ver más</p></li></ul>
  <a href="/perfiles/empresa_acme-sa_12345">Perfil</a>
</section>
</body></html>`

func mustParse(t *testing.T, url, markup string) *Document {
	t.Helper()
	doc, err := Parse(url, markup)
	require.NoError(t, err)
	return doc
}

func TestChainReturnsFirstAcceptedStrategy(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, "https://example.com/empleos/analista-de-datos-42.html", detailHTML)
	chain := NewTextChain(
		Selector(".does-not-exist"),
		JSONLD("hiringOrganization", "name"),
		Selector("h1"),
	)

	v, name := chain.Run(doc)
	require.Equal(t, "Acme SA", v)
	require.Equal(t, "jsonld:hiringOrganization.name", name)
}

func TestChainOrderIsRespected(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, "https://example.com/x", detailHTML)
	first := NewTextChain(Selector("h1"), JSONLD("title"))
	second := NewTextChain(JSONLD("title"), Selector("h1"))

	_, n1 := first.Run(doc)
	_, n2 := second.Run(doc)
	require.Equal(t, "css:h1", n1)
	require.Equal(t, "jsonld:title", n2)
	require.Equal(t, []string{"jsonld:title", "css:h1"}, second.Names())
}

func TestChainNoMatch(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, "https://example.com/x", "<html><body></body></html>")
	v, name := NewTextChain(Selector("h1"), JSONLD("title")).Run(doc)
	require.Empty(t, v)
	require.Empty(t, name)
}

func TestJSONLDNestedArrays(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, "https://example.com/x", detailHTML)
	v, _ := NewTextChain(JSONLD("jobLocation", "address", "addressLocality")).Run(doc)
	require.Equal(t, "Rosario", v)
}

func TestLabelValue(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, "https://example.com/x", detailHTML)
	v, _ := NewTextChain(LabelValue("Industria")).Run(doc)
	require.Equal(t, "Tecnología", v)

	v, _ = NewTextChain(LabelValue("Modalidad")).Run(doc)
	require.Equal(t, "Remoto", v)

	v, _ = NewTextChain(LabelValue("Salario")).Run(doc)
	require.Empty(t, v)
}

func TestXPath(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, "https://example.com/x", detailHTML)
	v, _ := NewTextChain(XPath(`//section[@id='section-detalle']/h1`)).Run(doc)
	require.Equal(t, "Analista de Datos", v)
}

func TestFromSlugAppliesStoplist(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, "https://example.com/empleos/analista-de-datos-42.html", detailHTML)

	title := FromSlug("title", FromPageURL(), regexp.MustCompile(`/empleos/([^/]+?)-\d+\.html$`))
	v, _ := NewTextChain(title).Run(doc)
	require.Equal(t, "analista de datos", v)

	org := FromSlug("org", FromAttr("a[href*='/perfiles/empresa_']", "href"),
		regexp.MustCompile(`/perfiles/([^/?#]+)`), "empresa")
	v, _ = NewTextChain(org).Run(doc)
	require.Equal(t, "acme sa 12345", v)
}

func TestMarkerFallback(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, "https://example.com/x", "<html><body><p>Empresa Confidencial</p></body></html>")
	v, name := NewTextChain(
		JSONLD("hiringOrganization", "name"),
		Marker(regexp.MustCompile(`(?i)\bconfidencial\b`), "Confidencial"),
	).Run(doc)
	require.Equal(t, "Confidencial", v)
	require.Equal(t, "marker:Confidencial", name)
}

func TestRejectMatchingFallsThrough(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, "https://example.com/empleos/cajero-7.html",
		"<html><body><h1>Descripción del puesto</h1></body></html>")
	bad := regexp.MustCompile(`(?i)descripci[oó]n del puesto|publicado|actualizado`)
	v, name := NewTextChain(
		RejectMatching(Selector("h1"), bad),
		FromSlug("title", FromPageURL(), regexp.MustCompile(`/empleos/([^/]+?)-\d+\.html$`)),
	).Run(doc)
	require.Equal(t, "cajero", v)
	require.Equal(t, "slug:title", name)
}

func TestDescriptionStrategies(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, "https://example.com/x", detailHTML)

	v, _ := NewTextChain(AfterHeading(regexp.MustCompile(`(?i)descripci[oó]n del puesto`))).Run(doc)
	require.Equal(t,
		"Buscamos una persona analista con experiencia en SQL.\n\nOfrecemos crecimiento profesional y capacitación.", v)

	label := regexp.MustCompile(`(?i)^(ubicaci[oó]n|industria|publicado|actualizado)$`)
	v, _ = NewTextChain(Paragraphs("#section-detalle p", 20, label)).Run(doc)
	require.Equal(t,
		"Buscamos una persona analista con experiencia en SQL.\n\nOfrecemos crecimiento profesional y capacitación.", v)
}

func TestListChainDedupesAndExcludes(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, "https://example.com/x", detailHTML)
	v, name := NewListChain(
		ListItems("ul.missing li"),
		ExcludeItems(ListItems("ul:has(li p) li p"), "ver más", "postularme"),
	).Run(doc)
	require.Equal(t, []string{"Prepaga", "Comedor"}, v)
	require.Equal(t, "items:ul:has(li p) li p", name)
}

func TestParseToleratesBrokenMarkup(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, "https://example.com/x", "<div><p>unterminated <b>bold")
	require.Equal(t, "unterminated bold", doc.BodyText())
	require.Empty(t, doc.JSONLD())
}

func TestLabelValuesAndAsList(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, "https://example.com/x", detailHTML)
	tags, name := NewListChain(
		LabelValues("Jornada", "Industria", "Modalidad"),
		AsList(JSONLD("title")),
	).Run(doc)
	require.Equal(t, []string{"Tecnología", "Remoto"}, tags)
	require.Equal(t, "labels:Jornada,Industria,Modalidad", name)

	fallback, name := NewListChain(LabelValues("Jornada"), AsList(JSONLD("datePosted"))).Run(doc)
	require.Equal(t, []string{"2025-06-01"}, fallback)
	require.Equal(t, "jsonld:datePosted", name)
}
