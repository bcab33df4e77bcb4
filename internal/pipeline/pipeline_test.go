package pipeline

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	drivermemory "github.com/difranardo/vacancies-scrapper/internal/driver/memory"
	"github.com/difranardo/vacancies-scrapper/internal/extract"
	"github.com/difranardo/vacancies-scrapper/internal/headless/detector"
	"github.com/difranardo/vacancies-scrapper/internal/scrape"
	storagememory "github.com/difranardo/vacancies-scrapper/internal/storage/memory"
)

const siteBase = "https://sitea.test"

var fixedNow = time.Date(2025, 6, 10, 15, 0, 0, 0, time.UTC)

type fixedClock struct{}

func (fixedClock) Now() time.Time { return fixedNow }

// siteA is a minimal provider over memory fixtures.
type siteA struct {
	timeouts Timeouts
	detail   DetailPage
}

func newSiteA() *siteA {
	return &siteA{
		timeouts: Timeouts{Navigation: time.Second, Wait: time.Second, Detail: time.Second},
		detail: DetailPage{
			Ready:       []string{"#detail"},
			Unavailable: regexp.MustCompile(`(?i)aviso no disponible`),
		},
	}
}

func (s *siteA) ID() string { return "siteA" }

func (s *siteA) Search(ctx context.Context, drv scrape.Driver, params scrape.SearchParams) error {
	return drv.Navigate(ctx, siteBase+"/search?q="+params.Query, s.timeouts.Navigation)
}

func (s *siteA) ListingSelector() string { return "ul.jobs a" }

func (s *siteA) DetailURLs(ctx context.Context, drv scrape.Driver) ([]string, error) {
	return CollectLinks(ctx, drv, "ul.jobs a", "href", nil)
}

func (s *siteA) NextPage(ctx context.Context, drv scrape.Driver) (bool, error) {
	return ClickNext(ctx, drv, "a.next", s.ListingSelector(), s.timeouts)
}

func (s *siteA) IsDetailURL(url string) bool { return strings.Contains(url, "/job/") }

func (s *siteA) Extract(ctx context.Context, drv scrape.Driver, url string) (scrape.Record, error) {
	doc, err := LoadDetail(ctx, drv, url, s.detail, s.timeouts)
	if err != nil {
		return scrape.Record{}, err
	}
	title, _ := extract.NewTextChain(extract.Selector("#detail h1")).Run(doc)
	org, _ := extract.NewTextChain(extract.Selector(".org")).Run(doc)
	published, _ := extract.NewTextChain(extract.Selector(".published")).Run(doc)
	return scrape.Record{
		Title:         title,
		Organization:  org,
		PublishedText: published,
		Tags:          []string{"b", "a", "b"},
	}, nil
}

func listingPage(next string, jobs ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><ul class="jobs">`)
	for _, j := range jobs {
		fmt.Fprintf(&b, `<li><a href="%s">%s</a></li>`, j, j)
	}
	b.WriteString(`</ul>`)
	if next != "" {
		fmt.Fprintf(&b, `<a class="next" href="%s">Siguiente</a>`, next)
	}
	b.WriteString(`</body></html>`)
	return b.String()
}

func detailPage(title string) string {
	return `<html><body><div id="detail"><h1>` + title + `</h1>` +
		`<span class="org">empresa-acme-sa-12345</span>` +
		`<span class="published">Publicado hace 2 días</span></div></body></html>`
}

// newFixture serves three listing pages: /job/1-3 (3 unavailable), then
// /job/4 plus a repeat of /job/1, then /job/5.
func newFixture() *drivermemory.Site {
	site := drivermemory.NewSite()
	site.Add(siteBase+"/search?q=analyst", listingPage("/search?q=analyst&page=2", "/job/2", "/job/1", "/job/3#top"))
	site.Add(siteBase+"/search?q=analyst&page=2", listingPage("/search?q=analyst&page=3", "/job/4", "/job/1"))
	site.Add(siteBase+"/search?q=analyst&page=3", listingPage("", "/job/5"))
	for i := 1; i <= 5; i++ {
		site.Add(fmt.Sprintf("%s/job/%d", siteBase, i), detailPage(fmt.Sprintf("Analyst %d", i)))
	}
	site.Add(siteBase+"/job/3", `<html><body><p>Aviso no disponible</p></body></html>`)
	return site
}

type recordingSink struct {
	mu          sync.Mutex
	records     []scrape.Record
	cancelAfter int
}

func (s *recordingSink) Append(rec scrape.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
}

func (s *recordingSink) CancelRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelAfter > 0 && len(s.records) >= s.cancelAfter
}

func (s *recordingSink) urls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.URL)
	}
	return out
}

type recordingObserver struct {
	states  []State
	pages   []scrape.ListingPage
	records int
}

func (o *recordingObserver) StateChanged(_, to State) { o.states = append(o.states, to) }

func (o *recordingObserver) PageDone(page scrape.ListingPage) { o.pages = append(o.pages, page) }

func (o *recordingObserver) RecordDone(scrape.Record) { o.records++ }

type countingLimiter struct{ calls int }

func (l *countingLimiter) Wait(context.Context, string) error {
	l.calls++
	return nil
}

func openTabs(t *testing.T, site *drivermemory.Site) Tabs {
	t.Helper()
	factory := drivermemory.NewFactory(site, zap.NewNop())
	listing, err := factory.Open(context.Background(), scrape.SessionOptions{})
	require.NoError(t, err)
	detail, err := factory.Open(context.Background(), scrape.SessionOptions{})
	require.NoError(t, err)
	return Tabs{Listing: listing, Detail: detail}
}

func pages(n int) *int { return &n }

func TestRunSiteAOnePage(t *testing.T) {
	t.Parallel()

	fixture := newFixture()
	observer := &recordingObserver{}
	limiter := &countingLimiter{}
	p := New(newSiteA(), Config{
		Timeouts: Timeouts{Wait: time.Second},
		Clock:    fixedClock{},
		Observer: observer,
		Limiter:  limiter,
		Logger:   zap.NewNop(),
	})
	sink := &recordingSink{}

	err := p.Run(context.Background(), "job-1", openTabs(t, fixture), scrape.SearchParams{
		ProviderID: "siteA",
		Query:      "analyst",
		MaxPages:   pages(1),
	}, sink)
	require.NoError(t, err)

	require.Equal(t, []string{siteBase + "/job/1", siteBase + "/job/2", siteBase + "/job/3"}, sink.urls())
	job := scrape.Job{Results: sink.records}
	require.Len(t, job.Accepted(), 2)
	require.Len(t, job.Diagnostics(), 1)
	require.Equal(t, scrape.ErrorDetailUnavailable, job.Diagnostics()[0].Error)

	first := job.Accepted()[0]
	require.Equal(t, "siteA", first.Provider)
	require.Equal(t, "Analyst 1", first.Title)
	require.Equal(t, "Acme SA", first.Organization)
	require.Equal(t, []string{"a", "b"}, first.Tags)
	require.NotNil(t, first.PublishedDate)
	require.Equal(t, time.Date(2025, 6, 8, 0, 0, 0, 0, time.UTC), *first.PublishedDate)

	require.Zero(t, fixture.Visits(siteBase+"/search?q=analyst&page=2"))
	require.Equal(t, 3, limiter.calls)
	require.Len(t, observer.pages, 1)
	require.Equal(t, 3, observer.records)
	require.Equal(t, StateSearching, observer.states[0])
	require.Equal(t, StateDone, observer.states[len(observer.states)-2])
	require.Equal(t, StateTerminated, observer.states[len(observer.states)-1])
}

func TestRunHonorsMaxPagesAndDedupes(t *testing.T) {
	t.Parallel()

	fixture := newFixture()
	sink := &recordingSink{}
	p := New(newSiteA(), Config{Clock: fixedClock{}})

	err := p.Run(context.Background(), "job-2", openTabs(t, fixture), scrape.SearchParams{
		Query:    "analyst",
		MaxPages: pages(2),
	}, sink)
	require.NoError(t, err)

	require.Equal(t, []string{
		siteBase + "/job/1", siteBase + "/job/2", siteBase + "/job/3", siteBase + "/job/4",
	}, sink.urls())
	require.Equal(t, 1, fixture.Visits(siteBase+"/job/1"))
	require.Zero(t, fixture.Visits(siteBase+"/search?q=analyst&page=3"))
}

func TestRunUnboundedExhaustsPagination(t *testing.T) {
	t.Parallel()

	fixture := newFixture()
	sink := &recordingSink{}
	err := New(newSiteA(), Config{}).Run(context.Background(), "job-3", openTabs(t, fixture),
		scrape.SearchParams{Query: "analyst"}, sink)
	require.NoError(t, err)
	require.Len(t, sink.urls(), 5)
}

func TestRunStopsAtItemGranularityOnCancel(t *testing.T) {
	t.Parallel()

	fixture := newFixture()
	sink := &recordingSink{cancelAfter: 1}
	err := New(newSiteA(), Config{}).Run(context.Background(), "job-4", openTabs(t, fixture),
		scrape.SearchParams{Query: "analyst"}, sink)
	require.NoError(t, err)

	require.Equal(t, []string{siteBase + "/job/1"}, sink.urls())
	require.Zero(t, fixture.Visits(siteBase+"/job/2"))
	require.Zero(t, fixture.Visits(siteBase+"/search?q=analyst&page=2"))
}

func TestRunReloadsListingOnce(t *testing.T) {
	t.Parallel()

	fixture := drivermemory.NewSite()
	fixture.Add(siteBase+"/search?q=analyst",
		`<html><body><p>Cargando…</p></body></html>`,
		listingPage("", "/job/1"))
	fixture.Add(siteBase+"/job/1", detailPage("Analyst"))

	sink := &recordingSink{}
	err := New(newSiteA(), Config{}).Run(context.Background(), "job-5", openTabs(t, fixture),
		scrape.SearchParams{Query: "analyst"}, sink)
	require.NoError(t, err)
	require.Equal(t, 2, fixture.Visits(siteBase+"/search?q=analyst"))
	require.Equal(t, []string{siteBase + "/job/1"}, sink.urls())
}

func TestRunEmptyListingStoresSnapshot(t *testing.T) {
	t.Parallel()

	fixture := drivermemory.NewSite()
	fixture.Add(siteBase+"/search?q=analyst", `<html><body><p>Sin resultados</p></body></html>`)
	blobs := storagememory.NewBlobStore()

	sink := &recordingSink{}
	err := New(newSiteA(), Config{Snapshots: blobs}).Run(context.Background(), "job-6",
		openTabs(t, fixture), scrape.SearchParams{Query: "analyst"}, sink)
	require.NoError(t, err)
	require.Empty(t, sink.urls())
	require.Equal(t, 2, fixture.Visits(siteBase+"/search?q=analyst"))

	body, ok := blobs.Object("snapshots/siteA/job-6/listing.html")
	require.True(t, ok)
	require.Contains(t, string(body), "Sin resultados")
}

// shellSiteA describes its listing so empty pages can be classified.
type shellSiteA struct{ *siteA }

func (shellSiteA) ListingShell() detector.Shell {
	return detector.Shell{
		Container: "ul.jobs",
		Item:      "a",
		NoResults: regexp.MustCompile(`(?i)sin resultados`),
	}
}

func TestRunClassifiesEmptyListing(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		markup string
		level  zapcore.Level
		want   detector.Verdict
	}{
		"unrendered container": {
			markup: `<html><body><ul class="jobs"><li class="skeleton"></li></ul></body></html>`,
			level:  zapcore.WarnLevel,
			want:   detector.VerdictBootShell,
		},
		"site reports no results": {
			markup: `<html><body><ul class="jobs"></ul><p>Sin resultados</p></body></html>`,
			level:  zapcore.InfoLevel,
			want:   detector.VerdictNoResults,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			fixture := drivermemory.NewSite()
			fixture.Add(siteBase+"/search?q=analyst", tc.markup)
			core, logs := observer.New(zapcore.InfoLevel)

			err := New(shellSiteA{newSiteA()}, Config{Logger: zap.New(core)}).Run(context.Background(), "job-9",
				openTabs(t, fixture), scrape.SearchParams{Query: "analyst"}, &recordingSink{})
			require.NoError(t, err)

			var verdicts []string
			for _, entry := range logs.All() {
				if v, ok := entry.ContextMap()["verdict"]; ok {
					require.Equal(t, tc.level, entry.Level)
					verdicts = append(verdicts, v.(string))
				}
			}
			require.Equal(t, []string{string(tc.want)}, verdicts)
		})
	}
}

func TestRunClassifiesItemErrors(t *testing.T) {
	t.Parallel()

	fixture := drivermemory.NewSite()
	fixture.Add(siteBase+"/search?q=analyst", listingPage("", "/about", "/job/1", "/job/2"))
	fixture.Add(siteBase+"/job/1", detailPage("Analyst"))
	fixture.Fail(siteBase+"/job/2", scrape.ErrNavigationTimeout)

	sink := &recordingSink{}
	err := New(newSiteA(), Config{}).Run(context.Background(), "job-7", openTabs(t, fixture),
		scrape.SearchParams{Query: "analyst"}, sink)
	require.NoError(t, err)

	kinds := map[string]scrape.ErrorKind{}
	for _, rec := range sink.records {
		kinds[rec.URL] = rec.Error
	}
	require.Equal(t, map[string]scrape.ErrorKind{
		siteBase + "/about": scrape.ErrorNotADetailURL,
		siteBase + "/job/1": scrape.ErrorNone,
		siteBase + "/job/2": scrape.ErrorDetailTimeout,
	}, kinds)
}

func TestRunPaginationTimeoutEndsNormally(t *testing.T) {
	t.Parallel()

	fixture := drivermemory.NewSite()
	fixture.Add(siteBase+"/search?q=analyst", listingPage("/search?q=analyst&page=2", "/job/1"))
	fixture.Fail(siteBase+"/search?q=analyst&page=2", scrape.ErrNavigationTimeout)
	fixture.Add(siteBase+"/job/1", detailPage("Analyst"))

	sink := &recordingSink{}
	err := New(newSiteA(), Config{}).Run(context.Background(), "job-8", openTabs(t, fixture),
		scrape.SearchParams{Query: "analyst"}, sink)
	require.NoError(t, err)
	require.Equal(t, []string{siteBase + "/job/1"}, sink.urls())
}

func TestRunSearchFailureIsReturned(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection refused")
	fixture := drivermemory.NewSite().Fail(siteBase+"/search?q=analyst", boom)
	err := New(newSiteA(), Config{}).Run(context.Background(), "job-9", openTabs(t, fixture),
		scrape.SearchParams{Query: "analyst"}, &recordingSink{})
	require.ErrorIs(t, err, boom)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	fixture := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	sink := &cancellingSink{cancel: cancel}
	err := New(newSiteA(), Config{}).Run(ctx, "job-10", openTabs(t, fixture),
		scrape.SearchParams{Query: "analyst"}, sink)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, sink.records, 1)
}

type cancellingSink struct {
	recordingSink
	cancel context.CancelFunc
}

func (s *cancellingSink) Append(rec scrape.Record) {
	s.recordingSink.Append(rec)
	s.cancel()
}
