// Package pipeline drives one provider through search, listing, detail
// extraction and pagination for a single job.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/difranardo/vacancies-scrapper/internal/hash/sha256"
	"github.com/difranardo/vacancies-scrapper/internal/headless/detector"
	"github.com/difranardo/vacancies-scrapper/internal/metrics"
	"github.com/difranardo/vacancies-scrapper/internal/normalize"
	"github.com/difranardo/vacancies-scrapper/internal/scrape"
)

// Config holds the pipeline collaborators. Only Timeouts are required.
type Config struct {
	Timeouts Timeouts
	// Limiter, when set, is awaited before every detail visit.
	Limiter scrape.Limiter
	// Snapshots, when set, receives the listing HTML of runs whose first
	// listing never appeared.
	Snapshots scrape.BlobStore
	Clock     scrape.Clock
	Observer  Observer
	Logger    *zap.Logger
}

// Pipeline runs a Site for one job.
type Pipeline struct {
	site     Site
	timeouts Timeouts
	limiter  scrape.Limiter
	blobs    scrape.BlobStore
	clock    scrape.Clock
	observer Observer
	logger   *zap.Logger
}

// New constructs a Pipeline for site.
func New(site Site, cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	observer := cfg.Observer
	if observer == nil {
		observer = NopObserver{}
	}
	return &Pipeline{
		site:     site,
		timeouts: cfg.Timeouts.WithDefaults(),
		limiter:  cfg.Limiter,
		blobs:    cfg.Snapshots,
		clock:    cfg.Clock,
		observer: observer,
		logger:   logger.Named("pipeline").With(zap.String("provider", site.ID())),
	}
}

// run is the per-job state of a Pipeline.
type run struct {
	*Pipeline
	jobID  string
	tabs   Tabs
	params scrape.SearchParams
	sink   scrape.ResultSink
	state  State
	seen   map[string]struct{}
	logger *zap.Logger
}

// Run executes the job. Cancellation through the sink, an empty listing,
// reaching the page limit and a pagination timeout all end the run with a
// nil error; only unrecoverable failures are returned.
func (p *Pipeline) Run(
	ctx context.Context,
	jobID string,
	tabs Tabs,
	params scrape.SearchParams,
	sink scrape.ResultSink,
) error {
	r := &run{
		Pipeline: p,
		jobID:    jobID,
		tabs:     tabs,
		params:   params,
		sink:     sink,
		state:    StateInit,
		seen:     make(map[string]struct{}),
		logger:   p.logger.With(zap.String("job_id", jobID)),
	}
	err := r.execute(ctx)
	r.transition(StateTerminated)
	if errors.Is(err, scrape.ErrCancelled) {
		r.logger.Info("job cancelled")
		return nil
	}
	return err
}

func (r *run) execute(ctx context.Context) error {
	r.transition(StateSearching)
	if err := r.site.Search(ctx, r.tabs.Listing, r.params); err != nil {
		if !scrape.IsTimeout(err) {
			return fmt.Errorf("search: %w", err)
		}
		// A slow boot is retried by the listing wait below.
		r.logger.Warn("search navigation timed out", zap.Error(err))
	}

	limit, bounded := r.params.PageLimit()
	for pageIndex := 1; ; pageIndex++ {
		urls, err := r.readListing(ctx)
		if errors.Is(err, scrape.ErrListingEmpty) {
			r.logger.Info("listing empty", zap.Int("page", pageIndex))
			if pageIndex == 1 {
				r.snapshot(ctx)
			}
			r.transition(StateDone)
			return nil
		}
		if err != nil {
			return fmt.Errorf("read listing page %d: %w", pageIndex, err)
		}
		r.transition(StateListingReady)

		page := scrape.ListingPage{PageIndex: pageIndex, DetailURLs: r.fresh(urls)}
		if err := r.extractPage(ctx, page); err != nil {
			return err
		}
		r.observer.PageDone(page)

		r.transition(StatePaginating)
		if err := r.checkStop(ctx); err != nil {
			return err
		}
		if bounded && pageIndex >= limit {
			r.logger.Debug("page limit reached", zap.Int("max_pages", limit))
			r.transition(StateDone)
			return nil
		}
		more, err := r.site.NextPage(ctx, r.tabs.Listing)
		if err != nil {
			if scrape.IsTimeout(err) {
				r.logger.Warn("pagination timed out", zap.Int("page", pageIndex), zap.Error(err))
				r.transition(StateDone)
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("paginate: %w", ctxErr)
			}
			return fmt.Errorf("paginate from page %d: %w", pageIndex, err)
		}
		if !more {
			r.transition(StateDone)
			return nil
		}
	}
}

// readListing waits for the listing and collects its URLs, reloading once
// when the wait expires or the listing is empty.
func (r *run) readListing(ctx context.Context) ([]string, error) {
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			r.logger.Debug("reloading listing")
			if err := r.tabs.Listing.Reload(ctx, r.timeouts.Navigation); err != nil && !scrape.IsTimeout(err) {
				return nil, fmt.Errorf("reload listing: %w", err)
			}
		}
		err := r.tabs.Listing.WaitFor(ctx, r.site.ListingSelector(), scrape.WaitOptions{
			State:   scrape.WaitAttached,
			Timeout: r.timeouts.Wait,
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if !scrape.IsTimeout(err) {
				return nil, err
			}
			continue
		}
		urls, err := r.site.DetailURLs(ctx, r.tabs.Listing)
		if err != nil && !scrape.IsTimeout(err) {
			return nil, fmt.Errorf("collect detail urls: %w", err)
		}
		if len(urls) > 0 {
			return urls, nil
		}
	}
	return nil, scrape.ErrListingEmpty
}

// fresh sorts urls and drops the ones already seen by this job.
func (r *run) fresh(urls []string) []string {
	out := make([]string, 0, len(urls))
	batch := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, ok := r.seen[u]; ok {
			continue
		}
		if _, ok := batch[u]; ok {
			continue
		}
		batch[u] = struct{}{}
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

func (r *run) extractPage(ctx context.Context, page scrape.ListingPage) error {
	for _, url := range page.DetailURLs {
		if err := r.checkStop(ctx); err != nil {
			return err
		}
		r.seen[url] = struct{}{}
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx, url); err != nil {
				return fmt.Errorf("rate limit %s: %w", url, err)
			}
		}
		r.transition(StateExtractingDetail)
		rec := r.extractDetail(ctx, url)
		r.sink.Append(rec)
		r.observer.RecordDone(rec)
		r.transition(StateListingReady)
	}
	return nil
}

func (r *run) extractDetail(ctx context.Context, url string) scrape.Record {
	if !r.site.IsDetailURL(url) {
		return r.errorRecord(url, scrape.ErrorNotADetailURL)
	}
	rec, err := r.site.Extract(ctx, r.tabs.Detail, url)
	if err != nil {
		kind := scrape.ErrorDetailUnavailable
		switch {
		case ctx.Err() != nil:
			kind = scrape.ErrorCancelled
		case scrape.IsTimeout(err):
			kind = scrape.ErrorDetailTimeout
		}
		r.logger.Warn("detail failed", zap.String("url", url), zap.String("kind", string(kind)), zap.Error(err))
		return r.errorRecord(url, kind)
	}
	rec.URL = url
	return r.finalize(rec)
}

func (r *run) errorRecord(url string, kind scrape.ErrorKind) scrape.Record {
	return scrape.Record{URL: url, Provider: r.site.ID(), Error: kind}
}

// finalize applies text, organization and date normalization.
func (r *run) finalize(rec scrape.Record) scrape.Record {
	rec.Provider = r.site.ID()
	rec.Title = normalize.CleanText(rec.Title)
	rec.Location = normalize.CleanText(rec.Location)
	rec.Industry = normalize.CleanText(rec.Industry)
	rec.Description = strings.TrimSpace(rec.Description)
	if rec.Organization != "" {
		rec.Organization = normalize.OrgName(rec.Organization)
	}
	rec.Benefits = normalize.Dedupe(rec.Benefits)
	rec.Requirements = normalize.Dedupe(rec.Requirements)
	rec.Tags = normalize.SortedSet(rec.Tags)
	rec.PublishedText = normalize.CleanText(rec.PublishedText)
	if rec.PublishedDate == nil && rec.PublishedText != "" {
		if d, ok := normalize.ParseDate(rec.PublishedText, r.now()); ok {
			rec.PublishedDate = &d
		}
	}
	return rec
}

// checkStop polls cooperative cancellation and process shutdown.
func (r *run) checkStop(ctx context.Context) error {
	if r.sink.CancelRequested() {
		return scrape.ErrCancelled
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("job interrupted: %w", err)
	}
	return nil
}

// snapshot classifies the markup of a listing that never showed results and
// stores it.
func (r *run) snapshot(ctx context.Context) {
	markup, err := r.tabs.Listing.HTML(ctx)
	if err != nil {
		r.logger.Warn("listing snapshot failed", zap.Error(err))
		return
	}
	var shell detector.Shell
	if s, ok := r.site.(ShellSite); ok {
		shell = s.ListingShell()
	}
	verdict, err := detector.New(shell).Classify(markup)
	if err != nil {
		r.logger.Debug("listing classification failed", zap.Error(err))
	}
	if verdict.NeedsBrowser() {
		r.logger.Warn("listing did not render; a browser driver may be required", zap.String("verdict", string(verdict)))
	} else {
		r.logger.Info("listing classified", zap.String("verdict", string(verdict)))
	}
	if r.blobs == nil {
		return
	}
	path := fmt.Sprintf("snapshots/%s/%s/listing.html", r.site.ID(), r.jobID)
	uri, err := r.blobs.PutObject(ctx, path, "text/html; charset=utf-8", strings.NewReader(markup))
	if err != nil {
		r.logger.Warn("listing snapshot upload failed", zap.Error(err))
		return
	}
	metrics.ObserveSnapshot(r.site.ID())
	r.logger.Info("listing snapshot stored",
		zap.String("uri", uri),
		zap.String("sha256", sha256.Hex([]byte(markup))),
	)
}

func (r *run) transition(to State) {
	if r.state == to {
		return
	}
	from := r.state
	r.state = to
	r.logger.Debug("state", zap.String("from", string(from)), zap.String("to", string(to)))
	r.observer.StateChanged(from, to)
}

func (r *run) now() time.Time {
	if r.clock == nil {
		return time.Now().UTC()
	}
	return r.clock.Now()
}
