package pipeline

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/difranardo/vacancies-scrapper/internal/extract"
	"github.com/difranardo/vacancies-scrapper/internal/normalize"
	"github.com/difranardo/vacancies-scrapper/internal/scrape"
)

// DismissPopups clicks the first match of each selector that is present.
// Banners are optional, so every failure is ignored.
func DismissPopups(ctx context.Context, drv scrape.Driver, selectors ...string) {
	for _, sel := range selectors {
		els, err := drv.QueryAll(ctx, sel)
		if err != nil || len(els) == 0 {
			continue
		}
		_ = drv.Click(ctx, els[0], popupClickTimeout)
	}
}

const popupClickTimeout = time.Second

// CollectLinks returns the absolute, fragment-free targets of every element
// matching selector that satisfy keep (nil keeps all), sorted and unique.
func CollectLinks(ctx context.Context, drv scrape.Driver, selector, attr string, keep func(string) bool) ([]string, error) {
	current, err := drv.URL(ctx)
	if err != nil {
		return nil, fmt.Errorf("current url: %w", err)
	}
	els, err := drv.QueryAll(ctx, selector)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	var out []string
	for _, el := range els {
		raw, ok, err := drv.Attr(ctx, el, attr)
		if err != nil || !ok {
			continue
		}
		abs, err := Resolve(current, raw)
		if err != nil {
			continue
		}
		if keep == nil || keep(abs) {
			out = append(out, abs)
		}
	}
	return normalize.SortedSet(out), nil
}

// Resolve makes ref absolute against base and drops its fragment.
func Resolve(base, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("empty link")
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse link %q: %w", ref, err)
	}
	if base != "" {
		baseURL, err := url.Parse(base)
		if err != nil {
			return "", fmt.Errorf("parse base %q: %w", base, err)
		}
		refURL = baseURL.ResolveReference(refURL)
	}
	refURL.Fragment = ""
	return refURL.String(), nil
}

// ClickNext clicks the first enabled match of selector and waits for the
// listing to reappear. It reports false when no enabled control exists.
func ClickNext(ctx context.Context, drv scrape.Driver, selector, listing string, t Timeouts) (bool, error) {
	els, err := drv.QueryAll(ctx, selector)
	if err != nil {
		return false, fmt.Errorf("query next: %w", err)
	}
	if len(els) == 0 {
		return false, nil
	}
	enabled, err := drv.IsEnabled(ctx, els[0])
	if err != nil {
		return false, fmt.Errorf("next enabled: %w", err)
	}
	if !enabled {
		return false, nil
	}
	before, _ := drv.URL(ctx)
	if err := drv.Click(ctx, els[0], t.Navigation); err != nil {
		return false, fmt.Errorf("click next: %w", err)
	}
	if before != "" {
		if err := waitURLChange(ctx, drv, before, t.Navigation); err != nil {
			return false, err
		}
	}
	if err := drv.WaitFor(ctx, listing, scrape.WaitOptions{State: scrape.WaitAttached, Timeout: t.Wait}); err != nil {
		return false, fmt.Errorf("wait next listing: %w", err)
	}
	return true, nil
}

const urlPollInterval = 50 * time.Millisecond

// waitURLChange polls the location until it differs from before or timeout
// elapses. Client-side routers update it after the click has returned.
func waitURLChange(ctx context.Context, drv scrape.Driver, before string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if after, err := drv.URL(ctx); err == nil && after != before {
			return nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("next page did not navigate: %w", scrape.ErrNavigationTimeout)
		}
		timer := time.NewTimer(min(urlPollInterval, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("wait next page: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

// DetailPage describes how a site recognises a loaded detail page.
type DetailPage struct {
	// Ready lists selectors, any of which signals the page has rendered.
	// They are grouped into a single wait.
	Ready []string
	// Unavailable matches body text of removed postings.
	Unavailable *regexp.Regexp
}

// LoadDetail navigates drv to pageURL, waits for one of the ready selectors
// and returns the parsed document. A navigation timeout is tolerated as long
// as the page becomes ready.
func LoadDetail(ctx context.Context, drv scrape.Driver, pageURL string, page DetailPage, t Timeouts) (*extract.Document, error) {
	if err := drv.Navigate(ctx, pageURL, t.Detail); err != nil && !scrape.IsTimeout(err) {
		return nil, fmt.Errorf("open detail: %w", err)
	}
	ready := true
	err := drv.WaitFor(ctx, strings.Join(page.Ready, ", "), scrape.WaitOptions{State: scrape.WaitAttached, Timeout: t.Detail})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("wait detail: %w", ctxErr)
		}
		ready = false
	}
	markup, err := drv.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("read detail: %w", err)
	}
	doc, err := extract.Parse(pageURL, markup)
	if err != nil {
		return nil, fmt.Errorf("parse detail: %w", err)
	}
	if page.Unavailable != nil && doc.Matches(page.Unavailable) {
		return nil, scrape.ErrDetailUnavailable
	}
	if !ready {
		return nil, scrape.ErrDetailTimeout
	}
	return doc, nil
}
