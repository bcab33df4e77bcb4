// Package dom implements scrape.Driver over static HTML snapshots using
// goquery. Loaders decide where the markup comes from (plain HTTP, fixtures).
package dom

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/difranardo/vacancies-scrapper/internal/scrape"
)

// Page is one loaded document.
type Page struct {
	URL  string
	Body []byte
}

// Loader fetches the markup for a URL. URL in the returned page is the final
// location after redirects.
type Loader interface {
	Load(ctx context.Context, url string) (Page, error)
}

// ErrClosed is returned by every call on a closed session.
var ErrClosed = errors.New("dom session closed")

// Session is a single-tab driver over snapshots produced by a Loader. Element
// handles index into the nodes queried since the last navigation.
type Session struct {
	loader Loader
	logger *zap.Logger

	mu      sync.Mutex
	current string
	doc     *goquery.Document
	nodes   []*html.Node
	closed  bool
}

var _ scrape.Driver = (*Session)(nil)

// NewSession builds a Session.
func NewSession(loader Loader, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{loader: loader, logger: logger.Named("dom")}
}

// Navigate loads rawURL and replaces the current document.
func (s *Session) Navigate(ctx context.Context, rawURL string, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.navigateLocked(ctx, rawURL, timeout)
}

func (s *Session) navigateLocked(ctx context.Context, rawURL string, timeout time.Duration) error {
	loadCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		loadCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	page, err := s.loader.Load(loadCtx, rawURL)
	if err != nil {
		// A failed load leaves a blank tab, as a browser would.
		s.doc = nil
		s.nodes = nil
		s.current = rawURL
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("navigate %s: %w", rawURL, scrape.ErrNavigationTimeout)
		}
		return fmt.Errorf("navigate %s: %w", rawURL, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return fmt.Errorf("parse %s: %w", rawURL, err)
	}
	s.doc = doc
	s.nodes = nil
	s.current = page.URL
	if s.current == "" {
		s.current = rawURL
	}
	s.logger.Debug("navigated", zap.String("url", s.current))
	return nil
}

// WaitFor succeeds when selector matches the current snapshot. A static
// document never changes, so a miss is reported immediately as a timeout.
func (s *Session) WaitFor(_ context.Context, selector string, opts scrape.WaitOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.doc == nil {
		return fmt.Errorf("wait for %q: %w", selector, scrape.ErrNavigationTimeout)
	}
	sel := s.doc.Find(selector)
	if opts.State == scrape.WaitVisible {
		sel = sel.FilterFunction(func(_ int, item *goquery.Selection) bool { return visible(item) })
	}
	if sel.Length() == 0 {
		return fmt.Errorf("wait for %q: %w", selector, scrape.ErrNavigationTimeout)
	}
	return nil
}

// QueryAll returns handles for every node matching selector.
func (s *Session) QueryAll(_ context.Context, selector string) ([]scrape.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.doc == nil {
		return nil, nil
	}
	var out []scrape.Element
	s.doc.Find(selector).Each(func(_ int, item *goquery.Selection) {
		s.nodes = append(s.nodes, item.Nodes[0])
		out = append(out, scrape.Element{ID: int64(len(s.nodes) - 1)})
	})
	return out, nil
}

// Text returns the element's text content, trimmed.
func (s *Session) Text(_ context.Context, el scrape.Element) (string, error) {
	sel, err := s.selection(el)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(sel.Text()), nil
}

// Attr returns an attribute value and whether it is present.
func (s *Session) Attr(_ context.Context, el scrape.Element, name string) (string, bool, error) {
	sel, err := s.selection(el)
	if err != nil {
		return "", false, err
	}
	v, ok := sel.Attr(name)
	return v, ok, nil
}

// Click follows the element's link target (href, data-href or data-path),
// resolved against the current URL. Elements without one are treated as
// in-page controls and the click is a no-op.
func (s *Session) Click(ctx context.Context, el scrape.Element, timeout time.Duration) error {
	sel, err := s.selection(el)
	if err != nil {
		return err
	}
	target := ""
	for _, attr := range []string{"href", "data-href", "data-path"} {
		if v, ok := sel.Attr(attr); ok && strings.TrimSpace(v) != "" && !strings.HasPrefix(v, "#") {
			target = strings.TrimSpace(v)
			break
		}
	}
	if target == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	next, err := resolve(s.current, target)
	if err != nil {
		return fmt.Errorf("click: %w", err)
	}
	return s.navigateLocked(ctx, next, timeout)
}

// IsEnabled reports false for disabled controls (disabled attribute,
// aria-disabled="true" or a "disabled" class).
func (s *Session) IsEnabled(_ context.Context, el scrape.Element) (bool, error) {
	sel, err := s.selection(el)
	if err != nil {
		return false, err
	}
	if _, ok := sel.Attr("disabled"); ok {
		return false, nil
	}
	if v, _ := sel.Attr("aria-disabled"); strings.EqualFold(v, "true") {
		return false, nil
	}
	return !sel.HasClass("disabled"), nil
}

// HTML returns the serialized current document.
func (s *Session) HTML(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}
	if s.doc == nil {
		return "", nil
	}
	out, err := s.doc.Html()
	if err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	return out, nil
}

// URL returns the location of the current document.
func (s *Session) URL(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}
	return s.current, nil
}

// Reload loads the current URL again.
func (s *Session) Reload(ctx context.Context, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.current == "" {
		return fmt.Errorf("reload: %w", scrape.ErrNavigationRejected)
	}
	return s.navigateLocked(ctx, s.current, timeout)
}

// Close releases the snapshot. Further calls fail with ErrClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.doc = nil
	s.nodes = nil
	return nil
}

func (s *Session) selection(el scrape.Element) (*goquery.Selection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.doc == nil || el.ID < 0 || el.ID >= int64(len(s.nodes)) {
		return nil, fmt.Errorf("element %d: %w", el.ID, scrape.ErrElementNotFound)
	}
	return s.doc.FindNodes(s.nodes[el.ID]), nil
}

func visible(sel *goquery.Selection) bool {
	for n := sel; n.Length() > 0; n = n.Parent() {
		if _, hidden := n.Attr("hidden"); hidden {
			return false
		}
		style, _ := n.Attr("style")
		style = strings.ReplaceAll(strings.ToLower(style), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return false
		}
	}
	return true
}

func resolve(base, ref string) (string, error) {
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse link %q: %w", ref, err)
	}
	if base == "" {
		return refURL.String(), nil
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base %q: %w", base, err)
	}
	return baseURL.ResolveReference(refURL).String(), nil
}
