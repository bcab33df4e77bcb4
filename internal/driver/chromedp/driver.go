// Package chromedpdriver drives a real Chrome instance through chromedp so
// JavaScript-rendered listings can be scraped.
package chromedpdriver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/difranardo/vacancies-scrapper/internal/scrape"
)

// Config controls the behavior of the browser driver.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	// OperationTimeout bounds queries and reads that carry no explicit timeout.
	OperationTimeout time.Duration
}

// Factory owns the browser allocators and hands out one tab per job.
type Factory struct {
	cfg     Config
	logger  *zap.Logger
	limiter chan struct{}

	mu         sync.Mutex
	allocators map[bool]allocator
	// holders counts open tabs per job; a job holds one slot for all of them.
	holders map[string]int
}

type allocator struct {
	ctx    context.Context
	cancel context.CancelFunc
}

var _ scrape.DriverFactory = (*Factory)(nil)

// New creates a Factory. Browsers are started lazily on the first Open.
func New(cfg Config, logger *zap.Logger) (*Factory, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}
	return &Factory{
		cfg:        cfg,
		logger:     logger.Named("chromedp"),
		limiter:    limiter,
		allocators: make(map[bool]allocator),
		holders:    make(map[string]int),
	}, nil
}

// Open starts a new tab. Tabs of the same job share one browser slot; Open
// blocks while MaxParallel jobs hold tabs.
func (f *Factory) Open(ctx context.Context, opts scrape.SessionOptions) (scrape.Driver, error) {
	if err := f.acquire(ctx, opts.JobID); err != nil {
		return nil, err
	}
	tabCtx, tabCancel := chromedp.NewContext(f.allocator(opts.Headless))
	// The first Run binds the tab to tabCtx; it must not carry a timeout.
	if err := chromedp.Run(tabCtx, f.setupAction()); err != nil {
		tabCancel()
		f.release(opts.JobID)
		return nil, fmt.Errorf("open tab: %w", err)
	}
	f.logger.Debug("tab opened", zap.String("job_id", opts.JobID), zap.Bool("headless", opts.Headless))
	return &Session{
		tab:        tabCtx,
		cancel:     tabCancel,
		release:    sync.OnceFunc(func() { f.release(opts.JobID) }),
		navTimeout: f.cfg.NavigationTimeout,
		opTimeout:  f.cfg.OperationTimeout,
	}, nil
}

// Close shuts down every browser started by the factory.
func (f *Factory) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, a := range f.allocators {
		a.cancel()
		delete(f.allocators, key)
	}
}

func (f *Factory) allocator(headless bool) context.Context {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.allocators[headless]; ok {
		return a.ctx
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	ctx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	f.allocators[headless] = allocator{ctx: ctx, cancel: cancel}
	return ctx
}

func (f *Factory) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (f *Factory) acquire(ctx context.Context, jobID string) error {
	if f.limiter == nil {
		return nil
	}
	if jobID != "" {
		f.mu.Lock()
		if n := f.holders[jobID]; n > 0 {
			f.holders[jobID] = n + 1
			f.mu.Unlock()
			return nil
		}
		f.mu.Unlock()
	}
	select {
	case f.limiter <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("browser slot wait canceled: %w", ctx.Err())
	}
	if jobID == "" {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.holders[jobID] > 0 {
		// Another tab of the job took a slot meanwhile.
		<-f.limiter
	}
	f.holders[jobID]++
	return nil
}

func (f *Factory) release(jobID string) {
	if f.limiter == nil {
		return
	}
	if jobID != "" {
		f.mu.Lock()
		n := f.holders[jobID] - 1
		if n > 0 {
			f.holders[jobID] = n
			f.mu.Unlock()
			return
		}
		delete(f.holders, jobID)
		f.mu.Unlock()
	}
	select {
	case <-f.limiter:
	default:
	}
}

// Session is one browser tab.
type Session struct {
	tab        context.Context
	cancel     context.CancelFunc
	release    func()
	navTimeout time.Duration
	opTimeout  time.Duration

	mu     sync.Mutex
	nodes  []*cdp.Node
	closed bool
}

var _ scrape.Driver = (*Session)(nil)

// Navigate loads url and waits for the document body.
func (s *Session) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	s.resetNodes()
	return s.run(ctx, s.orNav(timeout), "navigate "+url,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// WaitFor blocks until selector is attached (or visible) or the wait expires.
func (s *Session) WaitFor(ctx context.Context, selector string, opts scrape.WaitOptions) error {
	action := chromedp.WaitReady(selector, chromedp.ByQuery)
	if opts.State == scrape.WaitVisible {
		action = chromedp.WaitVisible(selector, chromedp.ByQuery)
	}
	return s.run(ctx, s.orOp(opts.Timeout), fmt.Sprintf("wait for %q", selector), action)
}

// QueryAll returns handles to every node currently matching selector.
func (s *Session) QueryAll(ctx context.Context, selector string) ([]scrape.Element, error) {
	var nodes []*cdp.Node
	err := s.run(ctx, s.opTimeout, fmt.Sprintf("query %q", selector),
		chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)),
	)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]scrape.Element, 0, len(nodes))
	for _, n := range nodes {
		s.nodes = append(s.nodes, n)
		out = append(out, scrape.Element{ID: int64(len(s.nodes) - 1)})
	}
	return out, nil
}

// Text returns the element's text content, trimmed.
func (s *Session) Text(ctx context.Context, el scrape.Element) (string, error) {
	ids, err := s.nodeIDs(el)
	if err != nil {
		return "", err
	}
	var text string
	if err := s.run(ctx, s.opTimeout, "text", chromedp.TextContent(ids, &text, chromedp.ByNodeID)); err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// Attr reads a live attribute value.
func (s *Session) Attr(ctx context.Context, el scrape.Element, name string) (string, bool, error) {
	ids, err := s.nodeIDs(el)
	if err != nil {
		return "", false, err
	}
	var (
		value string
		ok    bool
	)
	if err := s.run(ctx, s.opTimeout, "attr "+name,
		chromedp.AttributeValue(ids, name, &value, &ok, chromedp.ByNodeID)); err != nil {
		return "", false, err
	}
	return value, ok, nil
}

// Click clicks the element and waits for the resulting document.
func (s *Session) Click(ctx context.Context, el scrape.Element, timeout time.Duration) error {
	ids, err := s.nodeIDs(el)
	if err != nil {
		return err
	}
	s.resetNodes()
	return s.run(ctx, s.orNav(timeout), "click",
		chromedp.Click(ids, chromedp.ByNodeID),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// IsEnabled reports false for disabled controls.
func (s *Session) IsEnabled(ctx context.Context, el scrape.Element) (bool, error) {
	ids, err := s.nodeIDs(el)
	if err != nil {
		return false, err
	}
	attrs := map[string]string{}
	if err := s.run(ctx, s.opTimeout, "attributes", chromedp.Attributes(ids, &attrs, chromedp.ByNodeID)); err != nil {
		return false, err
	}
	if _, ok := attrs["disabled"]; ok {
		return false, nil
	}
	if strings.EqualFold(attrs["aria-disabled"], "true") {
		return false, nil
	}
	for _, class := range strings.Fields(attrs["class"]) {
		if class == "disabled" {
			return false, nil
		}
	}
	return true, nil
}

// HTML returns the rendered document.
func (s *Session) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, s.opTimeout, "outer html", chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// URL returns the current location.
func (s *Session) URL(ctx context.Context) (string, error) {
	var location string
	if err := s.run(ctx, s.opTimeout, "location", chromedp.Location(&location)); err != nil {
		return "", err
	}
	return location, nil
}

// Reload reloads the current page.
func (s *Session) Reload(ctx context.Context, timeout time.Duration) error {
	s.resetNodes()
	return s.run(ctx, s.orNav(timeout), "reload",
		chromedp.Reload(),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// Close closes the tab and frees its browser slot.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.nodes = nil
	s.cancel()
	s.release()
	return nil
}

// run executes actions under their own deadline. The tab context is the
// parent so an expired wait never closes the tab; ctx cancellation is
// forwarded separately.
func (s *Session) run(ctx context.Context, timeout time.Duration, op string, actions ...chromedp.Action) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return fmt.Errorf("%s: tab closed", op)
	}

	runCtx, cancel := context.WithTimeout(s.tab, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, scrape.ErrNavigationTimeout)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *Session) nodeIDs(el scrape.Element) ([]cdp.NodeID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el.ID < 0 || el.ID >= int64(len(s.nodes)) {
		return nil, fmt.Errorf("element %d: %w", el.ID, scrape.ErrElementNotFound)
	}
	return []cdp.NodeID{s.nodes[el.ID].NodeID}, nil
}

func (s *Session) resetNodes() {
	s.mu.Lock()
	s.nodes = nil
	s.mu.Unlock()
}

func (s *Session) orNav(d time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return s.navTimeout
}

func (s *Session) orOp(d time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return s.opTimeout
}
