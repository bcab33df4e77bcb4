// Package collydriver loads pages over plain HTTP with gocolly and serves them
// through the dom driver. It cannot execute JavaScript.
package collydriver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/difranardo/vacancies-scrapper/internal/driver/dom"
	"github.com/difranardo/vacancies-scrapper/internal/scrape"
)

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	Headers       http.Header
}

// Loader implements dom.Loader using the Colly collector.
type Loader struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// NewLoader builds a Loader.
func NewLoader(cfg Config) *Loader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(newHTTPTransport())
	// The HTTP backend is shared by clones, so the timeout is set once here.
	c.SetRequestTimeout(cfg.Timeout)
	return &Loader{cfg: cfg, baseCollector: c}
}

// Load executes a single HTTP GET.
func (l *Loader) Load(ctx context.Context, url string) (dom.Page, error) {
	var (
		page    dom.Page
		loadErr error
	)
	collector := l.buildCollector(&page, &loadErr)
	if err := l.runCollector(ctx, collector, url, &loadErr); err != nil {
		return dom.Page{}, err
	}
	return page, nil
}

func (l *Loader) buildCollector(page *dom.Page, loadErr *error) *colly.Collector {
	collector := l.baseCollector.Clone()
	if l.cfg.UserAgent != "" {
		collector.UserAgent = l.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !l.cfg.RespectRobots
	l.configureCollectorHooks(collector, page, loadErr)
	return collector
}

func (l *Loader) configureCollectorHooks(hooks collectorHooks, page *dom.Page, loadErr *error) {
	hooks.OnRequest(func(r *colly.Request) {
		for key, values := range l.cfg.Headers {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		*page = dom.Page{
			URL:  r.Request.URL.String(),
			Body: append([]byte(nil), r.Body...),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			*loadErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		*loadErr = err
	})
}

func (l *Loader) runCollector(ctx context.Context, collector *colly.Collector, url string, loadErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly load canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", classify(err))
		}
		if *loadErr != nil {
			return fmt.Errorf("colly response failed: %w", classify(*loadErr))
		}
		return nil
	}
}

func classify(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", scrape.ErrNavigationTimeout, err)
	}
	return err
}

// Factory opens a dom session over a shared Loader per job.
type Factory struct {
	loader *Loader
	logger *zap.Logger
}

// NewFactory builds a Factory.
func NewFactory(cfg Config, logger *zap.Logger) *Factory {
	return &Factory{loader: NewLoader(cfg), logger: logger}
}

// Open implements scrape.DriverFactory.
func (f *Factory) Open(_ context.Context, _ scrape.SessionOptions) (scrape.Driver, error) {
	return dom.NewSession(f.loader, f.logger), nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
