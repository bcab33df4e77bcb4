package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/difranardo/vacancies-scrapper/internal/scrape"
)

// routedDriver mimics a client-side router: a click changes the location
// only after delay.
type routedDriver struct {
	delay time.Duration

	mu      sync.Mutex
	url     string
	pending string
	at      time.Time
}

func (d *routedDriver) Navigate(context.Context, string, time.Duration) error { return nil }

func (d *routedDriver) WaitFor(context.Context, string, scrape.WaitOptions) error { return nil }

func (d *routedDriver) QueryAll(context.Context, string) ([]scrape.Element, error) {
	return []scrape.Element{{ID: 0}}, nil
}

func (d *routedDriver) Text(context.Context, scrape.Element) (string, error) { return "", nil }

func (d *routedDriver) Attr(context.Context, scrape.Element, string) (string, bool, error) {
	return "", false, nil
}

func (d *routedDriver) Click(context.Context, scrape.Element, time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.delay >= 0 {
		d.pending = d.url + "&page=2"
		d.at = time.Now().Add(d.delay)
	}
	return nil
}

func (d *routedDriver) IsEnabled(context.Context, scrape.Element) (bool, error) { return true, nil }

func (d *routedDriver) HTML(context.Context) (string, error) { return "", nil }

func (d *routedDriver) URL(context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending != "" && !time.Now().Before(d.at) {
		d.url, d.pending = d.pending, ""
	}
	return d.url, nil
}

func (d *routedDriver) Reload(context.Context, time.Duration) error { return nil }

func (d *routedDriver) Close() error { return nil }

func TestClickNextWaitsForDelayedLocationChange(t *testing.T) {
	t.Parallel()

	drv := &routedDriver{url: siteBase + "/search?q=analyst", delay: 50 * time.Millisecond}
	ok, err := ClickNext(context.Background(), drv, "a.next", "ul.jobs a", Timeouts{Navigation: 2 * time.Second, Wait: time.Second})
	require.NoError(t, err)
	require.True(t, ok)
	current, err := drv.URL(context.Background())
	require.NoError(t, err)
	require.Equal(t, siteBase+"/search?q=analyst&page=2", current)
}

func TestClickNextTimesOutWhenLocationNeverChanges(t *testing.T) {
	t.Parallel()

	drv := &routedDriver{url: siteBase + "/search?q=analyst", delay: -1}
	start := time.Now()
	ok, err := ClickNext(context.Background(), drv, "a.next", "ul.jobs a", Timeouts{Navigation: 150 * time.Millisecond, Wait: time.Second})
	require.ErrorIs(t, err, scrape.ErrNavigationTimeout)
	require.False(t, ok)
	require.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestClickNextStopsWaitingOnContextCancel(t *testing.T) {
	t.Parallel()

	drv := &routedDriver{url: siteBase + "/search?q=analyst", delay: -1}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	ok, err := ClickNext(ctx, drv, "a.next", "ul.jobs a", Timeouts{Navigation: 5 * time.Second, Wait: time.Second})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.False(t, ok)
}
