package memory

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/difranardo/vacancies-scrapper/internal/scrape"
)

type seqIDGen struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDGen) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("job-%d", g.n), nil
}

type failingIDGen struct{}

func (failingIDGen) NewID() (string, error) { return "", errors.New("entropy exhausted") }

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func newTestRegistry() *Registry {
	return NewRegistry(&seqIDGen{}, fixedClock{now: time.Unix(1700000000, 0).UTC()})
}

func TestRegistryLifecycle(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry()
	job, err := reg.Create(scrape.SearchParams{ProviderID: "bumeran", Query: "analyst"})
	require.NoError(t, err)
	require.Equal(t, "job-1", job.ID)
	require.Equal(t, scrape.JobStatusPending, job.Status)

	read, ok := reg.Read(job.ID)
	require.True(t, ok)
	require.Empty(t, read.Results)

	require.NoError(t, reg.MarkRunning(job.ID))
	added, err := reg.AppendResult(job.ID, scrape.Record{URL: "https://a/1", Title: "One"})
	require.NoError(t, err)
	require.True(t, added)

	read, _ = reg.Read(job.ID)
	require.Equal(t, scrape.JobStatusRunning, read.Status)
	require.NotNil(t, read.Started)
	require.Len(t, read.Results, 1)

	require.NoError(t, reg.Finish(job.ID, ""))
	read, _ = reg.Read(job.ID)
	require.Equal(t, scrape.JobStatusDone, read.Status)
	require.NotNil(t, read.Finished)

	require.True(t, reg.Delete(job.ID))
	_, ok = reg.Read(job.ID)
	require.False(t, ok)
	require.False(t, reg.Delete(job.ID))
}

func TestRegistryCreatePropagatesIDError(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(failingIDGen{}, nil)
	_, err := reg.Create(scrape.SearchParams{ProviderID: "bumeran"})
	require.Error(t, err)
	require.Zero(t, reg.Len())
}

func TestRegistryUnknownJob(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry()
	_, ok := reg.Read("missing")
	require.False(t, ok)
	require.False(t, reg.Cancel("missing"))
	require.False(t, reg.CancelRequested("missing"))

	_, err := reg.AppendResult("missing", scrape.Record{URL: "u"})
	require.ErrorIs(t, err, scrape.ErrJobNotFound)
	require.ErrorIs(t, reg.ReplaceResults("missing", nil), scrape.ErrJobNotFound)
	require.ErrorIs(t, reg.Finish("missing", ""), scrape.ErrJobNotFound)
	require.ErrorIs(t, reg.MarkRunning("missing"), scrape.ErrJobNotFound)
}

func TestRegistryCancelIsIdempotent(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry()
	job, err := reg.Create(scrape.SearchParams{ProviderID: "zonajobs"})
	require.NoError(t, err)
	require.NoError(t, reg.MarkRunning(job.ID))

	require.True(t, reg.Cancel(job.ID))
	require.True(t, reg.Cancel(job.ID))
	require.True(t, reg.CancelRequested(job.ID))

	read, _ := reg.Read(job.ID)
	require.Equal(t, scrape.JobStatusCancelling, read.Status)

	require.NoError(t, reg.Finish(job.ID, ""))
	require.True(t, reg.Cancel(job.ID))
	read, _ = reg.Read(job.ID)
	require.Equal(t, scrape.JobStatusDone, read.Status)
}

func TestRegistryRejectsDuplicatesAndPostFinishWrites(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry()
	job, err := reg.Create(scrape.SearchParams{ProviderID: "computrabajo"})
	require.NoError(t, err)

	added, err := reg.AppendResult(job.ID, scrape.Record{URL: "https://a/1"})
	require.NoError(t, err)
	require.True(t, added)
	added, err = reg.AppendResult(job.ID, scrape.Record{URL: "https://a/1", Title: "again"})
	require.NoError(t, err)
	require.False(t, added)

	require.NoError(t, reg.ReplaceResults(job.ID, []scrape.Record{
		{URL: "https://a/1"}, {URL: "https://a/2"}, {URL: "https://a/1"},
	}))
	read, _ := reg.Read(job.ID)
	require.Len(t, read.Results, 2)

	require.NoError(t, reg.Finish(job.ID, "boom"))
	added, err = reg.AppendResult(job.ID, scrape.Record{URL: "https://a/3"})
	require.NoError(t, err)
	require.False(t, added)
	require.NoError(t, reg.ReplaceResults(job.ID, nil))
	require.NoError(t, reg.Finish(job.ID, "other"))

	read, _ = reg.Read(job.ID)
	require.Len(t, read.Results, 2)
	require.Equal(t, "boom", read.ErrorText)
}

func TestRegistryReadReturnsCopy(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry()
	job, err := reg.Create(scrape.SearchParams{ProviderID: "bumeran"})
	require.NoError(t, err)
	_, err = reg.AppendResult(job.ID, scrape.Record{URL: "https://a/1", Tags: []string{"go"}})
	require.NoError(t, err)

	read, _ := reg.Read(job.ID)
	read.Results[0].Tags[0] = "mutated"
	read.Results = append(read.Results, scrape.Record{URL: "x"})

	again, _ := reg.Read(job.ID)
	require.Len(t, again.Results, 1)
	require.Equal(t, "go", again.Results[0].Tags[0])
}

func TestRegistryConcurrentAppendsAndReads(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry()
	const jobs, perJob = 4, 200
	ids := make([]string, jobs)
	for i := range ids {
		job, err := reg.Create(scrape.SearchParams{ProviderID: "bumeran"})
		require.NoError(t, err)
		ids[i] = job.ID
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(2)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < perJob; i++ {
				_, _ = reg.AppendResult(id, scrape.Record{URL: fmt.Sprintf("https://a/%d", i)})
			}
		}(id)
		go func(id string) {
			defer wg.Done()
			last := 0
			for i := 0; i < perJob; i++ {
				read, ok := reg.Read(id)
				if !ok {
					t.Errorf("job %s vanished", id)
					return
				}
				if len(read.Results) < last {
					t.Errorf("results shrank from %d to %d", last, len(read.Results))
					return
				}
				last = len(read.Results)
			}
		}(id)
	}
	wg.Wait()

	for _, id := range ids {
		read, ok := reg.Read(id)
		require.True(t, ok)
		require.Len(t, read.Results, perJob)
	}
}
