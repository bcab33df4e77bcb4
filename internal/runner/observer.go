package runner

import (
	"time"

	"github.com/difranardo/vacancies-scrapper/internal/pipeline"
	"github.com/difranardo/vacancies-scrapper/internal/progress"
	"github.com/difranardo/vacancies-scrapper/internal/scrape"
)

// observer turns pipeline notifications into progress events. It runs on
// the job goroutine only.
type observer struct {
	jobID    string
	provider string
	emitter  progress.Emitter
	now      func() time.Time

	pageRecords int64
	pageFailed  int64
}

func newObserver(jobID, provider string, emitter progress.Emitter, now func() time.Time) *observer {
	return &observer{jobID: jobID, provider: provider, emitter: emitter, now: now}
}

func (o *observer) StateChanged(pipeline.State, pipeline.State) {}

func (o *observer) PageDone(page scrape.ListingPage) {
	o.emitter.Emit(progress.Event{
		JobID:    o.jobID,
		TS:       o.now(),
		Stage:    progress.StagePageDone,
		Provider: o.provider,
		Page:     page.PageIndex,
		Records:  o.pageRecords,
		Failed:   o.pageFailed,
	})
	o.pageRecords, o.pageFailed = 0, 0
}

func (o *observer) RecordDone(rec scrape.Record) {
	evt := progress.Event{
		JobID:    o.jobID,
		TS:       o.now(),
		Stage:    progress.StageDetailDone,
		Provider: o.provider,
		URL:      rec.URL,
	}
	if rec.Accepted() {
		o.pageRecords++
	} else {
		o.pageFailed++
		evt.Stage = progress.StageDetailError
		evt.Note = string(rec.Error)
	}
	o.emitter.Emit(evt)
}
