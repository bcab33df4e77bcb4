package pipeline

import "github.com/difranardo/vacancies-scrapper/internal/scrape"

// State is a step of the pipeline state machine.
type State string

// Pipeline states.
const (
	StateInit             State = "init"
	StateSearching        State = "searching"
	StateListingReady     State = "listing_ready"
	StateExtractingDetail State = "extracting_detail"
	StatePaginating       State = "paginating"
	StateDone             State = "done"
	StateTerminated       State = "terminated"
)

// Observer is notified as a run progresses. Calls happen on the job
// goroutine and must not block.
type Observer interface {
	StateChanged(from, to State)
	PageDone(page scrape.ListingPage)
	RecordDone(rec scrape.Record)
}

// NopObserver ignores every notification.
type NopObserver struct{}

// StateChanged implements Observer.
func (NopObserver) StateChanged(State, State) {}

// PageDone implements Observer.
func (NopObserver) PageDone(scrape.ListingPage) {}

// RecordDone implements Observer.
func (NopObserver) RecordDone(scrape.Record) {}
