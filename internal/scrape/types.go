package scrape

import "time"

// JobStatus represents the lifecycle state of a scrape job.
type JobStatus string

// Job status values held by the registry.
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusRunning    JobStatus = "running"
	JobStatusCancelling JobStatus = "cancelling"
	JobStatusDone       JobStatus = "done"
)

// IsTerminal reports whether no further mutations are accepted.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone
}

// SearchParams captures the caller's search request. It is immutable once the
// job starts.
type SearchParams struct {
	ProviderID string `json:"provider"`
	Query      string `json:"query,omitempty"`
	Location   string `json:"location,omitempty"`
	// MaxPages bounds the number of listing pages visited; nil means unbounded.
	MaxPages *int `json:"max_pages,omitempty"`
	Headless bool `json:"headless"`
}

// PageLimit returns the page bound and whether one is set.
func (p SearchParams) PageLimit() (int, bool) {
	if p.MaxPages == nil || *p.MaxPages <= 0 {
		return 0, false
	}
	return *p.MaxPages, true
}

// ErrorKind classifies a per-item extraction failure.
type ErrorKind string

// Per-item error kinds. The empty kind means the record was extracted.
const (
	ErrorNone              ErrorKind = ""
	ErrorDetailUnavailable ErrorKind = "detail_unavailable"
	ErrorDetailTimeout     ErrorKind = "detail_timeout"
	ErrorNotADetailURL     ErrorKind = "not_a_detail_url"
	ErrorCancelled         ErrorKind = "cancelled"
)

// Record is one extracted job posting. Every field is a scalar, a date, or a
// list of strings so export encoders never need provider knowledge.
type Record struct {
	URL           string            `json:"url"`
	Provider      string            `json:"provider,omitempty"`
	Title         string            `json:"title"`
	Organization  string            `json:"organization"`
	Location      string            `json:"location"`
	Industry      string            `json:"industry,omitempty"`
	Description   string            `json:"description"`
	Benefits      []string          `json:"benefits,omitempty"`
	Requirements  []string          `json:"requirements,omitempty"`
	Tags          []string          `json:"tags,omitempty"`
	PublishedText string            `json:"published_text,omitempty"`
	PublishedDate *time.Time        `json:"published_date,omitempty"`
	Extras        map[string]string `json:"extras,omitempty"`
	Error         ErrorKind         `json:"error,omitempty"`
}

// Accepted reports whether the record carries extracted data.
func (r Record) Accepted() bool {
	return r.Error == ErrorNone
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	cp := r
	cp.Benefits = cloneStrings(r.Benefits)
	cp.Requirements = cloneStrings(r.Requirements)
	cp.Tags = cloneStrings(r.Tags)
	if r.PublishedDate != nil {
		d := *r.PublishedDate
		cp.PublishedDate = &d
	}
	if r.Extras != nil {
		cp.Extras = make(map[string]string, len(r.Extras))
		for k, v := range r.Extras {
			cp.Extras[k] = v
		}
	}
	return cp
}

// ListingPage is one page of search results.
type ListingPage struct {
	PageIndex  int
	DetailURLs []string
}

// Job is the registry-owned state of one extraction run.
type Job struct {
	ID              string       `json:"id"`
	Provider        string       `json:"provider"`
	Params          SearchParams `json:"params"`
	Status          JobStatus    `json:"status"`
	Results         []Record     `json:"-"`
	CancelRequested bool         `json:"cancel_requested"`
	Submitted       time.Time    `json:"submitted_at"`
	Started         *time.Time   `json:"started_at,omitempty"`
	Finished        *time.Time   `json:"finished_at,omitempty"`
	ErrorText       string       `json:"error_text,omitempty"`
}

// Accepted returns the records extracted without error.
func (j Job) Accepted() []Record {
	out := make([]Record, 0, len(j.Results))
	for _, rec := range j.Results {
		if rec.Accepted() {
			out = append(out, rec)
		}
	}
	return out
}

// Diagnostics returns the per-item error records.
func (j Job) Diagnostics() []Record {
	var out []Record
	for _, rec := range j.Results {
		if !rec.Accepted() {
			out = append(out, rec)
		}
	}
	return out
}

// Clone returns a deep copy of the job.
func (j Job) Clone() Job {
	cp := j
	if j.Params.MaxPages != nil {
		n := *j.Params.MaxPages
		cp.Params.MaxPages = &n
	}
	if j.Results != nil {
		cp.Results = make([]Record, len(j.Results))
		for i, rec := range j.Results {
			cp.Results[i] = rec.Clone()
		}
	}
	if j.Started != nil {
		t := *j.Started
		cp.Started = &t
	}
	if j.Finished != nil {
		t := *j.Finished
		cp.Finished = &t
	}
	return cp
}

func cloneStrings(src []string) []string {
	if src == nil {
		return nil
	}
	dst := make([]string, len(src))
	copy(dst, src)
	return dst
}
