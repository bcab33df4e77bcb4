package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/difranardo/vacancies-scrapper/internal/scrape"
)

type submitRequest struct {
	Provider string `json:"provider"`
	Query    string `json:"query"`
	Location string `json:"location"`
	MaxPages *int   `json:"max_pages"`
	Headless bool   `json:"headless"`
}

func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.MaxPages != nil && *req.MaxPages < 0 {
		writeError(w, http.StatusBadRequest, "max_pages must not be negative")
		return
	}
	params := scrape.SearchParams{
		Query:    req.Query,
		Location: req.Location,
		MaxPages: req.MaxPages,
		Headless: req.Headless,
	}
	jobID, err := s.jobs.Submit(r.Context(), req.Provider, params)
	if err != nil {
		if errors.Is(err, scrape.ErrUnknownProvider) {
			writeError(w, http.StatusBadRequest, "unknown provider")
			return
		}
		s.logger.Error("submit job failed", zap.String("provider", req.Provider), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "job could not be started")
		return
	}
	status := s.jobs.Status(jobID)
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID, "provider": status.Provider})
}

// headJob answers 404 for unknown ids, 204 while no record is accepted and
// 200 once results exist.
func (s *Server) headJob(w http.ResponseWriter, r *http.Request) {
	status := s.jobs.Status(chi.URLParam(r, "job_id"))
	switch {
	case !status.Exists:
		w.WriteHeader(http.StatusNotFound)
	case status.RecordCount == 0:
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	status := s.jobs.Status(chi.URLParam(r, "job_id"))
	if !status.Exists {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// getResults returns the accepted records. keep=0 disposes the job once its
// records have been handed out.
func (s *Server) getResults(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	records, ok := s.jobs.Results(jobID)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if len(records) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.URL.Query().Get("keep") == "0" {
		s.jobs.Dispose(jobID)
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) getDiagnostics(w http.ResponseWriter, r *http.Request) {
	records, ok := s.jobs.Diagnostics(chi.URLParam(r, "job_id"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if records == nil {
		records = []scrape.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if !s.jobs.Cancel(jobID) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	status := s.jobs.Status(jobID)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":  jobID,
		"status":  status.State,
		"records": status.RecordCount,
	})
}

func (s *Server) disposeJob(w http.ResponseWriter, r *http.Request) {
	if !s.jobs.Dispose(chi.URLParam(r, "job_id")) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listProviders(w http.ResponseWriter, _ *http.Request) {
	ids := s.jobs.ProviderIDs()
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"providers": ids})
}
