package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/dnc-scrub/internal/check"
	"github.com/sells-group/dnc-scrub/internal/ingest"
	"github.com/sells-group/dnc-scrub/internal/model"
)

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Leads []model.Lead `json:"leads"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCheckBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	processed, err := s.checker.CheckChunked(r.Context(), req.Leads, s.opts.ChunkSize, s.opts.ChunkConcurrency)
	if err != nil {
		s.log.Error("check failed", zap.Int("leads", len(req.Leads)), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "registry lookup failed")
		return
	}
	if processed == nil {
		processed = []model.ProcessedLead{}
	}
	writeJSON(w, http.StatusOK, checkResponse{Leads: processed, Stats: check.Summarize(processed)})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.JobFilter{
		Status:     model.JobStatus(q.Get("status")),
		ChangeType: model.ChangeType(q.Get("change_type")),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}

	jobs, err := s.jobs.List(r.Context(), filter)
	if err != nil {
		s.writeJobError(w, err)
		return
	}
	if jobs == nil {
		jobs = []model.ChangeListJob{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChangeType  model.ChangeType `json:"change_type"`
		FilePath    string           `json:"file_path"`
		AreaCodes   []string         `json:"area_codes"`
		ReleaseDate string           `json:"release_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	job := model.ChangeListJob{ChangeType: req.ChangeType, FilePath: req.FilePath, AreaCodes: req.AreaCodes}
	if req.ReleaseDate != "" {
		d, err := time.Parse(time.DateOnly, req.ReleaseDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "release_date must be YYYY-MM-DD")
			return
		}
		job.ReleaseDate = &d
	}

	created, err := s.jobs.Create(r.Context(), job)
	if err != nil {
		s.writeJobError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeJobError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	if err := s.jobs.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeJobError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleProcessJob claims the job and processes it in the background. The
// caller polls GET /v1/jobs/{id} for progress.
func (s *Server) handleProcessJob(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ChangeType model.ChangeType `json:"change_type"`
		IsRetry    bool             `json:"is_retry"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	claimed, err := s.jobs.Claim(r.Context(), ingest.Request{
		JobID:      chi.URLParam(r, "id"),
		ChangeType: body.ChangeType,
		IsRetry:    body.IsRetry,
	})
	if err != nil {
		s.writeJobError(w, err)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.jobs.Process(s.baseCtx, claimed); err != nil {
			s.log.Warn("background job failed", zap.String("job_id", claimed.Job.ID), zap.Error(err))
		}
	}()

	writeJSON(w, http.StatusAccepted, claimed.Job)
}

func (s *Server) handleRetryJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Retry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeJobError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := s.jobs.Subscriptions(r.Context())
	if err != nil {
		s.writeJobError(w, err)
		return
	}
	if subs == nil {
		subs = []model.Subscription{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"subscriptions": subs})
}

func (s *Server) writeJobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ingest.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, ingest.ErrJobBusy), errors.Is(err, ingest.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ingest.ErrChangeTypeMismatch), errors.Is(err, ingest.ErrInvalidJob):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error("job request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
