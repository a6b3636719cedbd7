// Package api exposes the HTTP interface for the harvester service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/litrev/harvester/internal/config"
	"github.com/litrev/harvester/internal/dispatcher"
	"github.com/litrev/harvester/internal/scholar"
)

// Server wires HTTP handlers to the dispatcher and stores.
type Server struct {
	router     chi.Router
	jobs       scholar.JobStore
	papers     scholar.PaperStore
	dispatcher *dispatcher.Dispatcher
	idGen      scholar.IDGenerator
	clock      scholar.Clock
	logger     *zap.Logger
	cfg        config.Config
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	jobs scholar.JobStore,
	papers scholar.PaperStore,
	dispatcher *dispatcher.Dispatcher,
	idGen scholar.IDGenerator,
	clock scholar.Clock,
	logger *zap.Logger,
	cfg config.Config,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		jobs:       jobs,
		papers:     papers,
		dispatcher: dispatcher,
		idGen:      idGen,
		clock:      clock,
		logger:     logger,
		cfg:        cfg,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.submitJob)
			r.Get("/", s.listJobs)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/status", s.getJobStatus)
				r.Get("/result", s.getJobResult)
				r.Post("/pause", s.pauseJob)
				r.Post("/resume", s.resumeJob)
				r.Delete("/", s.deleteJob)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.jobs.ListJobs(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "job store unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type submitJobRequest struct {
	Name              string   `json:"name"`
	IncludeKeywords   []string `json:"include_keywords"`
	ExcludeKeywords   []string `json:"exclude_keywords"`
	StartYear         int      `json:"start_year"`
	EndYear           int      `json:"end_year"`
	MaxResults        int      `json:"max_results"`
	SemanticInclusion string   `json:"semantic_inclusion"`
	SemanticExclusion string   `json:"semantic_exclusion"`
	SemanticBatchMode *bool    `json:"semantic_batch_mode"`
}

func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	var req submitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	criteria := scholar.SearchCriteria{
		IncludeKeywords:   req.IncludeKeywords,
		ExcludeKeywords:   req.ExcludeKeywords,
		StartYear:         req.StartYear,
		EndYear:           req.EndYear,
		MaxResults:        req.MaxResults,
		SemanticInclusion: req.SemanticInclusion,
		SemanticExclusion: req.SemanticExclusion,
		SemanticBatchMode: req.SemanticBatchMode == nil || *req.SemanticBatchMode,
	}
	if err := criteria.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	jobID, err := s.enqueueJob(r.Context(), req.Name, criteria)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusRequestTimeout
		}
		s.writeError(w, status, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.jobs.ListJobs(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) getJobStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

func (s *Server) getJobResult(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	records, err := s.papers.ListRecords(r.Context(), job.ID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to fetch records")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"job":     job,
		"records": records,
	})
}

func (s *Server) pauseJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	if job.Status != scholar.JobStatusRunning && job.Status != scholar.JobStatusPending {
		s.writeError(w, http.StatusConflict, fmt.Sprintf("cannot pause job in %s state", job.Status))
		return
	}
	if err := s.jobs.MarkPaused(r.Context(), job.ID); err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to pause job")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"job_id": job.ID, "status": string(scholar.JobStatusPaused)})
}

func (s *Server) resumeJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	if job.Status != scholar.JobStatusPaused && job.Status != scholar.JobStatusFailed {
		s.writeError(w, http.StatusConflict, fmt.Sprintf("cannot resume job in %s state", job.Status))
		return
	}
	if err := s.jobs.MarkPending(r.Context(), job.ID); err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to resume job")
		return
	}
	queueCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	item := scholar.QueueItem{
		JobID:     job.ID,
		Attempt:   job.RetryCount + 1,
		Submitted: s.clock.Now().Unix(),
	}
	if err := s.dispatcher.Enqueue(queueCtx, item); err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"job_id": job.ID, "status": string(scholar.JobStatusPending)})
}

func (s *Server) deleteJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	if job.Status == scholar.JobStatusRunning {
		s.writeError(w, http.StatusConflict, "pause the job before deleting it")
		return
	}
	if err := s.jobs.DeleteJob(r.Context(), job.ID); err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to delete job")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"job_id": job.ID, "status": "deleted"})
}

func (s *Server) loadJob(w http.ResponseWriter, r *http.Request) (*scholar.JobState, bool) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobs.LoadJob(r.Context(), jobID)
	if errors.Is(err, scholar.ErrJobNotFound) {
		s.writeError(w, http.StatusNotFound, "job not found")
		return nil, false
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to load job")
		return nil, false
	}
	return job, true
}

func (s *Server) enqueueJob(ctx context.Context, name string, criteria scholar.SearchCriteria) (string, error) {
	jobID, err := s.idGen.NewID()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	if name == "" {
		name = "harvest-" + jobID[:8]
	}
	now := s.clock.Now()
	job := &scholar.JobState{
		ID:        jobID,
		Name:      name,
		Criteria:  criteria,
		Status:    scholar.JobStatusPending,
		CreatedAt: now,
	}
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	queueCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	item := scholar.QueueItem{
		JobID:     jobID,
		Attempt:   1,
		Submitted: now.Unix(),
	}
	if err := s.dispatcher.Enqueue(queueCtx, item); err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	return jobID, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte(`{"error":"internal server error"}`))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
