// Package api exposes lead checks and change-list job control over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/dnc-scrub/internal/check"
	"github.com/sells-group/dnc-scrub/internal/ingest"
	"github.com/sells-group/dnc-scrub/internal/model"
)

// maxCheckBody bounds POST /v1/check request bodies.
const maxCheckBody = 64 << 20

// Checker scores leads.
type Checker interface {
	CheckChunked(ctx context.Context, leads []model.Lead, size, concurrency int) ([]model.ProcessedLead, error)
}

// Options configures the HTTP surface.
type Options struct {
	ChunkSize        int
	ChunkConcurrency int
	CORSOrigins      []string
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

// Server holds handler dependencies and tracks jobs started in the background.
type Server struct {
	checker Checker
	jobs    *ingest.Controller
	opts    Options
	log     *zap.Logger

	// baseCtx outlives requests; background jobs stop when it is cancelled.
	baseCtx context.Context
	wg      sync.WaitGroup
}

// NewServer creates a Server. Background job runs use ctx.
func NewServer(ctx context.Context, checker Checker, jobs *ingest.Controller, opts Options) *Server {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 1000
	}
	if opts.ChunkConcurrency <= 0 {
		opts.ChunkConcurrency = 4
	}
	return &Server{
		checker: checker,
		jobs:    jobs,
		opts:    opts,
		log:     zap.L().With(zap.String("component", "api")),
		baseCtx: ctx,
	}
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	origins := s.opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/check", s.handleCheck)
		r.Get("/subscriptions", s.handleSubscriptions)
		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.handleListJobs)
			r.Post("/", s.handleCreateJob)
			r.Get("/{id}", s.handleGetJob)
			r.Delete("/{id}", s.handleDeleteJob)
			r.Post("/{id}/process", s.handleProcessJob)
			r.Post("/{id}/retry", s.handleRetryJob)
		})
	})
	return r
}

// Wait blocks until background job runs finish.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// checkResponse is the POST /v1/check body.
type checkResponse struct {
	Leads []model.ProcessedLead `json:"leads"`
	Stats check.Stats           `json:"stats"`
}
