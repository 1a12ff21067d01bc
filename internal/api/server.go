// Package api exposes the HTTP interface for the radar service.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radarworks/upwork-radar/internal/analysis"
	"github.com/radarworks/upwork-radar/internal/listing"
	"github.com/radarworks/upwork-radar/internal/metrics"
	"github.com/radarworks/upwork-radar/internal/orchestrator"
	"github.com/radarworks/upwork-radar/internal/session"
	"github.com/radarworks/upwork-radar/internal/store"
)

// Scraper is the orchestration surface the handlers drive.
type Scraper interface {
	Start(ctx context.Context, headless bool) session.Status
	CheckAuth(ctx context.Context) session.Status
	Stop(ctx context.Context) session.Status
	Status(ctx context.Context) orchestrator.StatusReport
	FetchFeed(ctx context.Context, maxJobs int) (*orchestrator.ScrapeResult, error)
	FetchSearch(ctx context.Context, params listing.SearchParams) (*orchestrator.ScrapeResult, error)
	FetchDetail(ctx context.Context, jobURLOrID string) (*listing.Listing, error)
}

// JobReader is the read-only store surface the handlers consume.
type JobReader interface {
	GetListing(ctx context.Context, id string) (*listing.Listing, error)
	QueryListings(ctx context.Context, f store.Filter) ([]listing.Summary, error)
	Stats(ctx context.Context) (store.Stats, error)
}

// Analyzer aggregates the cache into market views.
type Analyzer interface {
	MarketRequirements(ctx context.Context, skillFocus string, topN int) (analysis.MarketReport, error)
	SuggestProjects(ctx context.Context, yourSkills []string, targetTier string, topN int) ([]analysis.ProjectSuggestion, error)
}

// Server wires HTTP handlers to the orchestrator, store and analyzer.
type Server struct {
	router   chi.Router
	scraper  Scraper
	jobs     JobReader
	analyzer Analyzer
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(scraper Scraper, jobs JobReader, analyzer Analyzer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		scraper:  scraper,
		jobs:     jobs,
		analyzer: analyzer,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(120 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/session", func(r chi.Router) {
			r.Post("/start", s.startSession)
			r.Get("/status", s.sessionStatus)
			r.Post("/check-auth", s.checkAuth)
			r.Post("/stop", s.stopSession)
		})
		r.Route("/scrape", func(r chi.Router) {
			r.Post("/feed", s.scrapeFeed)
			r.Post("/search", s.scrapeSearch)
			r.Post("/job-detail", s.scrapeJobDetail)
		})
		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.listJobs)
			r.Get("/{job_id}", s.getJob)
		})
		r.Get("/stats", s.stats)
		r.Route("/analysis", func(r chi.Router) {
			r.Get("/market", s.marketAnalysis)
			r.Post("/projects", s.projectSuggestions)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The store is the only hard dependency; a cheap aggregate query
	// doubles as its liveness probe.
	if _, err := s.jobs.Stats(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		metrics.ObserveHTTPRequest(r.Method, route, ww.status, elapsed)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", elapsed.Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
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

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
