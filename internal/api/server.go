package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrapeforge/internal/export"
	"github.com/JakeFAU/scrapeforge/internal/metrics"
	"github.com/JakeFAU/scrapeforge/internal/orchestrator"
	"github.com/JakeFAU/scrapeforge/internal/scraper"
)

const defaultRequestTimeout = 60 * time.Second

// Engine is the run control surface the handlers drive.
type Engine interface {
	Start(ctx context.Context, projectID string) (scraper.ScrapingJob, error)
	Stop(ctx context.Context, projectID string) error
	Status(ctx context.Context, projectID string) (orchestrator.Status, error)
	Results(ctx context.Context, projectID string, filter scraper.ResultFilter) ([]scraper.ScrapingResult, error)
	Logs(ctx context.Context, projectID string) ([]scraper.ScrapingLog, error)
	Jobs(ctx context.Context, projectID string) ([]scraper.ScrapingJob, error)
	Stats(ctx context.Context, projectID string) (scraper.Stats, error)
	DashboardStats(ctx context.Context) (scraper.DashboardStats, error)
	Projects(ctx context.Context) ([]scraper.Project, error)
}

// Exporter renders and archives project results.
type Exporter interface {
	Build(ctx context.Context, projectID string) (export.Document, error)
	Archive(ctx context.Context, projectID string) (export.Archive, error)
}

// Config controls the server's middleware and operational endpoints.
type Config struct {
	AuthEnabled    bool
	APIKey         string
	RequestTimeout time.Duration
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	// HTTPMetrics instruments every route when set.
	HTTPMetrics *metrics.HTTP
	// Ready reports whether downstream dependencies are usable.
	Ready func(ctx context.Context) error
}

// Server wires HTTP handlers to the engine and exporter.
type Server struct {
	router   chi.Router
	engine   Engine
	exporter Exporter
	cfg      Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes. exporter may be
// nil, which disables the export routes.
func NewServer(engine Engine, exporter Exporter, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	s := &Server{
		engine:   engine,
		exporter: exporter,
		cfg:      cfg,
		logger:   logger.Named("api"),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	if cfg.HTTPMetrics != nil {
		r.Use(cfg.HTTPMetrics.Middleware)
	}
	r.Use(timeoutMiddleware(cfg.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(cfg.Gatherer))
	}

	r.Route("/api", func(r chi.Router) {
		if cfg.AuthEnabled {
			r.Use(apiKeyMiddleware(cfg.APIKey))
		}
		r.Get("/dashboard/stats", s.dashboardStats)
		r.Route("/projects", func(r chi.Router) {
			r.Get("/", s.listProjects)
			r.Route("/{project_id}", func(r chi.Router) {
				r.Post("/scrape", s.startScrape)
				r.Post("/scrape/stop", s.stopScrape)
				r.Get("/scrape/status", s.scrapeStatus)
				r.Get("/results", s.listResults)
				r.Get("/stats", s.projectStats)
				r.Get("/logs", s.listLogs)
				r.Get("/jobs", s.listJobs)
				r.Get("/export", s.downloadExport)
				r.Post("/export", s.archiveExport)
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
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Ready != nil {
		if err := s.cfg.Ready(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.engine.Projects(r.Context())
	if err != nil {
		s.fail(w, r, "list projects", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

func (s *Server) startScrape(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project_id")
	job, err := s.engine.Start(r.Context(), projectID)
	switch {
	case errors.Is(err, scraper.ErrNotFound):
		rejectStart(w, http.StatusNotFound, "NotFound", "project not found")
		return
	case errors.Is(err, scraper.ErrAlreadyRunning):
		rejectStart(w, http.StatusConflict, "AlreadyRunning", "scraping already in progress")
		return
	case err != nil:
		s.fail(w, r, "start scrape", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"accepted": true,
		"job_id":   job.ID,
		"message":  "Scraping started",
	})
}

func (s *Server) stopScrape(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project_id")
	if err := s.engine.Stop(r.Context(), projectID); err != nil {
		s.fail(w, r, "stop scrape", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stopped": true, "message": "Scraping stopped"})
}

func (s *Server) scrapeStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.engine.Status(r.Context(), chi.URLParam(r, "project_id"))
	if err != nil {
		s.fail(w, r, "scrape status", err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) listResults(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := scraper.ResultFilter{
		Platform: strings.TrimSpace(q.Get("platform")),
		Search:   strings.TrimSpace(q.Get("search")),
	}
	results, err := s.engine.Results(r.Context(), chi.URLParam(r, "project_id"), filter)
	if err != nil {
		s.fail(w, r, "list results", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) projectStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.Stats(r.Context(), chi.URLParam(r, "project_id"))
	if err != nil {
		s.fail(w, r, "project stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) listLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.engine.Logs(r.Context(), chi.URLParam(r, "project_id"))
	if err != nil {
		s.fail(w, r, "list logs", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.engine.Jobs(r.Context(), chi.URLParam(r, "project_id"))
	if err != nil {
		s.fail(w, r, "list jobs", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) dashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.DashboardStats(r.Context())
	if err != nil {
		s.fail(w, r, "dashboard stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) downloadExport(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		writeError(w, http.StatusServiceUnavailable, "export is not configured")
		return
	}
	projectID := chi.URLParam(r, "project_id")
	// Resolve the project first so unknown IDs are 404s, not empty exports.
	if _, err := s.engine.Stats(r.Context(), projectID); err != nil {
		s.fail(w, r, "export", err)
		return
	}
	doc, err := s.exporter.Build(r.Context(), projectID)
	if err != nil {
		s.fail(w, r, "export", err)
		return
	}
	body, err := export.Encode(doc)
	if err != nil {
		s.fail(w, r, "export", err)
		return
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-results.json"`, projectID))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		s.logger.Warn("write export failed", zap.Error(err))
	}
}

func (s *Server) archiveExport(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		writeError(w, http.StatusServiceUnavailable, "export is not configured")
		return
	}
	projectID := chi.URLParam(r, "project_id")
	if _, err := s.engine.Stats(r.Context(), projectID); err != nil {
		s.fail(w, r, "archive export", err)
		return
	}
	archive, err := s.exporter.Archive(r.Context(), projectID)
	if err != nil {
		s.fail(w, r, "archive export", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"archive": archive})
}

// fail maps domain errors onto HTTP statuses. Unexpected errors are logged and
// reported without detail.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, scraper.ErrNotFound):
		writeError(w, http.StatusNotFound, "project not found")
	case errors.Is(err, scraper.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, "scraping already in progress")
	case errors.Is(err, orchestrator.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "shutting down")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "request timed out")
	default:
		s.logger.Error(op+" failed",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("project_id", chi.URLParam(r, "project_id")),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, op+" failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func rejectStart(w http.ResponseWriter, status int, reason, msg string) {
	writeJSON(w, status, map[string]any{"accepted": false, "reason": reason, "error": msg})
}
