// Package api implements the HTTP layer for the climate risk service.
// Handlers are methods on *Server. Each handler file is responsible for one
// resource group and only imports the dependencies it actually uses.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nyashahama/climate-risk-backend/internal/climate"
	"github.com/nyashahama/climate-risk-backend/internal/pipeline"
)

// Assessor is the narrow view of the pipeline the handlers use. The concrete
// implementation is *pipeline.Orchestrator.
type Assessor interface {
	RunAssessment(ctx context.Context, c climate.AssessmentContext) (pipeline.State, error)
	RunPrediction(ctx context.Context, c climate.AssessmentContext) (pipeline.State, error)
	Snapshot() pipeline.State
	Subscribe() (<-chan pipeline.State, func())
}

// Config holds values read from environment variables at startup.
type Config struct {
	// Env is "production", "staging", or "development".
	Env string

	// CORSOrigins lists allowed browser origins. "*" allows any.
	CORSOrigins []string

	// RequestTimeout bounds every route except the state stream. Default 2m,
	// enough for two sequential model calls.
	RequestTimeout time.Duration
}

// Server holds all shared dependencies.
type Server struct {
	pipeline Assessor
	cfg      Config
	logger   *slog.Logger
}

// NewServer constructs the Server and wires the chi router. The returned
// http.Handler is ready to pass to an http.Server.
func NewServer(assessor Assessor, cfg Config, logger *slog.Logger) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 2 * time.Minute
	}
	s := &Server{
		pipeline: assessor,
		cfg:      cfg,
		logger:   logger,
	}
	return s.routes()
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	// ── Global middleware ─────────────────────────────────────────────────────
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggerMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)

	// ── Health & metrics ──────────────────────────────────────────────────────
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		// The stream is long-lived, so it sits outside the timeout group.
		r.Get("/state/stream", s.handleStateStream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.cfg.RequestTimeout))

			r.Post("/assessments", s.handleRunAssessment)
			r.Post("/predictions", s.handleRunPrediction)
			r.Get("/state", s.handleGetState)
			r.Get("/risk-class", s.handleRiskClass)
		})
	})

	return r
}
