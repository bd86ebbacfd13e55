package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tantiya-io/tantiya/internal/model"
	"github.com/tantiya-io/tantiya/internal/service/estimate"
	"github.com/tantiya-io/tantiya/internal/service/pipeline"
	"github.com/tantiya-io/tantiya/internal/storage"
)

// Server is the Tantiya HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// ServerConfig holds all dependencies and configuration for creating a Server.
type ServerConfig struct {
	DB          *storage.DB
	PipelineSvc *pipeline.Service
	EstimateSvc *estimate.Service
	Logger      *slog.Logger

	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		DB:                  cfg.DB,
		PipelineSvc:         cfg.PipelineSvc,
		EstimateSvc:         cfg.EstimateSvc,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	mux := http.NewServeMux()

	// Calculation runs.
	mux.HandleFunc("POST /v1/projects/{project_id}/runs", h.HandleExecuteRun)
	mux.HandleFunc("GET /v1/projects/{project_id}/runs", h.HandleListRuns)
	mux.HandleFunc("GET /v1/runs/{run_id}", h.HandleGetRun)

	// Takeoff versions. "active" is registered before the wildcard get
	// so the mux's precedence rules never hand it to the id route.
	mux.HandleFunc("POST /v1/projects/{project_id}/takeoffs", h.HandleCreateTakeoffVersion)
	mux.HandleFunc("GET /v1/projects/{project_id}/takeoffs", h.HandleListTakeoffVersions)
	mux.HandleFunc("GET /v1/projects/{project_id}/takeoffs/active", h.HandleGetActiveTakeoffVersion)
	mux.HandleFunc("GET /v1/takeoffs/{takeoff_id}", h.HandleGetTakeoffVersion)
	mux.HandleFunc("PUT /v1/takeoffs/{takeoff_id}/snapshot", h.HandleUpdateTakeoffSnapshot)
	mux.Handle("POST /v1/takeoffs/{takeoff_id}/submit", h.HandleTakeoffTransition(model.ActionSubmit))
	mux.Handle("POST /v1/takeoffs/{takeoff_id}/approve", h.HandleTakeoffTransition(model.ActionApprove))
	mux.Handle("POST /v1/takeoffs/{takeoff_id}/reject", h.HandleTakeoffTransition(model.ActionReject))

	// Cost estimates.
	mux.HandleFunc("POST /v1/takeoffs/{takeoff_id}/estimates", h.HandleCreateEstimate)
	mux.HandleFunc("GET /v1/projects/{project_id}/estimates", h.HandleListEstimates)
	mux.HandleFunc("GET /v1/projects/{project_id}/estimates/active", h.HandleGetActiveEstimate)
	mux.HandleFunc("GET /v1/estimates/{estimate_id}", h.HandleGetEstimate)
	mux.Handle("POST /v1/estimates/{estimate_id}/submit", h.HandleEstimateTransition(model.ActionSubmit))
	mux.Handle("POST /v1/estimates/{estimate_id}/approve", h.HandleEstimateTransition(model.ActionApprove))
	mux.Handle("POST /v1/estimates/{estimate_id}/reject", h.HandleEstimateTransition(model.ActionReject))
	mux.HandleFunc("PATCH /v1/estimates/{estimate_id}/lines/{line_id}", h.HandleUpdateCostLine)

	// Health (no auth, no tracing requirements).
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
