package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tantiya-io/tantiya/internal/model"
	"github.com/tantiya-io/tantiya/internal/service/estimate"
	"github.com/tantiya-io/tantiya/internal/service/pipeline"
	"github.com/tantiya-io/tantiya/internal/storage"
)

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	db                  *storage.DB
	pipelineSvc         *pipeline.Service
	estimateSvc         *estimate.Service
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
}

// HandlersDeps holds all dependencies for constructing Handlers.
type HandlersDeps struct {
	DB                  *storage.DB
	PipelineSvc         *pipeline.Service
	EstimateSvc         *estimate.Service
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		db:                  d.DB,
		pipelineSvc:         d.PipelineSvc,
		estimateSvc:         d.EstimateSvc,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
	}
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := h.db.Ping(r.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
		h.logger.Warn("health check db ping failed", "error", err)
	}
	writeJSON(w, r, code, map[string]any{
		"status":         status,
		"version":        h.version,
		"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
	})
}

// writeDomainError maps domain and storage errors to API responses.
// Validation errors are the caller's fault (400), illegal state-machine
// calls and numbering races are conflicts (409), unknown ids are 404.
func (h *Handlers) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var verr model.ValidationError
	var ite *model.InvalidTransitionError
	switch {
	case errors.As(err, &verr):
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, verr.Error())
	case errors.As(err, &ite):
		writeError(w, r, http.StatusConflict, model.ErrCodeConflict, ite.Error())
	case errors.Is(err, storage.ErrImmutable):
		writeError(w, r, http.StatusConflict, model.ErrCodeConflict, err.Error())
	case errors.Is(err, storage.ErrDuplicateVersionNumber):
		writeError(w, r, http.StatusConflict, model.ErrCodeConflict, "version numbering conflict, please retry")
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, err.Error())
	default:
		h.logger.Error("internal error",
			"error", err,
			"path", r.URL.Path,
			"request_id", RequestIDFromContext(r.Context()))
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "internal server error")
	}
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, model.Validationf(name, "invalid uuid")
	}
	return id, nil
}

// transitionBody reads the optional actor/reason body of a transition
// endpoint. An empty body is allowed; a present but malformed body is not.
func (h *Handlers) transitionBody(r *http.Request) (model.TransitionRequest, error) {
	var req model.TransitionRequest
	if err := decodeJSON(r, &req, h.maxRequestBodyBytes); err != nil && !errors.Is(err, io.EOF) {
		return model.TransitionRequest{}, err
	}
	return req, nil
}
