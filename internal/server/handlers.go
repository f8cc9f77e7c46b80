package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/houra-app/houra/internal/auth"
	"github.com/houra-app/houra/internal/ctxutil"
	"github.com/houra-app/houra/internal/model"
	"github.com/houra-app/houra/internal/service/agent"
	"github.com/houra-app/houra/internal/service/records"
	"github.com/houra-app/houra/internal/storage"
)

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	store                storage.Store
	agentSvc             *agent.Service
	recordsSvc           *records.Service
	logger               *slog.Logger
	startedAt            time.Time
	version              string
	storeName            string
	maxRequestBodyBytes  int64
	generativeConfigured bool
	defaultModel         string
}

// HandlersDeps holds all dependencies for constructing Handlers.
type HandlersDeps struct {
	Store                storage.Store
	AgentSvc             *agent.Service
	RecordsSvc           *records.Service
	Logger               *slog.Logger
	Version              string
	StoreName            string
	MaxRequestBodyBytes  int64
	GenerativeConfigured bool
	DefaultModel         string
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	if d.MaxRequestBodyBytes <= 0 {
		d.MaxRequestBodyBytes = 1 << 20
	}
	if d.DefaultModel == "" {
		d.DefaultModel = model.DefaultModel
	}
	return &Handlers{
		store:                d.Store,
		agentSvc:             d.AgentSvc,
		recordsSvc:           d.RecordsSvc,
		logger:               d.Logger,
		startedAt:            time.Now(),
		version:              d.Version,
		storeName:            d.StoreName,
		maxRequestBodyBytes:  d.MaxRequestBodyBytes,
		generativeConfigured: d.GenerativeConfigured,
		defaultModel:         d.DefaultModel,
	}
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	httpStatus := http.StatusOK
	resp := model.HealthResponse{
		Version: h.version,
		Store:   h.storeName,
		Uptime:  int64(time.Since(h.startedAt).Seconds()),
	}

	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Warn("health: store ping failed", "error", err)
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
		if h.storeName == "postgres" {
			resp.Postgres = "disconnected"
		}
	} else if h.storeName == "postgres" {
		resp.Postgres = "connected"
	}
	resp.Status = status
	writeJSON(w, r, httpStatus, resp)
}

// identity returns the caller identity set by requireStudent.
func identity(r *http.Request) auth.Identity {
	id, _ := ctxutil.IdentityFromContext(r.Context())
	return id
}

// studentActor is the audit actor for a request made by the student.
func studentActor(id auth.Identity) model.Actor {
	return model.Actor{Type: model.ActorStudent, ID: id.ActorID}
}

// decodeBody limits and decodes a JSON request body, writing a 400 on failure.
func (h *Handlers) decodeBody(w http.ResponseWriter, r *http.Request, target any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxRequestBodyBytes)
	if err := decodeJSON(r, target); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, r, http.StatusRequestEntityTooLarge, model.ErrCodeInvalidInput, "request body too large")
			return false
		}
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// writeServiceError maps service and storage sentinels to HTTP responses.
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallbackMsg string) {
	switch {
	case errors.Is(err, agent.ErrInvalidInput), errors.Is(err, records.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
	case errors.Is(err, agent.ErrRunNotFound), errors.Is(err, agent.ErrSnapshotNotFound),
		errors.Is(err, records.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, err.Error())
	case errors.Is(err, agent.ErrApprovalRequired):
		writeError(w, r, http.StatusConflict, model.ErrCodeApprovalRequired, err.Error())
	case errors.Is(err, agent.ErrNoActions), errors.Is(err, records.ErrNotInConflict):
		writeError(w, r, http.StatusConflict, model.ErrCodeConflict, err.Error())
	case errors.Is(err, agent.ErrApplyFailed):
		h.logger.Error(fallbackMsg, "error", err, "request_id", RequestIDFromContext(r.Context()))
		writeError(w, r, http.StatusConflict, model.ErrCodeApplyFailed, "apply failed; no changes were made")
	case errors.Is(err, agent.ErrRunFailed):
		h.logger.Error(fallbackMsg, "error", err, "request_id", RequestIDFromContext(r.Context()))
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeRunFailed, "agent run failed")
	default:
		h.logger.Error(fallbackMsg, "error", err, "request_id", RequestIDFromContext(r.Context()))
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, fallbackMsg)
	}
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := r.PathValue(name)
	if raw == "" {
		return uuid.Nil, fmt.Errorf("%s is required", name)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s: %s", name, raw)
	}
	return id, nil
}

// maxQueryLimit is the maximum allowed value for limit query parameters.
const maxQueryLimit = 1000

// maxQueryOffset prevents absurdly large offsets.
const maxQueryOffset = 100_000

func queryInt(r *http.Request, key string, defaultVal int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

// queryLimit returns a limit clamped to [1, maxQueryLimit].
func queryLimit(r *http.Request, defaultVal int) int {
	return min(max(queryInt(r, "limit", defaultVal), 1), maxQueryLimit)
}

// queryOffset returns a non-negative, bounded offset.
func queryOffset(r *http.Request) int {
	return min(max(queryInt(r, "offset", 0), 0), maxQueryOffset)
}
