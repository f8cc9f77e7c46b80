package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/houra-app/houra/internal/auth"
	"github.com/houra-app/houra/internal/ctxutil"
	"github.com/houra-app/houra/internal/ratelimit"
	"github.com/houra-app/houra/internal/service/agent"
	"github.com/houra-app/houra/internal/service/records"
	"github.com/houra-app/houra/internal/storage"
)

// Server is the Houra HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): Limiter, MCPServer.
type ServerConfig struct {
	// Required dependencies.
	Store      storage.Store
	AgentSvc   *agent.Service
	RecordsSvc *records.Service
	JWTMgr     *auth.JWTManager
	Logger     *slog.Logger

	// Optional dependencies (nil = disabled).
	Limiter   ratelimit.Limiter
	MCPServer *mcpserver.MCPServer

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64

	// CronSecret authenticates POST /v1/agent/runs/scheduled. Empty disables
	// the route.
	CronSecret string

	// Reported by GET /v1/agent/config and GET /health.
	GenerativeConfigured bool
	Model                string
	StoreName            string
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		Store:                cfg.Store,
		AgentSvc:             cfg.AgentSvc,
		RecordsSvc:           cfg.RecordsSvc,
		Logger:               cfg.Logger,
		Version:              cfg.Version,
		StoreName:            cfg.StoreName,
		MaxRequestBodyBytes:  cfg.MaxRequestBodyBytes,
		GenerativeConfigured: cfg.GenerativeConfigured,
		DefaultModel:         cfg.Model,
	})

	reqIDFunc := func(r *http.Request) string {
		return RequestIDFromContext(r.Context())
	}
	// Agent runs call the generative backend, so they are limited per student.
	runRL := ratelimit.Middleware(cfg.Limiter, runKeyFunc, reqIDFunc, cfg.Logger)

	mux := http.NewServeMux()

	// Agent endpoints (approved students only).
	mux.Handle("POST /v1/agent/runs", requireStudent(runRL(http.HandlerFunc(h.HandleCreateRun))))
	mux.Handle("GET /v1/agent/runs", requireStudent(http.HandlerFunc(h.HandleListRuns)))
	mux.Handle("GET /v1/agent/runs/{run_id}", requireStudent(http.HandlerFunc(h.HandleGetRun)))
	mux.Handle("POST /v1/agent/actions/apply", requireStudent(http.HandlerFunc(h.HandleApplyActions)))
	mux.Handle("POST /v1/snapshots/{snapshot_id}/undo", requireStudent(http.HandlerFunc(h.HandleUndoSnapshot)))
	mux.Handle("GET /v1/agent/config", requireStudent(http.HandlerFunc(h.HandleAgentConfig)))

	// Audit trail and manual record operations.
	mux.Handle("GET /v1/audit-events", requireStudent(http.HandlerFunc(h.HandleListAuditEvents)))
	mux.Handle("POST /v1/share-links/{link_id}/revoke", requireStudent(http.HandlerFunc(h.HandleRevokeShareLink)))
	mux.Handle("POST /v1/logs/bulk-status", requireStudent(http.HandlerFunc(h.HandleBulkStatus)))
	mux.Handle("POST /v1/sync/resolve-conflict", requireStudent(http.HandlerFunc(h.HandleResolveConflict)))

	// Cron trigger (cron secret, checked by authMiddleware).
	mux.HandleFunc("POST "+scheduledPath, h.HandleScheduledRun)

	// MCP StreamableHTTP transport (approved students only).
	if cfg.MCPServer != nil {
		mcpHTTP := mcpserver.NewStreamableHTTPServer(cfg.MCPServer)
		mux.Handle("/mcp", requireStudent(mcpHTTP))
	}

	// Health (no auth).
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.JWTMgr, cfg.CronSecret, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// runKeyFunc keys the run rate limit by student.
func runKeyFunc(r *http.Request) string {
	studentID := ctxutil.StudentIDFromContext(r.Context())
	if studentID == uuid.Nil {
		return ""
	}
	return "run:student:" + studentID.String()
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
