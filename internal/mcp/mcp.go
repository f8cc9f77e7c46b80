// Package mcp implements the Model Context Protocol server for Houra.
//
// The MCP server exposes the agent workflow (propose, review, apply, undo)
// and the audit trail through MCP tools and resources, so MCP-compatible
// assistants can drive the same operations as the HTTP API on behalf of
// the authenticated student.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/houra-app/houra/internal/ctxutil"
	"github.com/houra-app/houra/internal/model"
	"github.com/houra-app/houra/internal/service/agent"
	"github.com/houra-app/houra/internal/storage"
)

// errNoStudent is returned when a call arrives without a student identity.
var errNoStudent = errors.New("no authenticated student")

// Server wraps the MCP server with Houra's service layer.
type Server struct {
	mcpServer *mcpserver.MCPServer
	store     storage.Store
	agentSvc  *agent.Service
	logger    *slog.Logger
	model     string
}

// New creates and configures a new MCP server with all tools, resources and
// prompts. defaultModel is recorded on runs that do not name one.
func New(store storage.Store, agentSvc *agent.Service, logger *slog.Logger, version, defaultModel string) *Server {
	if defaultModel == "" {
		defaultModel = model.DefaultModel
	}
	s := &Server{
		store:    store,
		agentSvc: agentSvc,
		logger:   logger,
		model:    defaultModel,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"houra",
		version,
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithPromptCapabilities(true),
		mcpserver.WithInstructions(`Houra keeps a student's volunteer service log.
Propose changes with houra_agent_run, show the proposed actions to the student,
and apply only the ones they accept with houra_agent_apply. Dangerous actions
need approve_dangerous=true and explicit consent. Every apply returns a
snapshot_id that houra_snapshot_undo can record an undo for.`),
	)

	s.registerResources()
	s.registerTools()
	s.registerPrompts()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// caller returns the authenticated student. The HTTP layer only admits
// approved students to /mcp, so a missing identity means a misconfigured
// transport.
func caller(ctx context.Context) (uuid.UUID, model.Actor, error) {
	id, ok := ctxutil.IdentityFromContext(ctx)
	if !ok || id.StudentID == uuid.Nil {
		return uuid.Nil, model.Actor{}, errNoStudent
	}
	return id.StudentID, model.Actor{Type: model.ActorStudent, ID: id.ActorID}, nil
}

func jsonResult(v any) *mcplib.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult("failed to encode result: " + err.Error())
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
