package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

const (
	stateURI      = "houra://state/current"
	recentRunsURI = "houra://runs/recent"
)

func (s *Server) registerResources() {
	// houra://state/current — the records the agent may act on.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			stateURI,
			"Current State",
			mcplib.WithResourceDescription("The student's organizations, service entries, sync queue and share links, newest first"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleStateCurrent,
	)

	// houra://runs/recent — the latest agent runs.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			recentRunsURI,
			"Recent Runs",
			mcplib.WithResourceDescription("The student's most recent agent runs"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleRecentRuns,
	)
}

func (s *Server) handleStateCurrent(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	studentID, _, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	state, err := s.store.GetStateForStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("mcp: current state: %w", err)
	}
	return jsonResource(stateURI, state)
}

func (s *Server) handleRecentRuns(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	studentID, _, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	runs, err := s.store.ListRuns(ctx, studentID, 10, 0)
	if err != nil {
		return nil, fmt.Errorf("mcp: recent runs: %w", err)
	}
	return jsonResource(recentRunsURI, map[string]any{"runs": runs, "total": len(runs)})
}

func jsonResource(uri string, v any) ([]mcplib.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal %s: %w", uri, err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
