package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/houra-app/houra/internal/model"
	"github.com/houra-app/houra/internal/service/agent"
)

func (s *Server) registerTools() {
	// houra_agent_run — propose actions for the student's records.
	s.mcpServer.AddTool(
		mcplib.NewTool("houra_agent_run",
			mcplib.WithDescription(`Ask the Houra agent to propose fixes for the student's service log.

Returns the run and its proposed actions. Nothing is changed until the
actions are applied with houra_agent_apply. Actions with safety_class
"dangerous" need the student's explicit consent before applying.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(true),
			mcplib.WithString("objective",
				mcplib.Description("What the student wants done, e.g. \"tidy up pending logs\""),
				mcplib.Required(),
			),
			mcplib.WithString("context_scope",
				mcplib.Description("Which screen or area the request came from (default: mcp)"),
			),
			mcplib.WithString("model",
				mcplib.Description("Model name to record on the run"),
			),
		),
		s.handleAgentRun,
	)

	// houra_agent_apply — apply selected actions of a run.
	s.mcpServer.AddTool(
		mcplib.NewTool("houra_agent_apply",
			mcplib.WithDescription(`Apply selected actions from a run in one batch.

Already-applied and unknown action ids are skipped. The whole batch fails
if any dangerous action is selected without approve_dangerous=true.
Returns the snapshot_id of the batch.`),
			mcplib.WithDestructiveHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("run_id",
				mcplib.Description("Run that proposed the actions"),
				mcplib.Required(),
			),
			mcplib.WithArray("action_ids",
				mcplib.Description("Ids of the actions to apply"),
				mcplib.WithStringItems(),
				mcplib.Required(),
			),
			mcplib.WithBoolean("approve_dangerous",
				mcplib.Description("Set only when the student explicitly approved the dangerous actions"),
			),
		),
		s.handleAgentApply,
	)

	// houra_snapshot_undo — record an undo request for an apply batch.
	s.mcpServer.AddTool(
		mcplib.NewTool("houra_snapshot_undo",
			mcplib.WithDescription(`Record an undo request for an applied batch. The request is written
to the audit trail; record state is not reverted.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("snapshot_id",
				mcplib.Description("Snapshot returned by houra_agent_apply"),
				mcplib.Required(),
			),
		),
		s.handleSnapshotUndo,
	)

	// houra_audit_list — read the audit trail.
	s.mcpServer.AddTool(
		mcplib.NewTool("houra_audit_list",
			mcplib.WithDescription("List the student's audit events, newest first, with optional filters."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("actor_type",
				mcplib.Description("Filter by actor: student, ai_agent or system"),
			),
			mcplib.WithString("entity_type",
				mcplib.Description("Filter by entity, e.g. serviceEntry or agentAction"),
			),
			mcplib.WithString("action_type",
				mcplib.Description("Filter by action, e.g. propose, apply or undo"),
			),
			mcplib.WithNumber("limit",
				mcplib.Description("Maximum events to return (default 50)"),
				mcplib.Min(1),
				mcplib.Max(500),
			),
		),
		s.handleAuditList,
	)
}

func (s *Server) handleAgentRun(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	studentID, _, err := caller(ctx)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	req := model.CreateRunRequest{
		Objective:    request.GetString("objective", ""),
		ContextScope: request.GetString("context_scope", "mcp"),
		Model:        request.GetString("model", s.model),
	}
	if err := req.Validate(); err != nil {
		return errorResult(err.Error()), nil
	}

	res, err := s.agentSvc.Run(ctx, agent.RunInput{
		StudentID:    studentID,
		Objective:    req.Objective,
		ContextScope: req.ContextScope,
		Model:        req.Model,
	})
	if err != nil {
		return errorResult(toolError("agent run", err)), nil
	}
	return jsonResult(model.RunDetail{Run: res.Run, Actions: res.Actions}), nil
}

func (s *Server) handleAgentApply(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	studentID, actor, err := caller(ctx)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	runID, err := uuid.Parse(request.GetString("run_id", ""))
	if err != nil {
		return errorResult("run_id must be a valid UUID"), nil
	}
	var actionIDs []uuid.UUID
	for _, raw := range request.GetStringSlice("action_ids", nil) {
		id, err := uuid.Parse(raw)
		if err != nil {
			return errorResult(fmt.Sprintf("invalid action id: %s", raw)), nil
		}
		actionIDs = append(actionIDs, id)
	}
	req := model.ApplyActionsRequest{
		RunID:            runID,
		ActionIDs:        actionIDs,
		ApproveDangerous: request.GetBool("approve_dangerous", false),
	}
	if err := req.Validate(); err != nil {
		return errorResult(err.Error()), nil
	}

	res, err := s.agentSvc.Apply(ctx, agent.ApplyInput{
		StudentID:        studentID,
		RunID:            req.RunID,
		ActionIDs:        req.ActionIDs,
		ApproveDangerous: req.ApproveDangerous,
		Actor:            actor,
	})
	if err != nil {
		return errorResult(toolError("apply", err)), nil
	}
	return jsonResult(model.ApplyActionsResponse{SnapshotID: res.SnapshotID, Applied: res.Applied}), nil
}

func (s *Server) handleSnapshotUndo(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	studentID, actor, err := caller(ctx)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	snapshotID, err := uuid.Parse(request.GetString("snapshot_id", ""))
	if err != nil {
		return errorResult("snapshot_id must be a valid UUID"), nil
	}

	res, err := s.agentSvc.Undo(ctx, agent.UndoInput{StudentID: studentID, SnapshotID: snapshotID, Actor: actor})
	if err != nil {
		return errorResult(toolError("undo", err)), nil
	}
	return jsonResult(model.UndoResponse{Success: res.Success}), nil
}

func (s *Server) handleAuditList(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	studentID, _, err := caller(ctx)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	f := model.AuditFilter{
		ActorType:  model.ActorType(request.GetString("actor_type", "")),
		EntityType: model.EntityType(request.GetString("entity_type", "")),
		ActionType: model.ActionType(request.GetString("action_type", "")),
		Limit:      min(max(request.GetInt("limit", 50), 1), 500),
	}
	if f.ActorType != "" && !f.ActorType.Valid() {
		return errorResult(fmt.Sprintf("invalid actor_type: %s", f.ActorType)), nil
	}
	if f.EntityType != "" && !f.EntityType.Valid() {
		return errorResult(fmt.Sprintf("invalid entity_type: %s", f.EntityType)), nil
	}

	events, err := s.store.ListAuditEvents(ctx, studentID, f)
	if err != nil {
		s.logger.Error("mcp: list audit events failed", "error", err)
		return errorResult("failed to list audit events"), nil
	}
	if events == nil {
		events = []model.AuditEvent{}
	}
	return jsonResult(map[string]any{"events": events, "total": len(events)}), nil
}

// toolError renders a service error for the assistant. Caller errors are
// shown verbatim; failures are reported without internals.
func toolError(op string, err error) string {
	switch {
	case agent.IsValidation(err):
		return err.Error()
	case errors.Is(err, agent.ErrApplyFailed):
		return op + " failed; no changes were made"
	default:
		return op + " failed"
	}
}
