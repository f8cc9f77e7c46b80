package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/houra-app/houra/internal/auth"
	"github.com/houra-app/houra/internal/ctxutil"
	"github.com/houra-app/houra/internal/model"
	"github.com/houra-app/houra/internal/service/agent"
	"github.com/houra-app/houra/internal/service/proposer"
	"github.com/houra-app/houra/internal/storage/memory"
	"github.com/houra-app/houra/internal/storage/storetest"
	"github.com/houra-app/houra/internal/testutil"
)

func newTestServer(t *testing.T) (*Server, storetest.Fixture) {
	t.Helper()
	logger := testutil.TestLogger()
	store := memory.New()
	f := storetest.Seed(t, store)
	svc := agent.New(store, proposer.New(nil, time.Second, logger), logger)
	return New(store, svc, logger, "test", ""), f
}

// studentCtx returns a context carrying an approved student identity.
func studentCtx(studentID uuid.UUID) context.Context {
	return ctxutil.WithIdentity(context.Background(), auth.Identity{
		ActorID:   studentID.String(),
		StudentID: studentID,
		Role:      auth.RoleStudent,
		Approved:  true,
	})
}

func toolRequest(name string, args map[string]any) mcplib.CallToolRequest {
	return mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// parseToolText extracts the first TextContent text from a CallToolResult.
func parseToolText(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	for _, c := range result.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no TextContent found in tool result")
	return ""
}

func mustRun(t *testing.T, s *Server, ctx context.Context) model.RunDetail {
	t.Helper()
	result, err := s.handleAgentRun(ctx, toolRequest("houra_agent_run", map[string]any{
		"objective": "get my hours ready",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, parseToolText(t, result))

	var detail model.RunDetail
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &detail))
	return detail
}

func idStrings(actions []model.AgentAction, keep func(model.AgentAction) bool) []any {
	var out []any
	for _, a := range actions {
		if keep(a) {
			out = append(out, a.ID.String())
		}
	}
	return out
}

func TestHandleAgentRun(t *testing.T) {
	s, f := newTestServer(t)
	detail := mustRun(t, s, studentCtx(f.Student.ID))

	assert.Equal(t, f.Student.ID, detail.Run.StudentID)
	assert.Equal(t, "mcp", detail.Run.ContextScope)
	assert.Equal(t, model.DefaultModel, detail.Run.Model)
	assert.Len(t, detail.Actions, 3)
}

func TestHandleAgentRun_Validation(t *testing.T) {
	s, f := newTestServer(t)

	result, err := s.handleAgentRun(studentCtx(f.Student.ID), toolRequest("houra_agent_run", map[string]any{"objective": "no"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, parseToolText(t, result), "objective")
}

func TestTools_RequireStudent(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	for name, handler := range map[string]func(context.Context, mcplib.CallToolRequest) (*mcplib.CallToolResult, error){
		"houra_agent_run":     s.handleAgentRun,
		"houra_agent_apply":   s.handleAgentApply,
		"houra_snapshot_undo": s.handleSnapshotUndo,
		"houra_audit_list":    s.handleAuditList,
	} {
		t.Run(name, func(t *testing.T) {
			result, err := handler(ctx, toolRequest(name, map[string]any{}))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Equal(t, errNoStudent.Error(), parseToolText(t, result))
		})
	}
}

func TestHandleAgentApply_SafeThenDangerous(t *testing.T) {
	s, f := newTestServer(t)
	ctx := studentCtx(f.Student.ID)
	detail := mustRun(t, s, ctx)

	all := idStrings(detail.Actions, func(model.AgentAction) bool { return true })
	result, err := s.handleAgentApply(ctx, toolRequest("houra_agent_apply", map[string]any{
		"run_id": detail.Run.ID.String(), "action_ids": all,
	}))
	require.NoError(t, err)
	require.True(t, result.IsError)
	assert.Contains(t, parseToolText(t, result), agent.ErrApprovalRequired.Error())

	safe := idStrings(detail.Actions, func(a model.AgentAction) bool { return a.SafetyClass == model.SafetySafe })
	result, err = s.handleAgentApply(ctx, toolRequest("houra_agent_apply", map[string]any{
		"run_id": detail.Run.ID.String(), "action_ids": safe,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, parseToolText(t, result))

	var applied model.ApplyActionsResponse
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &applied))
	assert.Len(t, applied.Applied, 2)

	result, err = s.handleAgentApply(ctx, toolRequest("houra_agent_apply", map[string]any{
		"run_id": detail.Run.ID.String(), "action_ids": all, "approve_dangerous": true,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, parseToolText(t, result))
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &applied))
	require.Len(t, applied.Applied, 1, "already applied actions are skipped")
	assert.Equal(t, model.ActionShareLinkChange, applied.Applied[0].ActionKind)
}

func TestHandleAgentApply_BadArguments(t *testing.T) {
	s, f := newTestServer(t)
	ctx := studentCtx(f.Student.ID)

	tests := []struct {
		name    string
		args    map[string]any
		errText string
	}{
		{"bad run id", map[string]any{"run_id": "nope", "action_ids": []any{uuid.NewString()}}, "run_id must be a valid UUID"},
		{"bad action id", map[string]any{"run_id": uuid.NewString(), "action_ids": []any{"nope"}}, "invalid action id"},
		{"no actions", map[string]any{"run_id": uuid.NewString()}, "action_ids"},
		{"unknown run", map[string]any{"run_id": uuid.NewString(), "action_ids": []any{uuid.NewString()}}, agent.ErrRunNotFound.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := s.handleAgentApply(ctx, toolRequest("houra_agent_apply", tt.args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Contains(t, parseToolText(t, result), tt.errText)
		})
	}
}

func TestHandleSnapshotUndo(t *testing.T) {
	s, f := newTestServer(t)
	ctx := studentCtx(f.Student.ID)
	detail := mustRun(t, s, ctx)

	result, err := s.handleAgentApply(ctx, toolRequest("houra_agent_apply", map[string]any{
		"run_id":     detail.Run.ID.String(),
		"action_ids": idStrings(detail.Actions, func(a model.AgentAction) bool { return a.SafetyClass == model.SafetySafe }),
	}))
	require.NoError(t, err)
	var applied model.ApplyActionsResponse
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &applied))

	result, err = s.handleSnapshotUndo(ctx, toolRequest("houra_snapshot_undo", map[string]any{"snapshot_id": applied.SnapshotID.String()}))
	require.NoError(t, err)
	require.False(t, result.IsError, parseToolText(t, result))
	assert.JSONEq(t, `{"success":true}`, parseToolText(t, result))

	result, err = s.handleSnapshotUndo(ctx, toolRequest("houra_snapshot_undo", map[string]any{"snapshot_id": uuid.NewString()}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, parseToolText(t, result), agent.ErrSnapshotNotFound.Error())
}

func TestHandleAuditList(t *testing.T) {
	s, f := newTestServer(t)
	ctx := studentCtx(f.Student.ID)
	mustRun(t, s, ctx)

	result, err := s.handleAuditList(ctx, toolRequest("houra_audit_list", map[string]any{"action_type": "propose"}))
	require.NoError(t, err)
	require.False(t, result.IsError, parseToolText(t, result))

	var resp struct {
		Events []model.AuditEvent `json:"events"`
		Total  int                `json:"total"`
	}
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &resp))
	assert.Equal(t, 3, resp.Total)
	for _, e := range resp.Events {
		assert.Equal(t, model.ActionTypePropose, e.ActionType)
	}

	result, err = s.handleAuditList(ctx, toolRequest("houra_audit_list", map[string]any{"actor_type": "robot"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	// Another student sees nothing.
	result, err = s.handleAuditList(studentCtx(uuid.New()), toolRequest("houra_audit_list", nil))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &resp))
	assert.Zero(t, resp.Total)
}
