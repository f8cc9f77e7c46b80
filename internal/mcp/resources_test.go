package mcp

import (
	"context"
	"encoding/json"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/houra-app/houra/internal/model"
)

func resourceText(t *testing.T, contents []mcplib.ResourceContents) string {
	t.Helper()
	require.Len(t, contents, 1)
	tc, ok := contents[0].(mcplib.TextResourceContents)
	require.True(t, ok)
	assert.Equal(t, "application/json", tc.MIMEType)
	return tc.Text
}

func TestHandleStateCurrent(t *testing.T) {
	s, f := newTestServer(t)

	contents, err := s.handleStateCurrent(studentCtx(f.Student.ID), mcplib.ReadResourceRequest{})
	require.NoError(t, err)

	var state model.DomainState
	require.NoError(t, json.Unmarshal([]byte(resourceText(t, contents)), &state))
	assert.Equal(t, f.Student.ID, state.StudentID)
	require.Len(t, state.Entries, 1)
	assert.Equal(t, f.Entry.ID, state.Entries[0].ID)

	_, err = s.handleStateCurrent(context.Background(), mcplib.ReadResourceRequest{})
	assert.ErrorIs(t, err, errNoStudent)
}

func TestHandleRecentRuns(t *testing.T) {
	s, f := newTestServer(t)
	ctx := studentCtx(f.Student.ID)
	detail := mustRun(t, s, ctx)

	contents, err := s.handleRecentRuns(ctx, mcplib.ReadResourceRequest{})
	require.NoError(t, err)

	var resp struct {
		Runs  []model.AgentRun `json:"runs"`
		Total int              `json:"total"`
	}
	require.NoError(t, json.Unmarshal([]byte(resourceText(t, contents)), &resp))
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, detail.Run.ID, resp.Runs[0].ID)
}
