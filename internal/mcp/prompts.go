package mcp

import (
	"context"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	// review-log — walks the assistant through propose, confirm, apply.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("review-log",
			mcplib.WithPromptDescription("Review the student's service log with the Houra agent and apply accepted fixes"),
			mcplib.WithArgument("objective",
				mcplib.ArgumentDescription("What the student wants done (e.g., get my hours ready to submit)"),
				mcplib.RequiredArgument(),
			),
		),
		s.handleReviewLogPrompt,
	)

	// agent-setup — system prompt snippet explaining the Houra safety rules.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("agent-setup",
			mcplib.WithPromptDescription("System prompt snippet explaining how to act on a student's records through Houra"),
		),
		s.handleAgentSetupPrompt,
	)
}

func (s *Server) handleReviewLogPrompt(ctx context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	objective := request.Params.Arguments["objective"]
	if objective == "" {
		return nil, fmt.Errorf("objective argument is required")
	}

	return &mcplib.GetPromptResult{
		Description: "Review the service log: " + objective,
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Help me with my service log. Objective: %q

1. CALL houra_agent_run with objective=%q.

2. SHOW me each proposed action: its title, detail, diff and safety_class.
   Group the "dangerous" ones separately and say why they need my consent.

3. ASK which actions I want applied. Do not assume.

4. CALL houra_agent_apply with the run_id and only the action_ids I accepted.
   Set approve_dangerous=true only if I explicitly approved the dangerous ones.

5. TELL me the snapshot_id so I can ask for an undo later.`, objective, objective),
				},
			},
		},
	}, nil
}

func (s *Server) handleAgentSetupPrompt(ctx context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	return &mcplib.GetPromptResult{
		Description: "Houra agent workflow for AI assistants",
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: `You have access to Houra, a volunteer service log. Every change you make
on the student's behalf is proposed first, applied only on request, and
written to an append-only audit trail.

## The Pattern: Propose, Confirm, Apply

- houra_agent_run proposes actions. It never changes records.
- houra_agent_apply applies the actions the student accepted, in one batch.
  If anything in the batch fails, nothing is applied.
- houra_snapshot_undo records that the student wants a batch undone.
- houra_audit_list shows what happened, who did it and when.

## Safety Classes

- safe: status normalization, sync retry, metadata dedup. Apply when asked.
- dangerous: archiving, share link changes, exports, bulk status changes.
  Apply only with approve_dangerous=true after the student says yes to
  that specific action.

## Resources

- houra://state/current: the records the agent works from
- houra://runs/recent: the latest runs and their status`,
				},
			},
		},
	}, nil
}
