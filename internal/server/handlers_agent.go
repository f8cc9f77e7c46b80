package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/houra-app/houra/internal/model"
	"github.com/houra-app/houra/internal/service/agent"
)

// HandleCreateRun handles POST /v1/agent/runs.
func (h *Handlers) HandleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req model.CreateRunRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if req.Model == "" {
		req.Model = h.defaultModel
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	id := identity(r)
	res, err := h.agentSvc.Run(r.Context(), agent.RunInput{
		StudentID:    id.StudentID,
		Objective:    req.Objective,
		ContextScope: req.ContextScope,
		Model:        req.Model,
		Autonomous:   req.Autonomous,
	})
	if err != nil {
		h.writeServiceError(w, r, err, "failed to run agent")
		return
	}
	writeJSON(w, r, http.StatusCreated, model.RunDetail{Run: res.Run, Actions: res.Actions})
}

// HandleListRuns handles GET /v1/agent/runs.
func (h *Handlers) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 50)
	offset := queryOffset(r)
	// Fetch one extra row to learn whether another page exists.
	runs, err := h.store.ListRuns(r.Context(), identity(r).StudentID, limit+1, offset)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to list runs")
		return
	}
	hasMore := len(runs) > limit
	if hasMore {
		runs = runs[:limit]
	}
	if runs == nil {
		runs = []model.AgentRun{}
	}
	writeList(w, r, runs, hasMore, limit, offset)
}

// HandleGetRun handles GET /v1/agent/runs/{run_id}.
func (h *Handlers) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	runID, err := pathUUID(r, "run_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	run, err := h.store.GetRun(r.Context(), identity(r).StudentID, runID)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to get run")
		return
	}
	actions, err := h.store.ListActionsByRun(r.Context(), run.ID)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to list actions")
		return
	}
	if actions == nil {
		actions = []model.AgentAction{}
	}
	writeJSON(w, r, http.StatusOK, model.RunDetail{Run: run, Actions: actions})
}

// HandleApplyActions handles POST /v1/agent/actions/apply.
func (h *Handlers) HandleApplyActions(w http.ResponseWriter, r *http.Request) {
	var req model.ApplyActionsRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	id := identity(r)
	res, err := h.agentSvc.Apply(r.Context(), agent.ApplyInput{
		StudentID:        id.StudentID,
		RunID:            req.RunID,
		ActionIDs:        req.ActionIDs,
		ApproveDangerous: req.ApproveDangerous,
		Actor:            studentActor(id),
	})
	if err != nil {
		h.writeServiceError(w, r, err, "failed to apply actions")
		return
	}
	writeJSON(w, r, http.StatusOK, model.ApplyActionsResponse{SnapshotID: res.SnapshotID, Applied: res.Applied})
}

// HandleUndoSnapshot handles POST /v1/snapshots/{snapshot_id}/undo.
func (h *Handlers) HandleUndoSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshotID, err := pathUUID(r, "snapshot_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	id := identity(r)
	res, err := h.agentSvc.Undo(r.Context(), agent.UndoInput{
		StudentID:  id.StudentID,
		SnapshotID: snapshotID,
		Actor:      studentActor(id),
	})
	if err != nil {
		h.writeServiceError(w, r, err, "failed to undo snapshot")
		return
	}
	writeJSON(w, r, http.StatusOK, model.UndoResponse{Success: res.Success})
}

// HandleAgentConfig handles GET /v1/agent/config.
func (h *Handlers) HandleAgentConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, model.AgentConfigResponse{
		GenerativeConfigured: h.generativeConfigured,
		Model:                h.defaultModel,
	})
}

// HandleScheduledRun handles POST /v1/agent/runs/scheduled. The body is
// optional. Without a student_id the most recently updated approved student
// is used.
func (h *Handlers) HandleScheduledRun(w http.ResponseWriter, r *http.Request) {
	if !isCron(r.Context()) {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "unauthorized cron invocation")
		return
	}

	var req model.ScheduledRunRequest
	r.Body = http.MaxBytesReader(w, r.Body, h.maxRequestBodyBytes)
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	var studentID uuid.UUID
	if req.StudentID != nil {
		studentID = *req.StudentID
	} else {
		students, err := h.store.ListActiveStudents(r.Context(), 1)
		if err != nil {
			h.writeServiceError(w, r, err, "failed to pick student")
			return
		}
		if len(students) == 0 {
			writeError(w, r, http.StatusConflict, model.ErrCodeConflict, "student profile unavailable")
			return
		}
		studentID = students[0].ID
	}

	modelName := req.Model
	if modelName == "" {
		modelName = h.defaultModel
	}
	res, err := h.agentSvc.RunAutonomous(r.Context(), studentID, agent.AutonomousInput{
		Objective:    req.Objective,
		ContextScope: req.ContextScope,
		Model:        modelName,
	})
	if err != nil {
		h.writeServiceError(w, r, err, "scheduled run failed")
		return
	}
	writeJSON(w, r, http.StatusOK, scheduledResponse(res))
}

func scheduledResponse(res agent.AutonomousResult) model.ScheduledRunResponse {
	return model.ScheduledRunResponse{RunID: res.RunID, Proposed: res.Proposed, AppliedSafe: res.AppliedSafe}
}
