package server

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"time"

	"github.com/houra-app/houra/internal/model"
)

// auditCSVHeader is the column order of the CSV audit export.
var auditCSVHeader = []string{
	"timestamp", "actorType", "actorId", "source", "entityType",
	"entityId", "actionType", "correlationId", "snapshotId", "diffJson",
}

// HandleListAuditEvents handles GET /v1/audit-events. format=csv streams the
// same rows as a CSV attachment.
func (h *Handlers) HandleListAuditEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := model.AuditFilter{
		ActorType:  model.ActorType(q.Get("actor_type")),
		EntityType: model.EntityType(q.Get("entity_type")),
		ActionType: model.ActionType(q.Get("action_type")),
		Limit:      queryLimit(r, model.DefaultAuditLimit),
	}
	if f.ActorType != "" && !f.ActorType.Valid() {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, fmt.Sprintf("invalid actor_type: %s", f.ActorType))
		return
	}
	if f.EntityType != "" && !f.EntityType.Valid() {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, fmt.Sprintf("invalid entity_type: %s", f.EntityType))
		return
	}

	format := q.Get("format")
	if format != "" && format != "json" && format != "csv" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "format must be json or csv")
		return
	}

	events, err := h.store.ListAuditEvents(r.Context(), identity(r).StudentID, f)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to list audit events")
		return
	}
	if events == nil {
		events = []model.AuditEvent{}
	}

	if format == "csv" {
		h.writeAuditCSV(w, events)
		return
	}
	writeJSON(w, r, http.StatusOK, events)
}

func (h *Handlers) writeAuditCSV(w http.ResponseWriter, events []model.AuditEvent) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="houra-audit.csv"`)
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	_ = cw.Write(auditCSVHeader)
	for _, e := range events {
		_ = cw.Write(auditCSVRow(e))
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		h.logger.Warn("audit csv export: write failed", "error", err)
	}
}

func auditCSVRow(e model.AuditEvent) []string {
	actorID := ""
	if e.ActorID != nil {
		actorID = *e.ActorID
	}
	snapshotID := ""
	if e.SnapshotID != nil {
		snapshotID = e.SnapshotID.String()
	}
	diff := "{}"
	if len(e.Diff) > 0 {
		diff = string(e.Diff)
	}
	return []string{
		e.Timestamp.UTC().Format(time.RFC3339Nano),
		string(e.ActorType),
		actorID,
		string(e.Source),
		string(e.EntityType),
		e.EntityID.String(),
		string(e.ActionType),
		e.CorrelationID.String(),
		snapshotID,
		diff,
	}
}
