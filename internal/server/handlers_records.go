package server

import (
	"net/http"

	"github.com/houra-app/houra/internal/model"
)

// HandleRevokeShareLink handles POST /v1/share-links/{link_id}/revoke.
func (h *Handlers) HandleRevokeShareLink(w http.ResponseWriter, r *http.Request) {
	linkID, err := pathUUID(r, "link_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	id := identity(r)
	link, err := h.recordsSvc.RevokeShareLink(r.Context(), id.StudentID, studentActor(id), linkID)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to revoke share link")
		return
	}
	writeJSON(w, r, http.StatusOK, link)
}

// HandleBulkStatus handles POST /v1/logs/bulk-status.
func (h *Handlers) HandleBulkStatus(w http.ResponseWriter, r *http.Request) {
	var req model.BulkStatusRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	id := identity(r)
	n, err := h.recordsSvc.BulkSetStatus(r.Context(), id.StudentID, studentActor(id), req)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to update entry status")
		return
	}
	writeJSON(w, r, http.StatusOK, model.BulkStatusResponse{Updated: n})
}

// HandleResolveConflict handles POST /v1/sync/resolve-conflict.
func (h *Handlers) HandleResolveConflict(w http.ResponseWriter, r *http.Request) {
	var req model.ResolveConflictRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	id := identity(r)
	item, err := h.recordsSvc.ResolveSyncConflict(r.Context(), id.StudentID, studentActor(id), req)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to resolve sync conflict")
		return
	}
	writeJSON(w, r, http.StatusOK, item)
}
