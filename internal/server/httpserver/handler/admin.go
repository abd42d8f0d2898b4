// Package handler provides HTTP request handlers for Sandstore.
package handler

import (
	"net/http"
	"time"

	"github.com/yndnr/sandstore-go/internal/infra/buildinfo"
	"github.com/yndnr/sandstore-go/internal/telemetry/logger"
)

// handleAdminStatus handles GET /admin/v1/status.
func (h *Handler) handleAdminStatus(w http.ResponseWriter, r *http.Request) {
	n, err := h.registry.Count(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, StatusResponse{
		Status:         "running",
		Version:        buildinfo.Get().Version,
		ActiveSessions: n,
		Time:           time.Now().UTC().Format(time.RFC3339),
	})
}

// handleSweep handles POST /admin/v1/sweep.
func (h *Handler) handleSweep(w http.ResponseWriter, r *http.Request) {
	result, err := h.sweeper.RunOnce(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	logger.L(r.Context()).Info("sweep triggered",
		"reclaimed", result.Reclaimed,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"orphans", result.Orphans,
		"overlapped", result.Overlapped,
	)
	h.writeJSON(w, r, http.StatusOK, result)
}

// handleListSessions handles GET /admin/v1/namespaces/{res_id}/sessions.
func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	resID := r.PathValue("res_id")
	sessions, err := h.registry.Lookup(r.Context(), resID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	items := make([]SessionInfo, len(sessions))
	for i, s := range sessions {
		items[i] = sessionToInfo(s)
	}
	h.writeJSON(w, r, http.StatusOK, SessionListResponse{
		ResID:    resID,
		Sessions: items,
	})
}
