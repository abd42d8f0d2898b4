package handler

import (
	"net/http"
	"time"

	"github.com/yndnr/sandstore-go/internal/telemetry/logger"
)

// probe writes a probe body. Values stay strings so clients can decode the
// body into a flat map.
func (h *Handler) probe(w http.ResponseWriter, r *http.Request, status int, state string) {
	h.writeJSON(w, r, status, map[string]string{
		"status": state,
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleHealth reports liveness. It never touches storage.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.probe(w, r, http.StatusOK, "healthy")
}

// handleReady reports whether the storage engine answers.
func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if h.storage == nil {
		h.probe(w, r, http.StatusOK, "ready")
		return
	}
	if err := h.storage.Ping(r.Context()); err != nil {
		logger.L(r.Context()).Warn("storage not ready", "error", err)
		h.probe(w, r, http.StatusServiceUnavailable, "unavailable")
		return
	}
	h.probe(w, r, http.StatusOK, "ready")
}
