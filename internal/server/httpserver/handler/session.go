// Package handler provides HTTP request handlers for Sandstore.
package handler

import (
	"net/http"

	"github.com/yndnr/sandstore-go/internal/core/service"
	"github.com/yndnr/sandstore-go/internal/telemetry/logger"
)

// handleResolve handles POST /mws/.
func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	resp, err := h.registry.ResolveOrCreate(r.Context(), &service.ResolveRequest{
		Token: tokenFrom(r),
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	if resp.IsNew {
		if h.metrics != nil {
			h.metrics.SessionsCreated.Inc()
		}
		logger.L(r.Context()).Info("namespace allocated", "res_id", resp.Session.ResID)
	}

	h.setToken(w, resp.Token)
	h.writeJSON(w, r, http.StatusOK, ResolveResponse{
		ResID: resp.Session.ResID,
		IsNew: resp.IsNew,
	})
}

// handleKeepAlive handles POST /mws/{res_id}/keep-alive.
func (h *Handler) handleKeepAlive(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.KeepAlive(r.Context(), tokenFrom(r), r.PathValue("res_id")); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAttach handles POST /mws/{res_id}/attach.
func (h *Handler) handleAttach(w http.ResponseWriter, r *http.Request) {
	resID := r.PathValue("res_id")
	resp, err := h.registry.Attach(r.Context(), tokenFrom(r), resID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	if h.metrics != nil {
		h.metrics.SessionsAttached.Inc()
	}
	h.writeJSON(w, r, http.StatusOK, AttachResponse{
		ResID: resID,
		Token: resp.Token,
	})
}
