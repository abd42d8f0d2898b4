// Package handler provides HTTP request handlers for Sandstore.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/yndnr/sandstore-go/internal/core/domain"
	"github.com/yndnr/sandstore-go/internal/core/service"
)

// handleValidate handles POST /mws/{res_id}/validate/{coll}.
// Body: {"mode": "equals"|"contains"|"contains_any"|"contains_none",
// "documents": [...]}. The mode defaults to equals.
func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	a, err := readArgs(w, r)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	mode := service.ValidateEquals
	if name := a.str("mode"); name != "" {
		if mode, err = service.ParseValidationMode(name); err != nil {
			h.handleServiceError(w, r, err)
			return
		}
	}

	ok, err := h.validator.Validate(r.Context(), &service.ValidateRequest{
		Target:    target(r),
		Mode:      mode,
		Documents: a.raw("documents"),
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, ValidateResponse{Result: ok})
}

// handleLoadJSON handles POST /init/load_json.
func (h *Handler) handleLoadJSON(w http.ResponseWriter, r *http.Request) {
	a, err := readArgs(w, r)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	var req LoadJSONRequest
	if err := json.Unmarshal(a.whole(), &req); err != nil {
		h.handleServiceError(w, r, domain.ErrInvalidArgument.WithDetails("body must be {res_id, collections}"))
		return
	}
	if req.ResID == "" {
		h.handleServiceError(w, r, domain.ErrMissingArgument.WithDetails("res_id is required"))
		return
	}
	if len(req.Collections) == 0 {
		h.handleServiceError(w, r, domain.ErrMissingArgument.WithDetails("collections is required"))
		return
	}

	err = h.fixtures.Load(r.Context(), &service.LoadRequest{
		Token:       tokenFrom(r),
		ResID:       req.ResID,
		Collections: req.Collections,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
