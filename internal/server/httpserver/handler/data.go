// Package handler provides HTTP request handlers for Sandstore.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/yndnr/sandstore-go/internal/core/domain"
	"github.com/yndnr/sandstore-go/internal/core/service"
)

// target builds the service target from the request path and token.
func target(r *http.Request) service.Target {
	return service.Target{
		Token:      tokenFrom(r),
		ResID:      r.PathValue("res_id"),
		Collection: r.PathValue("coll"),
	}
}

// ============================================================================
// Read Operations
// ============================================================================

// handleFind handles GET /mws/{res_id}/db/{coll}/find.
func (h *Handler) handleFind(w http.ResponseWriter, r *http.Request) {
	a, err := readArgs(w, r)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	skip, err := a.int("skip")
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	limit, err := a.int("limit")
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	docs, err := h.data.Find(r.Context(), &service.FindRequest{
		Target:     target(r),
		Query:      a.raw("query"),
		Projection: a.raw("projection"),
		Sort:       a.raw("sort"),
		Skip:       skip,
		Limit:      limit,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, ResultResponse{Result: nonNil(docs)})
}

// handleCount handles GET /mws/{res_id}/db/{coll}/count.
func (h *Handler) handleCount(w http.ResponseWriter, r *http.Request) {
	a, err := readArgs(w, r)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	skip, err := a.int("skip")
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	limit, err := a.int("limit")
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	n, err := h.data.Count(r.Context(), &service.CountRequest{
		Target: target(r),
		Query:  a.raw("query"),
		Skip:   skip,
		Limit:  limit,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, CountResponse{Count: n})
}

// handleAggregate handles GET /mws/{res_id}/db/{coll}/aggregate.
// The pipeline is the whole argument value, or its "pipeline" field.
func (h *Handler) handleAggregate(w http.ResponseWriter, r *http.Request) {
	a, err := readArgs(w, r)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	pipeline := a.whole()
	if a.has("pipeline") {
		pipeline = a.raw("pipeline")
	}

	docs, err := h.data.Aggregate(r.Context(), &service.AggregateRequest{
		Target:   target(r),
		Pipeline: pipeline,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, AggregateResponse{OK: 1, Result: nonNil(docs)})
}

// ============================================================================
// Write Operations
// ============================================================================

// handleInsert handles POST /mws/{res_id}/db/{coll}/insert.
func (h *Handler) handleInsert(w http.ResponseWriter, r *http.Request) {
	a, err := readArgs(w, r)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	err = h.data.Insert(r.Context(), &service.InsertRequest{
		Target:    target(r),
		Documents: a.raw("document"),
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUpdate handles PUT /mws/{res_id}/db/{coll}/update.
func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	a, err := readArgs(w, r)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	_, err = h.data.Update(r.Context(), &service.UpdateRequest{
		Target: target(r),
		Query:  a.raw("query"),
		Update: a.raw("update"),
		Upsert: a.bool("upsert"),
		Multi:  a.bool("multi"),
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRemove handles DELETE /mws/{res_id}/db/{coll}/remove.
func (h *Handler) handleRemove(w http.ResponseWriter, r *http.Request) {
	a, err := readArgs(w, r)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	_, err = h.data.Remove(r.Context(), &service.RemoveRequest{
		Target:     target(r),
		Constraint: a.raw("constraint"),
		JustOne:    a.bool("just_one"),
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDrop handles DELETE /mws/{res_id}/db/{coll}/drop.
func (h *Handler) handleDrop(w http.ResponseWriter, r *http.Request) {
	t := target(r)
	if err := h.data.Drop(r.Context(), &t); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// Index Operations
// ============================================================================

// handleEnsureIndex handles POST /mws/{res_id}/db/{coll}/ensureIndex.
// Body: {"keys": {...}, "options": {"name", "unique", "sparse", "background",
// "expireAfterSeconds"}}.
func (h *Handler) handleEnsureIndex(w http.ResponseWriter, r *http.Request) {
	a, err := readArgs(w, r)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	var spec domain.IndexSpec
	if opts := a.raw("options"); opts != nil {
		if err := json.Unmarshal(opts, &spec); err != nil {
			h.handleServiceError(w, r, domain.ErrInvalidArgument.WithDetails("options: "+err.Error()))
			return
		}
	}
	spec.Keys = a.raw("keys")

	_, err = h.data.EnsureIndex(r.Context(), &service.EnsureIndexRequest{
		Target: target(r),
		Spec:   spec,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleReIndex handles PUT /mws/{res_id}/db/{coll}/reIndex.
func (h *Handler) handleReIndex(w http.ResponseWriter, r *http.Request) {
	t := target(r)
	if err := h.data.ReIndex(r.Context(), &t); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDropIndex handles DELETE /mws/{res_id}/db/{coll}/dropIndex.
func (h *Handler) handleDropIndex(w http.ResponseWriter, r *http.Request) {
	a, err := readArgs(w, r)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	t := target(r)
	if err := h.data.DropIndex(r.Context(), &t, a.str("name")); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDropIndexes handles DELETE /mws/{res_id}/db/{coll}/dropIndexes.
func (h *Handler) handleDropIndexes(w http.ResponseWriter, r *http.Request) {
	t := target(r)
	if err := h.data.DropIndexes(r.Context(), &t); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetIndexes handles GET /mws/{res_id}/db/{coll}/getIndexes.
func (h *Handler) handleGetIndexes(w http.ResponseWriter, r *http.Request) {
	t := target(r)
	indexes, err := h.data.GetIndexes(r.Context(), &t)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	if indexes == nil {
		indexes = []*domain.IndexInfo{}
	}
	h.writeJSON(w, r, http.StatusOK, indexes)
}

// ============================================================================
// Namespace Operations
// ============================================================================

// handleCollectionNames handles GET /mws/{res_id}/db/getCollectionNames.
func (h *Handler) handleCollectionNames(w http.ResponseWriter, r *http.Request) {
	names, err := h.data.CollectionNames(r.Context(), tokenFrom(r), r.PathValue("res_id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	h.writeJSON(w, r, http.StatusOK, ResultResponse{Result: names})
}

// handleDropDatabase handles DELETE /mws/{res_id}/db.
func (h *Handler) handleDropDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.data.DropDatabase(r.Context(), tokenFrom(r), r.PathValue("res_id")); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func nonNil(docs []domain.Document) []domain.Document {
	if docs == nil {
		return []domain.Document{}
	}
	return docs
}
