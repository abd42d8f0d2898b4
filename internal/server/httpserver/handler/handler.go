// Package handler provides HTTP request handlers for Sandstore.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/yndnr/sandstore-go/internal/core/domain"
	"github.com/yndnr/sandstore-go/internal/core/service"
	"github.com/yndnr/sandstore-go/internal/telemetry/logger"
	"github.com/yndnr/sandstore-go/internal/telemetry/metric"
)

// Pinger reports whether the storage engine can serve requests.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds the collaborators of a Handler.
type Config struct {
	Registry  *service.SessionRegistry
	Data      *service.DataService
	Validator *service.Validator
	Fixtures  *service.FixtureLoader
	Sweeper   *service.ExpirySweeper
	Storage   Pinger
	Metrics   *metric.Registry // Optional
	Logger    logger.Logger    // Optional, defaults to logger.Default()

	// CookieSecure marks the session cookie Secure.
	CookieSecure bool
}

// Route is one HTTP route served by the Handler.
type Route struct {
	Pattern string
	Handler http.HandlerFunc
}

// Handler serves the Sandstore HTTP API.
type Handler struct {
	registry     *service.SessionRegistry
	data         *service.DataService
	validator    *service.Validator
	fixtures     *service.FixtureLoader
	sweeper      *service.ExpirySweeper
	storage      Pinger
	metrics      *metric.Registry
	logger       logger.Logger
	cookieSecure bool
	mux          *http.ServeMux
}

// New creates a new Handler.
func New(cfg *Config) *Handler {
	h := &Handler{
		registry:     cfg.Registry,
		data:         cfg.Data,
		validator:    cfg.Validator,
		fixtures:     cfg.Fixtures,
		sweeper:      cfg.Sweeper,
		storage:      cfg.Storage,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
		cookieSecure: cfg.CookieSecure,
		mux:          http.NewServeMux(),
	}
	if h.logger == nil {
		h.logger = logger.Default()
	}

	for _, group := range [][]Route{h.ProbeRoutes(), h.TenantRoutes(), h.AdminRoutes()} {
		for _, rt := range group {
			h.mux.HandleFunc(rt.Pattern, rt.Handler)
		}
	}
	return h
}

// ServeHTTP implements http.Handler without any middleware.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// ProbeRoutes returns the liveness and readiness routes.
func (h *Handler) ProbeRoutes() []Route {
	return []Route{
		{"GET /health", h.handleHealth},
		{"GET /ready", h.handleReady},
	}
}

// TenantRoutes returns the session, collection and fixture routes.
func (h *Handler) TenantRoutes() []Route {
	return []Route{
		// Sessions
		{"POST /mws/{$}", h.handleResolve},
		{"POST /mws/{res_id}/keep-alive", h.handleKeepAlive},
		{"POST /mws/{res_id}/attach", h.handleAttach},

		// Collections
		{"GET /mws/{res_id}/db/{coll}/find", h.handleFind},
		{"GET /mws/{res_id}/db/{coll}/count", h.handleCount},
		{"GET /mws/{res_id}/db/{coll}/aggregate", h.handleAggregate},
		{"POST /mws/{res_id}/db/{coll}/insert", h.handleInsert},
		{"PUT /mws/{res_id}/db/{coll}/update", h.handleUpdate},
		{"DELETE /mws/{res_id}/db/{coll}/remove", h.handleRemove},
		{"DELETE /mws/{res_id}/db/{coll}/drop", h.handleDrop},

		// Indexes
		{"POST /mws/{res_id}/db/{coll}/ensureIndex", h.handleEnsureIndex},
		{"PUT /mws/{res_id}/db/{coll}/reIndex", h.handleReIndex},
		{"DELETE /mws/{res_id}/db/{coll}/dropIndex", h.handleDropIndex},
		{"DELETE /mws/{res_id}/db/{coll}/dropIndexes", h.handleDropIndexes},
		{"GET /mws/{res_id}/db/{coll}/getIndexes", h.handleGetIndexes},

		// Namespace
		{"GET /mws/{res_id}/db/getCollectionNames", h.handleCollectionNames},
		{"DELETE /mws/{res_id}/db", h.handleDropDatabase},

		// Grading and fixtures
		{"POST /mws/{res_id}/validate/{coll}", h.handleValidate},
		{"POST /init/load_json", h.handleLoadJSON},
	}
}

// AdminRoutes returns the operator routes.
func (h *Handler) AdminRoutes() []Route {
	return []Route{
		{"GET /admin/v1/status", h.handleAdminStatus},
		{"POST /admin/v1/sweep", h.handleSweep},
		{"GET /admin/v1/namespaces/{res_id}/sessions", h.handleListSessions},
	}
}

// writeJSON writes data as a JSON response.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.L(r.Context()).Error("failed to encode response", "error", err)
	}
}

// handleServiceError converts service errors to HTTP responses.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.GetErrorCode(err)
	status := StatusForCode(code)
	if status >= http.StatusInternalServerError {
		logger.L(r.Context()).Error("request failed",
			"code", code,
			"error", err,
		)
	}

	if code == "" {
		code = domain.ErrInternalServer.Code
	}
	h.metrics.ObserveRejection(code)
	WriteError(w, status, domain.Reason(err))
}

// StatusForCode maps an error code to its HTTP status. The first three
// digits of the numeric part of a code are the status.
func StatusForCode(code string) int {
	i := strings.LastIndexByte(code, '-')
	if i < 0 || len(code)-i-1 != 4 {
		return http.StatusInternalServerError
	}
	status, err := strconv.Atoi(code[i+1 : i+4])
	if err != nil || http.StatusText(status) == "" {
		return http.StatusInternalServerError
	}
	return status
}

// WriteError writes the uniform error body.
func WriteError(w http.ResponseWriter, status int, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:  status,
		Reason: reason,
		Detail: "",
	})
}
