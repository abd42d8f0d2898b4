// Package handler provides HTTP request handlers for Sandstore.
package handler

import (
	"encoding/json"
	"time"

	"github.com/yndnr/sandstore-go/internal/core/domain"
)

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error  int    `json:"error"`
	Reason string `json:"reason"`
	Detail string `json:"detail"`
}

// ============================================================================
// Session Types
// ============================================================================

// ResolveResponse is the response body for POST /mws/.
type ResolveResponse struct {
	ResID string `json:"res_id"`
	IsNew bool   `json:"is_new"`
}

// AttachResponse is the response body for POST /mws/{res_id}/attach.
type AttachResponse struct {
	ResID string `json:"res_id"`
	Token string `json:"token"`
}

// ============================================================================
// Collection Types
// ============================================================================

// ResultResponse wraps a list result.
type ResultResponse struct {
	Result any `json:"result"`
}

// CountResponse is the response body for count.
type CountResponse struct {
	Count int `json:"count"`
}

// AggregateResponse is the response body for aggregate.
type AggregateResponse struct {
	OK     int               `json:"ok"`
	Result []domain.Document `json:"result"`
}

// ValidateResponse is the response body for the validator.
type ValidateResponse struct {
	Result bool `json:"result"`
}

// LoadJSONRequest is the request body for POST /init/load_json.
type LoadJSONRequest struct {
	ResID       string                     `json:"res_id"`
	Collections map[string]json.RawMessage `json:"collections"`
}

// ============================================================================
// Admin Types
// ============================================================================

// StatusResponse is the response body for GET /admin/v1/status.
type StatusResponse struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	ActiveSessions int    `json:"active_sessions"`
	Time           string `json:"time"`
}

// SessionInfo describes one session. The token itself is never reported.
type SessionInfo struct {
	TokenHash  string    `json:"token_hash"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

// SessionListResponse is the response body for the session listing.
type SessionListResponse struct {
	ResID    string        `json:"res_id"`
	Sessions []SessionInfo `json:"sessions"`
}

func sessionToInfo(s *domain.Session) SessionInfo {
	return SessionInfo{
		TokenHash:  s.TokenHash,
		CreatedAt:  time.UnixMilli(s.CreatedAt).UTC(),
		LastActive: time.UnixMilli(s.LastActive).UTC(),
	}
}
