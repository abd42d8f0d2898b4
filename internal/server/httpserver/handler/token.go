// Package handler provides HTTP request handlers for Sandstore.
package handler

import (
	"net/http"
	"strings"
)

// Session token transport.
const (
	TokenCookie = "sandstore_token"
	TokenHeader = "X-Sandstore-Token"
)

// tokenFrom returns the session token the request carries. The header wins
// over the cookie.
func tokenFrom(r *http.Request) string {
	if t := strings.TrimSpace(r.Header.Get(TokenHeader)); t != "" {
		return t
	}
	if c, err := r.Cookie(TokenCookie); err == nil {
		return c.Value
	}
	return ""
}

// setToken hands token to the client as a cookie and a response header.
func (h *Handler) setToken(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	w.Header().Set(TokenHeader, token)
}
