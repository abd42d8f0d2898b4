// Package httpserver provides the HTTP/HTTPS server for Sandstore.
package httpserver

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/yndnr/sandstore-go/internal/server/httpserver/handler"
	"github.com/yndnr/sandstore-go/internal/telemetry/logger"
	"github.com/yndnr/sandstore-go/internal/telemetry/metric"
	"github.com/yndnr/sandstore-go/pkg/token"
)

// Rejection codes for requests refused before they reach a handler.
const (
	CodeClientRateLimited = "SS-HTTP-4290"
	CodeAddressDenied     = "SS-HTTP-4030"
	CodePanic             = "SS-HTTP-5000"
)

// Middleware wraps an http.Handler with additional functionality.
type Middleware func(http.Handler) http.Handler

// Chain chains multiple middlewares together. The first middleware is the
// outermost.
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// RequestID adds a unique request ID to each request and attaches l, the
// request ID and the path res_id to the request context.
func RequestID(l logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Check for existing request ID in header
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				if id, err := token.GenerateID("req-", 12); err == nil {
					requestID = id
				} else {
					requestID = "req-unknown"
				}
			}
			w.Header().Set("X-Request-ID", requestID)

			ctx := logger.WithLogger(r.Context(), l)
			ctx = logger.WithRequestID(ctx, requestID)
			if resID := r.PathValue("res_id"); resID != "" {
				ctx = logger.WithResID(ctx, resID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Recover recovers from panics and returns a 500 error.
func Recover(reg *metric.Registry) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					logger.L(r.Context()).Error("panic recovered",
						"error", err,
						"path", r.URL.Path,
					)
					reg.ObserveRejection(CodePanic)
					handler.WriteError(w, http.StatusInternalServerError, "Internal server error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// Audit logs one line per request. Tokens are never logged.
func Audit(trustProxy bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := newResponseWriter(w)

			next.ServeHTTP(wrapped, r)

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.statusCode,
				"duration_ms", time.Since(start).Milliseconds(),
				"client_ip", getClientIP(r, trustProxy),
			}

			// Log based on status code
			l := logger.L(r.Context())
			switch {
			case wrapped.statusCode >= 500:
				l.Error("request completed with error", attrs...)
			case wrapped.statusCode >= 400:
				l.Warn("request completed with client error", attrs...)
			default:
				l.Info("request completed", attrs...)
			}
		})
	}
}

// Metrics records the count and latency of every request by route.
func Metrics(reg *metric.Registry) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := newResponseWriter(w)

			next.ServeHTTP(wrapped, r)

			reg.ObserveRequest(r.Method, routeOf(r), wrapped.statusCode, time.Since(start))
		})
	}
}

// routeOf returns the path of the mux pattern that matched r.
func routeOf(r *http.Request) string {
	if r.Pattern == "" {
		return "unmatched"
	}
	if _, path, ok := strings.Cut(r.Pattern, " "); ok {
		return path
	}
	return r.Pattern
}

// RateLimitConfig holds configuration for the per-IP rate limit.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per client IP. The burst equals
	// the rate.
	RequestsPerSecond int

	// TrustProxy takes the client IP from proxy headers.
	TrustProxy bool

	// IdleAfter is how long an idle client keeps its limiter.
	IdleAfter time.Duration

	Metrics *metric.Registry
}

// visitor is the limiter state of one client IP.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimit applies a token bucket per client IP. It protects the server as
// a whole; per-session quotas are enforced by the core services.
func RateLimit(cfg *RateLimitConfig) Middleware {
	var mu sync.RWMutex
	visitors := make(map[string]*visitor)
	limit := rate.Limit(cfg.RequestsPerSecond)
	burst := cfg.RequestsPerSecond
	idleAfter := cfg.IdleAfter
	if idleAfter <= 0 {
		idleAfter = 3 * time.Minute
	}
	lastPrune := time.Now()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := getClientIP(r, cfg.TrustProxy)
			now := time.Now()

			// Try read lock first for existing visitor
			mu.RLock()
			v, ok := visitors[ip]
			mu.RUnlock()

			if !ok {
				mu.Lock()
				// Double-check after acquiring write lock
				if v, ok = visitors[ip]; !ok {
					v = &visitor{limiter: rate.NewLimiter(limit, burst), lastSeen: now}
					visitors[ip] = v
				}
				if now.Sub(lastPrune) > idleAfter {
					for k, old := range visitors {
						if now.Sub(old.lastSeen) > idleAfter && old != v {
							delete(visitors, k)
						}
					}
					lastPrune = now
				}
				mu.Unlock()
			}

			mu.Lock()
			v.lastSeen = now
			mu.Unlock()

			if !v.limiter.AllowN(now, 1) {
				cfg.Metrics.ObserveRejection(CodeClientRateLimited)
				w.Header().Set("Retry-After", "1")
				handler.WriteError(w, http.StatusTooManyRequests, "Rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// NetworkACLConfig holds configuration for network ACL middleware.
type NetworkACLConfig struct {
	// AllowList is the list of allowed IP/CIDR entries.
	// Empty list means no restriction.
	AllowList []string

	// TrustProxy takes the client IP from proxy headers.
	TrustProxy bool

	Metrics *metric.Registry
}

// NetworkACL creates a middleware that checks client IP against an allowlist.
func NetworkACL(cfg *NetworkACLConfig) Middleware {
	// Parse CIDR blocks at initialization time
	var networks []*net.IPNet
	var singleIPs []net.IP

	for _, entry := range cfg.AllowList {
		if strings.Contains(entry, "/") {
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				logger.Warn("invalid CIDR in allowlist", "entry", entry, "error", err)
				continue
			}
			networks = append(networks, ipNet)
		} else {
			ip := net.ParseIP(entry)
			if ip == nil {
				logger.Warn("invalid IP in allowlist", "entry", entry)
				continue
			}
			singleIPs = append(singleIPs, ip)
		}
	}

	allowed := func(ip net.IP) bool {
		for _, allowedIP := range singleIPs {
			if allowedIP.Equal(ip) {
				return true
			}
		}
		for _, network := range networks {
			if network.Contains(ip) {
				return true
			}
		}
		return false
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// If allowlist is empty, no restriction
			if len(cfg.AllowList) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			clientIP := getClientIP(r, cfg.TrustProxy)
			if ip := net.ParseIP(clientIP); ip != nil && allowed(ip) {
				next.ServeHTTP(w, r)
				return
			}

			logger.L(r.Context()).Warn("request denied by network ACL",
				"client_ip", clientIP,
				"path", r.URL.Path,
			)
			cfg.Metrics.ObserveRejection(CodeAddressDenied)
			handler.WriteError(w, http.StatusForbidden, "Client address not allowed")
		})
	}
}

// CORS adds Cross-Origin Resource Sharing headers. Credentials are allowed
// so browsers send the session cookie.
func CORS(allowedOrigins []string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := len(allowedOrigins) == 0 // Empty means allow all
			for _, o := range allowedOrigins {
				if o == "*" || o == origin {
					allowed = true
					break
				}
			}

			if allowed && origin != "" {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID, "+handler.TokenHeader)
				h.Set("Access-Control-Expose-Headers", "X-Request-ID, "+handler.TokenHeader)
				h.Set("Access-Control-Max-Age", "86400")
				h.Add("Vary", "Origin")
			}

			// Handle preflight
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (w *responseWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.statusCode = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

// Unwrap returns the underlying writer for http.ResponseController.
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// getClientIP extracts the client IP from the request. Proxy headers are
// honored only when trustProxy is set.
func getClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}

	// Use net.SplitHostPort to correctly handle IPv6 addresses like [::1]:8080
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
