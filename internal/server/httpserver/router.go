// Package httpserver provides the HTTP/HTTPS server for Sandstore.
package httpserver

import (
	"net/http"

	"github.com/yndnr/sandstore-go/internal/core/service"
	"github.com/yndnr/sandstore-go/internal/server/httpserver/handler"
	"github.com/yndnr/sandstore-go/internal/telemetry/logger"
	"github.com/yndnr/sandstore-go/internal/telemetry/metric"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	Registry  *service.SessionRegistry
	Data      *service.DataService
	Validator *service.Validator
	Fixtures  *service.FixtureLoader
	Sweeper   *service.ExpirySweeper

	// Storage answers readiness probes.
	Storage handler.Pinger

	// Metrics records request metrics and serves /metrics. Optional.
	Metrics *metric.Registry

	// Logger for request logging.
	Logger logger.Logger

	// AdminAllowList is the IP/CIDR allowlist for admin API (empty = no restriction).
	AdminAllowList []string

	// CORSAllowedOrigins is the list of allowed CORS origins (empty = allow all).
	CORSAllowedOrigins []string

	// ClientRateLimit is the rate limit per client IP (requests/second), 0 disables it.
	ClientRateLimit int

	// TrustProxyHeaders takes client IPs from X-Forwarded-For and X-Real-IP.
	TrustProxyHeaders bool

	// EnableAudit enables audit logging for all requests.
	EnableAudit bool

	// CookieSecure marks the session cookie Secure.
	CookieSecure bool
}

// NewRouter creates and configures the HTTP router with all routes and middleware.
func NewRouter(cfg *RouterConfig) http.Handler {
	l := cfg.Logger
	if l == nil {
		l = logger.Default()
	}

	h := handler.New(&handler.Config{
		Registry:     cfg.Registry,
		Data:         cfg.Data,
		Validator:    cfg.Validator,
		Fixtures:     cfg.Fixtures,
		Sweeper:      cfg.Sweeper,
		Storage:      cfg.Storage,
		Metrics:      cfg.Metrics,
		Logger:       l,
		CookieSecure: cfg.CookieSecure,
	})

	// Order: Recover -> RequestID -> Metrics -> [CORS] -> [RateLimit] -> [Audit] -> Handler
	base := []Middleware{
		Recover(cfg.Metrics),
		RequestID(l),
		Metrics(cfg.Metrics),
	}

	tenant := append([]Middleware{}, base...)
	tenant = append(tenant, CORS(cfg.CORSAllowedOrigins))
	if cfg.ClientRateLimit > 0 {
		tenant = append(tenant, RateLimit(&RateLimitConfig{
			RequestsPerSecond: cfg.ClientRateLimit,
			TrustProxy:        cfg.TrustProxyHeaders,
			Metrics:           cfg.Metrics,
		}))
	}
	if cfg.EnableAudit {
		tenant = append(tenant, Audit(cfg.TrustProxyHeaders))
	}

	admin := append([]Middleware{}, base...)
	admin = append(admin, NetworkACL(&NetworkACLConfig{
		AllowList:  cfg.AdminAllowList,
		TrustProxy: cfg.TrustProxyHeaders,
		Metrics:    cfg.Metrics,
	}))
	if cfg.EnableAudit {
		admin = append(admin, Audit(cfg.TrustProxyHeaders))
	}

	mux := http.NewServeMux()

	// Health endpoints
	for _, rt := range h.ProbeRoutes() {
		mux.Handle(rt.Pattern, Chain(rt.Handler, Recover(cfg.Metrics), RequestID(l)))
	}

	// Metrics endpoint, same network policy as the admin API
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", Chain(cfg.Metrics.Handler(),
			Recover(cfg.Metrics),
			RequestID(l),
			NetworkACL(&NetworkACLConfig{
				AllowList:  cfg.AdminAllowList,
				TrustProxy: cfg.TrustProxyHeaders,
				Metrics:    cfg.Metrics,
			}),
		))
	}

	// Session, collection and fixture endpoints
	for _, rt := range h.TenantRoutes() {
		mux.Handle(rt.Pattern, Chain(rt.Handler, tenant...))
	}

	// CORS preflight for the tenant API; anything else unmatched is a 404
	mux.Handle("/", Chain(http.NotFoundHandler(), Recover(cfg.Metrics), CORS(cfg.CORSAllowedOrigins)))

	// Admin API endpoints
	for _, rt := range h.AdminRoutes() {
		mux.Handle(rt.Pattern, Chain(rt.Handler, admin...))
	}

	return mux
}

// DefaultRouterConfig returns default router configuration.
func DefaultRouterConfig() *RouterConfig {
	return &RouterConfig{
		AdminAllowList:  []string{"127.0.0.1", "::1"},
		ClientRateLimit: 1000, // 1000 requests/second per IP
		EnableAudit:     true,
	}
}
