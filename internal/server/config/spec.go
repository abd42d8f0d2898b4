// Package config defines the server configuration structure.
package config

import "time"

// ServerConfig is the root configuration for sandstore-server.
type ServerConfig struct {
	Server   ServerSection   `koanf:"server"`
	Tenant   TenantSection   `koanf:"tenant"`
	Storage  StorageSection  `koanf:"storage"`
	Security SecuritySection `koanf:"security"`
	Log      LogSection      `koanf:"log"`
}

// ServerSection configures server endpoints.
type ServerSection struct {
	HTTP  HTTPConfig  `koanf:"http"`
	Admin AdminConfig `koanf:"admin"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Addr            string        `koanf:"addr"`
	TLSCertFile     string        `koanf:"tls_cert_file"`
	TLSKeyFile      string        `koanf:"tls_key_file"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// ClientRateLimit is the per-IP request rate (requests/second) applied
	// before any session check. Zero disables it.
	ClientRateLimit int `koanf:"client_rate_limit"`

	// CORSAllowedOrigins lists the allowed origins, empty allows all.
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`

	// EnableAudit logs every request.
	EnableAudit bool `koanf:"enable_audit"`

	// TrustProxyHeaders takes the client IP from X-Forwarded-For and
	// X-Real-IP. Enable only behind a proxy that sets them.
	TrustProxyHeaders bool `koanf:"trust_proxy_headers"`
}

// AdminConfig configures the admin endpoints.
type AdminConfig struct {
	// AllowList is the IP/CIDR allowlist for /admin/v1.
	AllowList []string `koanf:"allow_list"`
}

// TenantSection holds the per-tenant limits. They can change at runtime.
type TenantSection struct {
	// QuotaCollectionSize is the byte budget of one collection.
	QuotaCollectionSize int64 `koanf:"quota_collection_size"`

	// RateLimitQuota is the number of requests a session may make per window.
	RateLimitQuota int `koanf:"ratelimit_quota"`

	// RateLimitExpiry is the rate limit window in seconds.
	RateLimitExpiry int `koanf:"ratelimit_expiry"`

	// ExpireSessionEvery is the sweep interval in seconds.
	ExpireSessionEvery int `koanf:"expire_session_every"`

	// ExpireSessionDuration is the idle time in seconds after which a
	// session is swept.
	ExpireSessionDuration int `koanf:"expire_session_duration"`
}

// RateLimitWindow returns the rate limit window.
func (t TenantSection) RateLimitWindow() time.Duration {
	return time.Duration(t.RateLimitExpiry) * time.Second
}

// SweepEvery returns the sweep interval.
func (t TenantSection) SweepEvery() time.Duration {
	return time.Duration(t.ExpireSessionEvery) * time.Second
}

// IdleTimeout returns the idle time after which a session is swept.
func (t TenantSection) IdleTimeout() time.Duration {
	return time.Duration(t.ExpireSessionDuration) * time.Second
}

// StorageSection configures storage behavior.
type StorageSection struct {
	// Backend is "memory" or "badger".
	Backend string `koanf:"backend"`

	// DataDir is the Badger directory.
	DataDir string `koanf:"data_dir"`

	// GCInterval is the Badger value log GC interval.
	GCInterval string `koanf:"gc_interval"`

	// SyncWrites fsyncs every Badger commit.
	SyncWrites bool `koanf:"sync_writes"`

	// Counters is "memory" or "redis".
	Counters string `koanf:"counters"`

	Redis RedisConfig `koanf:"redis"`
}

// RedisConfig configures the shared rate limit counter store.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	Prefix   string `koanf:"prefix"`
}

// SecuritySection configures security settings.
type SecuritySection struct {
	// TokenSecret keys the token hash. Sessions stored under one secret
	// cannot be resolved under another.
	TokenSecret string `koanf:"token_secret"`

	// CookieSecure marks the session cookie Secure.
	CookieSecure bool `koanf:"cookie_secure"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
