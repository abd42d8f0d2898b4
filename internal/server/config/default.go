// Package config defines the server configuration structure.
package config

import "time"

// Default configuration values.
const (
	DefaultHTTPAddr        = "127.0.0.1:5080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
	DefaultClientRateLimit = 1000

	DefaultQuotaCollectionSize   = 5 << 20 // 5 MiB
	DefaultRateLimitQuota        = 500
	DefaultRateLimitExpiry       = 60
	DefaultExpireSessionEvery    = 600
	DefaultExpireSessionDuration = 1800

	DefaultBackend     = "memory"
	DefaultDataDir     = "/var/lib/sandstore-server/data"
	DefaultGCInterval  = "10m"
	DefaultCounters    = "memory"
	DefaultRedisAddr   = "127.0.0.1:6379"
	DefaultRedisPrefix = "sandstore:rl:"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// EnvAliases maps the flat environment variable names accepted verbatim to
// config keys.
var EnvAliases = map[string]string{
	"QUOTA_COLLECTION_SIZE":   "tenant.quota_collection_size",
	"RATELIMIT_QUOTA":         "tenant.ratelimit_quota",
	"RATELIMIT_EXPIRY":        "tenant.ratelimit_expiry",
	"EXPIRE_SESSION_EVERY":    "tenant.expire_session_every",
	"EXPIRE_SESSION_DURATION": "tenant.expire_session_duration",
}

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			HTTP: HTTPConfig{
				Addr:            DefaultHTTPAddr,
				ReadTimeout:     DefaultReadTimeout,
				WriteTimeout:    DefaultWriteTimeout,
				ShutdownTimeout: DefaultShutdownTimeout,
				ClientRateLimit: DefaultClientRateLimit,
				EnableAudit:     true,
			},
			Admin: AdminConfig{
				AllowList: []string{"127.0.0.1", "::1"},
			},
		},
		Tenant: TenantSection{
			QuotaCollectionSize:   DefaultQuotaCollectionSize,
			RateLimitQuota:        DefaultRateLimitQuota,
			RateLimitExpiry:       DefaultRateLimitExpiry,
			ExpireSessionEvery:    DefaultExpireSessionEvery,
			ExpireSessionDuration: DefaultExpireSessionDuration,
		},
		Storage: StorageSection{
			Backend:    DefaultBackend,
			DataDir:    DefaultDataDir,
			GCInterval: DefaultGCInterval,
			Counters:   DefaultCounters,
			Redis: RedisConfig{
				Addr:   DefaultRedisAddr,
				Prefix: DefaultRedisPrefix,
			},
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
