// Package config defines the server configuration structure.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/yndnr/sandstore-go/internal/telemetry/logger"
)

// Verify validates the configuration.
func Verify(cfg *ServerConfig) error {
	if err := verifyServer(&cfg.Server); err != nil {
		return err
	}
	if err := VerifyTenant(&cfg.Tenant); err != nil {
		return err
	}
	if err := verifyStorage(&cfg.Storage); err != nil {
		return err
	}
	if err := VerifyLog(&cfg.Log); err != nil {
		return err
	}
	return nil
}

func verifyServer(cfg *ServerSection) error {
	if _, _, err := net.SplitHostPort(cfg.HTTP.Addr); err != nil {
		return fmt.Errorf("server.http.addr: %w", err)
	}
	if (cfg.HTTP.TLSCertFile == "") != (cfg.HTTP.TLSKeyFile == "") {
		return errors.New("server.http.tls_cert_file and tls_key_file must be set together")
	}
	for _, f := range []string{cfg.HTTP.TLSCertFile, cfg.HTTP.TLSKeyFile} {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("server.http tls file: %w", err)
		}
	}
	if cfg.HTTP.ClientRateLimit < 0 {
		return errors.New("server.http.client_rate_limit must not be negative")
	}
	for _, entry := range cfg.Admin.AllowList {
		if strings.Contains(entry, "/") {
			if _, _, err := net.ParseCIDR(entry); err != nil {
				return fmt.Errorf("server.admin.allow_list: %w", err)
			}
		} else if net.ParseIP(entry) == nil {
			return fmt.Errorf("server.admin.allow_list: invalid IP %q", entry)
		}
	}
	return nil
}

// VerifyTenant validates the tenant limits. It is also used on hot reload.
func VerifyTenant(cfg *TenantSection) error {
	if cfg.QuotaCollectionSize <= 0 {
		return errors.New("tenant.quota_collection_size must be positive")
	}
	if cfg.RateLimitQuota <= 0 {
		return errors.New("tenant.ratelimit_quota must be positive")
	}
	if cfg.RateLimitExpiry <= 0 {
		return errors.New("tenant.ratelimit_expiry must be positive")
	}
	if cfg.ExpireSessionEvery <= 0 {
		return errors.New("tenant.expire_session_every must be positive")
	}
	if cfg.ExpireSessionDuration <= 0 {
		return errors.New("tenant.expire_session_duration must be positive")
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	switch cfg.Backend {
	case "memory":
	case "badger":
		if cfg.DataDir == "" {
			return errors.New("storage.data_dir is required")
		}
		// Check if data directory exists or can be created
		if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
			return errors.New("cannot create data directory: " + err.Error())
		}
		if _, err := time.ParseDuration(cfg.GCInterval); err != nil {
			return fmt.Errorf("storage.gc_interval: %w", err)
		}
	default:
		return fmt.Errorf("storage.backend must be memory or badger, got %q", cfg.Backend)
	}

	switch cfg.Counters {
	case "memory":
	case "redis":
		if cfg.Redis.Addr == "" {
			return errors.New("storage.redis.addr is required")
		}
	default:
		return fmt.Errorf("storage.counters must be memory or redis, got %q", cfg.Counters)
	}
	return nil
}

// VerifyLog validates the log settings. It is also used on hot reload.
func VerifyLog(cfg *LogSection) error {
	if _, err := logger.ParseLevel(cfg.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if _, err := logger.ParseFormat(cfg.Format); err != nil {
		return fmt.Errorf("log.format: %w", err)
	}
	return nil
}
