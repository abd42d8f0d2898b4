package main

import (
	"context"

	"github.com/yndnr/sandstore-go/internal/infra/confloader"
	"github.com/yndnr/sandstore-go/internal/server/config"
	"github.com/yndnr/sandstore-go/internal/telemetry/logger"
)

// watchConfig starts watching the config file until ctx ends. It returns nil
// without a config file.
func (a *app) watchConfig(ctx context.Context) (*confloader.Watcher, error) {
	path := a.loader.FilePath()
	if path == "" {
		return nil, nil
	}

	w, err := confloader.NewWatcher(path, confloader.WithWatcherLogger(a.log.Slog().With("component", "config")))
	if err != nil {
		return nil, err
	}
	w.OnChange(func(string) {
		if err := a.reload(); err != nil {
			a.log.Error("config reload rejected, keeping current limits", "error", err)
		}
	})
	go w.Run(ctx)
	return w, nil
}

// reload re-reads every config source and applies the settings that can
// change at runtime: tenant limits and log level. Anything else needs a
// restart.
func (a *app) reload() error {
	cfg := config.Default()
	if err := a.loader.Reload(cfg); err != nil {
		return err
	}
	if err := config.VerifyTenant(&cfg.Tenant); err != nil {
		return err
	}
	if err := config.VerifyLog(&cfg.Log); err != nil {
		return err
	}

	a.quota.SetBudget(cfg.Tenant.QuotaCollectionSize)
	a.limiter.SetLimit(cfg.Tenant.RateLimitQuota, cfg.Tenant.RateLimitWindow())
	a.sweeper.SetSchedule(cfg.Tenant.SweepEvery(), cfg.Tenant.IdleTimeout())
	if err := logger.SetLevel(cfg.Log.Level); err != nil {
		a.log.Warn("log level not changed", "error", err)
	}

	a.log.Info("config reloaded",
		"quota_collection_size", cfg.Tenant.QuotaCollectionSize,
		"ratelimit_quota", cfg.Tenant.RateLimitQuota,
		"ratelimit_expiry", cfg.Tenant.RateLimitExpiry,
		"expire_session_every", cfg.Tenant.ExpireSessionEvery,
		"expire_session_duration", cfg.Tenant.ExpireSessionDuration,
		"log_level", cfg.Log.Level)
	return nil
}
