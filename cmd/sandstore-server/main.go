package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/yndnr/sandstore-go/internal/core/domain"
	"github.com/yndnr/sandstore-go/internal/core/service"
	"github.com/yndnr/sandstore-go/internal/infra/buildinfo"
	"github.com/yndnr/sandstore-go/internal/infra/confloader"
	"github.com/yndnr/sandstore-go/internal/infra/shutdown"
	"github.com/yndnr/sandstore-go/internal/server/config"
	"github.com/yndnr/sandstore-go/internal/server/httpserver"
	"github.com/yndnr/sandstore-go/internal/storage"
	"github.com/yndnr/sandstore-go/internal/storage/redis"
	"github.com/yndnr/sandstore-go/internal/telemetry/logger"
	"github.com/yndnr/sandstore-go/internal/telemetry/metric"
	"github.com/yndnr/sandstore-go/pkg/token"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		EnvVars: []string{"SANDSTORE_CONFIG"},
	}

	return &cli.App{
		Name:    "sandstore-server",
		Usage:   "Sandboxed multi-tenant document store gateway",
		Version: buildinfo.String(),
		Flags:   []cli.Flag{configFlag},
		Action: func(c *cli.Context) error {
			return run(c.Context, c.String("config"))
		},
		Commands: []*cli.Command{
			{
				Name:  "check-config",
				Usage: "Validate the configuration and print it with secrets masked",
				Flags: []cli.Flag{configFlag},
				Action: func(c *cli.Context) error {
					cfg, _, err := loadConfig(c.String("config"))
					if err != nil {
						return err
					}
					enc := yaml.NewEncoder(c.App.Writer)
					enc.SetIndent(2)
					if err := enc.Encode(configView(config.Sanitize(cfg))); err != nil {
						return err
					}
					return enc.Close()
				},
			},
		},
	}
}

// app holds the running components that hot reload touches.
type app struct {
	log     logger.Logger
	loader  *confloader.Loader
	quota   *service.QuotaEnforcer
	limiter *service.RateLimiter
	sweeper *service.ExpirySweeper
}

func run(ctx context.Context, configFile string) error {
	// Load configuration
	cfg, loader, err := loadConfig(configFile)
	if err != nil {
		return err
	}

	// Initialize logger
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger.SetDefault(log)

	log.Info("starting sandstore-server",
		"version", buildinfo.Get().Version,
		"commit", buildinfo.Get().Commit,
		"config", configFile)

	secret := cfg.Security.TokenSecret
	if secret == "" {
		if secret, err = token.Generate(); err != nil {
			return fmt.Errorf("generate token secret: %w", err)
		}
		log.Warn("security.token_secret is not set; using a per-process secret, sessions will not survive a restart")
	}

	metrics := metric.NewRegistry()

	// Initialize storage
	engine, err := storage.Open(ctx, storageConfig(cfg, log, metrics))
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	// Initialize services
	slogger := log.Slog()
	registry := service.NewSessionRegistry(engine.Sessions, engine.Namespaces, domain.NewTokenHasher(secret))
	limiter := service.NewRateLimiter(engine.Counters, cfg.Tenant.RateLimitQuota, cfg.Tenant.RateLimitWindow(),
		service.WithRateLimiterLogger(slogger.With("component", "ratelimit")))
	mapper := service.NewNamespaceMapper(engine.Namespaces, engine.Backend)
	quota := service.NewQuotaEnforcer(engine.Namespaces, engine.Backend, cfg.Tenant.QuotaCollectionSize)
	data := service.NewDataService(registry, limiter, mapper, quota, engine.Backend)
	sweeper := service.NewExpirySweeper(engine.Sessions, engine.Namespaces, mapper,
		cfg.Tenant.SweepEvery(), cfg.Tenant.IdleTimeout(),
		service.WithSweeperLogger(slogger.With("component", "sweeper")))

	metrics.MustRegister(metric.NewCollector(registry, limiter.FailOpenCount, slogger.With("component", "metrics")))
	metrics.MustRegister(sweeper.Collectors()...)

	// Create HTTP server
	routerCfg := httpserver.DefaultRouterConfig()
	routerCfg.Registry = registry
	routerCfg.Data = data
	routerCfg.Validator = service.NewValidator(data)
	routerCfg.Fixtures = service.NewFixtureLoader(data)
	routerCfg.Sweeper = sweeper
	routerCfg.Storage = engine
	routerCfg.Metrics = metrics
	routerCfg.Logger = log
	routerCfg.AdminAllowList = cfg.Server.Admin.AllowList
	routerCfg.CORSAllowedOrigins = cfg.Server.HTTP.CORSAllowedOrigins
	routerCfg.ClientRateLimit = cfg.Server.HTTP.ClientRateLimit
	routerCfg.TrustProxyHeaders = cfg.Server.HTTP.TrustProxyHeaders
	routerCfg.EnableAudit = cfg.Server.HTTP.EnableAudit
	routerCfg.CookieSecure = cfg.Security.CookieSecure

	httpServer := httpserver.New(cfg.Server.HTTP.Addr, httpserver.NewRouter(routerCfg),
		httpserver.WithTimeouts(cfg.Server.HTTP.ReadTimeout, cfg.Server.HTTP.WriteTimeout),
		httpserver.WithErrorLogger(log))

	sweeper.Start()

	a := &app{log: log, loader: loader, quota: quota, limiter: limiter, sweeper: sweeper}
	watcher, err := a.watchConfig(ctx)
	if err != nil {
		log.Warn("config hot reload disabled", "error", err)
	}

	// Setup graceful shutdown, stages run in registration order
	shutdownHandler := shutdown.NewHandler(cfg.Server.HTTP.ShutdownTimeout, shutdown.WithLogger(log))
	shutdownHandler.OnShutdown("http", httpServer.Shutdown)
	shutdownHandler.OnShutdown("sweeper", func(context.Context) error {
		sweeper.Stop()
		return nil
	})
	if watcher != nil {
		shutdownHandler.OnShutdown("config-watcher", func(context.Context) error {
			return watcher.Close()
		})
	}
	shutdownHandler.OnShutdown("storage", func(context.Context) error {
		return engine.Close()
	})

	// Start HTTP server in goroutine
	go func() {
		log.Info("HTTP server listening", "addr", httpServer.Addr())

		var err error
		if cfg.Server.HTTP.TLSCertFile != "" {
			err = httpServer.ListenAndServeTLS(cfg.Server.HTTP.TLSCertFile, cfg.Server.HTTP.TLSKeyFile)
		} else {
			err = httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
			shutdownHandler.Trigger()
		}
	}()

	if err := shutdownHandler.Wait(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("server stopped gracefully")
	return nil
}

// loadConfig loads configuration from defaults, file and environment, then
// validates it.
func loadConfig(configFile string) (*config.ServerConfig, *confloader.Loader, error) {
	cfg := config.Default()

	opts := []confloader.Option{confloader.WithAliases(config.EnvAliases)}
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}
	loader := confloader.NewLoader(opts...)

	if err := loader.Load(cfg); err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Verify(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, loader, nil
}

// storageConfig maps the server configuration onto the storage engine.
func storageConfig(cfg *config.ServerConfig, log logger.Logger, metrics *metric.Registry) storage.Config {
	sc := storage.DefaultConfig(cfg.Storage.DataDir)
	sc.Backend = cfg.Storage.Backend
	sc.Badger.GCInterval = cfg.Storage.GCInterval
	sc.Badger.SyncWrites = cfg.Storage.SyncWrites
	sc.Counters = cfg.Storage.Counters
	sc.Redis = redis.Options{
		Addr:     cfg.Storage.Redis.Addr,
		Username: cfg.Storage.Redis.Username,
		Password: cfg.Storage.Redis.Password,
		DB:       cfg.Storage.Redis.DB,
		Prefix:   cfg.Storage.Redis.Prefix,
	}
	sc.Logger = log.Slog().With("component", "storage")
	sc.Registry = metrics.Registerer()
	return sc
}

// configView converts the config into a map keyed like the YAML file.
func configView(cfg *config.ServerConfig) map[string]any {
	return map[string]any{
		"server": map[string]any{
			"http": map[string]any{
				"addr":                 cfg.Server.HTTP.Addr,
				"tls_cert_file":        cfg.Server.HTTP.TLSCertFile,
				"tls_key_file":         cfg.Server.HTTP.TLSKeyFile,
				"read_timeout":         cfg.Server.HTTP.ReadTimeout.String(),
				"write_timeout":        cfg.Server.HTTP.WriteTimeout.String(),
				"shutdown_timeout":     cfg.Server.HTTP.ShutdownTimeout.String(),
				"client_rate_limit":    cfg.Server.HTTP.ClientRateLimit,
				"cors_allowed_origins": cfg.Server.HTTP.CORSAllowedOrigins,
				"enable_audit":         cfg.Server.HTTP.EnableAudit,
				"trust_proxy_headers":  cfg.Server.HTTP.TrustProxyHeaders,
			},
			"admin": map[string]any{
				"allow_list": cfg.Server.Admin.AllowList,
			},
		},
		"tenant": map[string]any{
			"quota_collection_size":   cfg.Tenant.QuotaCollectionSize,
			"ratelimit_quota":         cfg.Tenant.RateLimitQuota,
			"ratelimit_expiry":        cfg.Tenant.RateLimitExpiry,
			"expire_session_every":    cfg.Tenant.ExpireSessionEvery,
			"expire_session_duration": cfg.Tenant.ExpireSessionDuration,
		},
		"storage": map[string]any{
			"backend":     cfg.Storage.Backend,
			"data_dir":    cfg.Storage.DataDir,
			"gc_interval": cfg.Storage.GCInterval,
			"sync_writes": cfg.Storage.SyncWrites,
			"counters":    cfg.Storage.Counters,
			"redis": map[string]any{
				"addr":     cfg.Storage.Redis.Addr,
				"username": cfg.Storage.Redis.Username,
				"password": cfg.Storage.Redis.Password,
				"db":       cfg.Storage.Redis.DB,
				"prefix":   cfg.Storage.Redis.Prefix,
			},
		},
		"security": map[string]any{
			"token_secret":  cfg.Security.TokenSecret,
			"cookie_secure": cfg.Security.CookieSecure,
		},
		"log": map[string]any{
			"level":  cfg.Log.Level,
			"format": cfg.Log.Format,
		},
	}
}
