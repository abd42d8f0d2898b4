package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/sandstore-go/internal/core/service"
	"github.com/yndnr/sandstore-go/internal/storage/memory"
	"github.com/yndnr/sandstore-go/internal/storage/redis"
)

// Backend kinds.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
)

// Counter store kinds.
const (
	CountersMemory = "memory"
	CountersRedis  = "redis"
)

// Config selects and configures the storage components.
type Config struct {
	// Backend is "memory" or "badger".
	Backend string

	// Badger configures the durable backend.
	Badger BadgerConfig

	// Counters is "memory" or "redis".
	Counters string

	// Redis configures the shared counter store.
	Redis redis.Options

	// Logger is the structured logger.
	Logger *slog.Logger

	// Registry receives storage metrics when set.
	Registry prometheus.Registerer
}

// DefaultConfig returns an in-memory configuration.
func DefaultConfig(dataDir string) Config {
	return Config{
		Backend:  BackendMemory,
		Badger:   DefaultBadgerConfig(dataDir),
		Counters: CountersMemory,
		Redis:    redis.Options{Addr: "127.0.0.1:6379", Prefix: "sandstore:"},
		Logger:   slog.Default(),
	}
}

// Engine bundles the storage components the services run on.
type Engine struct {
	Sessions   service.SessionRepository
	Namespaces service.NamespaceRepository
	Backend    service.Backend
	Counters   service.CounterStore

	badger *BadgerEngine
	redis  *redis.CounterStore
	logger *slog.Logger
}

// Open creates the storage components selected by cfg.
func Open(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	e := &Engine{logger: cfg.Logger}

	switch cfg.Backend {
	case BackendMemory, "":
		e.Sessions = memory.New()
		e.Namespaces = memory.NewNamespaceStore()
		e.Backend = memory.NewDocStore()

	case BackendBadger:
		engine, err := NewBadgerEngine(cfg.Badger, cfg.Logger.With("component", "badger"))
		if err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		if cfg.Registry != nil {
			engine.RegisterMetrics(cfg.Registry)
		}
		e.badger = engine
		e.Sessions = NewBadgerSessionStore(engine)
		e.Namespaces = NewBadgerNamespaceStore(engine)
		e.Backend = NewBadgerBackend(engine)

	default:
		return nil, fmt.Errorf("storage: unknown backend %q", cfg.Backend)
	}

	switch cfg.Counters {
	case CountersMemory, "":
		e.Counters = memory.NewCounterStore()

	case CountersRedis:
		store, err := redis.Dial(ctx, cfg.Redis)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("storage: %w", err)
		}
		e.redis = store
		e.Counters = store

	default:
		e.Close()
		return nil, fmt.Errorf("storage: unknown counter store %q", cfg.Counters)
	}

	cfg.Logger.Info("storage opened",
		"backend", cfg.Backend,
		"counters", cfg.Counters)

	return e, nil
}

// Ping checks every external component.
func (e *Engine) Ping(ctx context.Context) error {
	if err := e.Backend.Ping(ctx); err != nil {
		return err
	}
	if e.redis != nil {
		if err := e.redis.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Stats returns Badger statistics, nil for the in-memory backend.
func (e *Engine) Stats(ctx context.Context) (*KVStats, error) {
	if e.badger == nil {
		return nil, nil
	}
	return e.badger.Stats(ctx)
}

// Close releases every component.
func (e *Engine) Close() error {
	var errs []error
	if e.redis != nil {
		if err := e.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if e.Backend != nil {
		if err := e.Backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close backend: %w", err))
		}
	}
	return errors.Join(errs...)
}
