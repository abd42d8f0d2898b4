package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/sandstore-go/internal/core/domain"
	"github.com/yndnr/sandstore-go/internal/storage/memory"
	"github.com/yndnr/sandstore-go/internal/storage/redis"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/tmp/test-data")

	if cfg.Backend != BackendMemory {
		t.Errorf("expected Backend=memory, got %s", cfg.Backend)
	}
	if cfg.Counters != CountersMemory {
		t.Errorf("expected Counters=memory, got %s", cfg.Counters)
	}
	if cfg.Badger.Dir != "/tmp/test-data" {
		t.Errorf("expected Badger.Dir=/tmp/test-data, got %s", cfg.Badger.Dir)
	}
	if cfg.Logger == nil {
		t.Error("expected default logger")
	}
}

func TestOpen_Memory(t *testing.T) {
	ctx := context.Background()
	e, err := Open(ctx, DefaultConfig(t.TempDir()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer e.Close()

	if _, ok := e.Sessions.(*memory.Store); !ok {
		t.Errorf("Sessions is %T, want *memory.Store", e.Sessions)
	}
	if _, ok := e.Backend.(*memory.DocStore); !ok {
		t.Errorf("Backend is %T, want *memory.DocStore", e.Backend)
	}
	if _, ok := e.Counters.(*memory.CounterStore); !ok {
		t.Errorf("Counters is %T, want *memory.CounterStore", e.Counters)
	}

	if err := e.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
	stats, err := e.Stats(ctx)
	if err != nil || stats != nil {
		t.Errorf("Stats = %v, %v; want nil, nil", stats, err)
	}
}

func TestOpen_Badger(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig(t.TempDir())
	cfg.Backend = BackendBadger
	cfg.Badger.GCInterval = "1h"
	cfg.Registry = prometheus.NewRegistry()

	e, err := Open(ctx, cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	resID, _ := domain.GenerateResID()
	if err := e.Namespaces.Create(ctx, domain.NewNamespace(resID, time.Now())); err != nil {
		t.Fatalf("Namespaces.Create: %v", err)
	}
	coll := resID + ".users"
	if err := e.Backend.Insert(ctx, coll, []domain.Document{domain.Document(`{"_id":1}`)}); err != nil {
		t.Fatalf("Backend.Insert: %v", err)
	}

	stats, err := e.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats == nil {
		t.Fatal("expected badger stats")
	}

	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// data survives a reopen
	cfg.Registry = nil
	e, err = Open(ctx, cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer e.Close()

	if _, err := e.Namespaces.Get(ctx, resID); err != nil {
		t.Errorf("Namespaces.Get after reopen: %v", err)
	}
	if size, _ := e.Backend.SizeOf(ctx, coll); size != int64(len(`{"_id":1}`)) {
		t.Errorf("SizeOf after reopen = %d", size)
	}
}

func TestOpen_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	cfg := DefaultConfig(t.TempDir())
	cfg.Counters = CountersRedis
	cfg.Redis = redis.Options{Addr: mr.Addr(), Prefix: "test:"}

	e, err := Open(ctx, cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer e.Close()

	n, err := e.Counters.Incr(ctx, "1.2.3.4", time.Minute)
	if err != nil || n != 1 {
		t.Fatalf("Incr = %d, %v", n, err)
	}
	if !mr.Exists("test:1.2.3.4") {
		t.Error("counter key not written to redis")
	}
	if err := e.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}

	mr.SetError("LOADING")
	if err := e.Ping(ctx); err == nil {
		t.Error("Ping succeeded with a failing redis")
	}
}

func TestOpen_Errors(t *testing.T) {
	ctx := context.Background()

	cfg := DefaultConfig(t.TempDir())
	cfg.Backend = "rocks"
	if _, err := Open(ctx, cfg); err == nil {
		t.Error("expected error for unknown backend")
	}

	cfg = DefaultConfig(t.TempDir())
	cfg.Counters = "memcache"
	if _, err := Open(ctx, cfg); err == nil {
		t.Error("expected error for unknown counter store")
	}

	cfg = DefaultConfig(t.TempDir())
	cfg.Counters = CountersRedis
	cfg.Redis = redis.Options{Addr: "127.0.0.1:1"}
	_, err := Open(ctx, cfg)
	if !errors.Is(err, redis.ErrRedisUnavailable) {
		t.Errorf("unreachable redis err = %v, want %v", err, redis.ErrRedisUnavailable)
	}

	cfg = DefaultConfig("")
	cfg.Backend = BackendBadger
	if _, err := Open(ctx, cfg); err == nil {
		t.Error("expected error for badger without dir")
	}
}
