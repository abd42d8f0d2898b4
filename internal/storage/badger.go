package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"
)

// Common errors
var (
	ErrKeyNotFound = errors.New("key not found")
	ErrClosed      = errors.New("kv engine closed")
)

// maxTxnRetries bounds the retries of a read-modify-write transaction that
// lost a conflict.
const maxTxnRetries = 8

// BadgerEngine owns a Badger database and its maintenance loops.
//
// Conflict detection is always on: the stores built on the engine rely on
// serializable transactions for create-if-absent and version checks.
type BadgerEngine struct {
	db     *badger.DB
	cfg    BadgerConfig
	logger *slog.Logger
	closed atomic.Bool

	lastGCTime atomic.Int64  // Unix milliseconds
	gcRuns     atomic.Uint64 // value log files rewritten
	// conflicts is nil until RegisterMetrics
	conflicts prometheus.Counter

	// Shutdown
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewBadgerEngine opens a Badger database.
func NewBadgerEngine(cfg BadgerConfig, logger *slog.Logger) (*BadgerEngine, error) {
	if cfg.Dir == "" && !cfg.InMemory {
		return nil, fmt.Errorf("badger: dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	// Build Badger options
	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = &badgerLogger{logger: logger}

	// Apply custom configuration
	if cfg.CacheSize > 0 {
		opts.BlockCacheSize = cfg.CacheSize
	}
	if cfg.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = cfg.ValueLogFileSize
	}
	if cfg.NumMemtables > 0 {
		opts.NumMemtables = cfg.NumMemtables
	}
	if cfg.NumLevelZeroTables > 0 {
		opts.NumLevelZeroTables = cfg.NumLevelZeroTables
	}
	if cfg.NumLevelZeroTablesStall > 0 {
		opts.NumLevelZeroTablesStall = cfg.NumLevelZeroTablesStall
	}
	opts.SyncWrites = cfg.SyncWrites
	opts.DetectConflicts = true

	// Open Badger DB
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open db: %w", err)
	}

	engine := &BadgerEngine{
		db:     db,
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	// Start background GC loop
	go engine.gcLoop()

	logger.Info("badger engine started",
		"dir", cfg.Dir,
		"in_memory", cfg.InMemory,
		"cache_size", cfg.CacheSize,
		"gc_interval", cfg.GCInterval)

	return engine, nil
}

// View runs fn in a read-only transaction.
func (e *BadgerEngine) View(fn func(txn *badger.Txn) error) error {
	if e.closed.Load() {
		return ErrClosed
	}
	return e.db.View(fn)
}

// Update runs fn in a read-write transaction, retrying when the commit loses
// a conflict with a concurrent transaction. fn must be safe to re-run.
func (e *BadgerEngine) Update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if e.closed.Load() {
		return ErrClosed
	}

	var err error
	for attempt := 0; attempt <= maxTxnRetries; attempt++ {
		err = e.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		if e.conflicts != nil {
			e.conflicts.Inc()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return err
}

// Get retrieves a value by key.
func (e *BadgerEngine) Get(_ context.Context, key []byte) ([]byte, error) {
	var value []byte

	err := e.View(func(txn *badger.Txn) error {
		v, err := getValue(txn, key)
		value = v
		return err
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Scan iterates over keys with a given prefix.
// Callback returns false to stop iteration.
func (e *BadgerEngine) Scan(_ context.Context, prefix []byte, fn func(key, value []byte) bool) error {
	return e.View(func(txn *badger.Txn) error {
		return scan(txn, prefix, true, func(key, value []byte) (bool, error) {
			return fn(key, value), nil
		})
	})
}

// getValue reads a copy of the value at key.
func getValue(txn *badger.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	return item.ValueCopy(nil)
}

// scan visits every key under prefix in order. Values are only read when
// withValues is set.
func scan(txn *badger.Txn, prefix []byte, withValues bool, fn func(key, value []byte) (bool, error)) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = withValues
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		key := item.KeyCopy(nil)

		var value []byte
		if withValues {
			var err error
			if value, err = item.ValueCopy(nil); err != nil {
				return err
			}
		}

		more, err := fn(key, value)
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	return nil
}

// GC triggers value log garbage collection.
// Returns the number of value log files rewritten.
func (e *BadgerEngine) GC(_ context.Context) (uint64, error) {
	if e.closed.Load() {
		return 0, ErrClosed
	}
	startTime := time.Now()

	// Run GC until no more can be reclaimed (threshold-based)
	var runs uint64
	for {
		err := e.db.RunValueLogGC(e.cfg.GCThreshold)
		if err != nil {
			if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
				break
			}
			return runs, fmt.Errorf("gc: %w", err)
		}
		runs++
	}

	e.lastGCTime.Store(time.Now().UnixMilli())
	e.gcRuns.Add(runs)

	e.logger.Info("gc completed",
		"files_rewritten", runs,
		"elapsed", time.Since(startTime))

	return runs, nil
}

// Stats returns storage statistics.
func (e *BadgerEngine) Stats(_ context.Context) (*KVStats, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	lsm, vlog := e.db.Size()

	return &KVStats{
		TotalSize:    uint64(lsm + vlog),
		LSMSize:      uint64(lsm),
		ValueLogSize: uint64(vlog),
		LastGCTime:   e.lastGCTime.Load(),
		GCRuns:       e.gcRuns.Load(),
	}, nil
}

// Ping reports whether the database accepts transactions.
func (e *BadgerEngine) Ping(_ context.Context) error {
	return e.View(func(*badger.Txn) error { return nil })
}

// Close gracefully shuts down the Badger engine. It is safe to call twice.
func (e *BadgerEngine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.logger.Info("shutting down badger engine")

	// Stop GC loop
	close(e.stopCh)
	<-e.doneCh

	// Close DB
	if err := e.db.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}

	e.logger.Info("badger engine shutdown complete")
	return nil
}

// RegisterMetrics exposes the engine sizes, GC activity and commit
// conflicts. Sizes are read at scrape time.
func (e *BadgerEngine) RegisterMetrics(registry prometheus.Registerer) *BadgerEngine {
	opts := func(name, help string) prometheus.GaugeOpts {
		return prometheus.GaugeOpts{Namespace: "sandstore", Subsystem: "badger", Name: name, Help: help}
	}
	size := func(lsmPart, vlogPart bool) func() float64 {
		return func() float64 {
			if e.closed.Load() {
				return 0
			}
			lsm, vlog := e.db.Size()
			var n int64
			if lsmPart {
				n += lsm
			}
			if vlogPart {
				n += vlog
			}
			return float64(n)
		}
	}

	e.conflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sandstore",
		Subsystem: "badger",
		Name:      "txn_conflicts_total",
		Help:      "Transactions retried after a commit conflict",
	})

	registry.MustRegister(
		prometheus.NewGaugeFunc(opts("lsm_size_bytes", "LSM tree size in bytes"), size(true, false)),
		prometheus.NewGaugeFunc(opts("value_log_size_bytes", "Value log size in bytes"), size(false, true)),
		prometheus.NewGaugeFunc(opts("total_size_bytes", "LSM tree plus value log in bytes"), size(true, true)),
		prometheus.NewGaugeFunc(opts("last_gc_timestamp_seconds", "Unix time of the last value log GC"), func() float64 {
			return float64(e.lastGCTime.Load()) / 1000
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts(opts("gc_files_rewritten_total", "Value log files rewritten by GC")), func() float64 {
			return float64(e.gcRuns.Load())
		}),
		e.conflicts,
	)
	return e
}

// gcLoop runs periodic garbage collection.
func (e *BadgerEngine) gcLoop() {
	defer close(e.doneCh)

	interval, err := time.ParseDuration(e.cfg.GCInterval)
	if err != nil || interval <= 0 {
		e.logger.Error("invalid gc_interval, using default 10m", "value", e.cfg.GCInterval)
		interval = 10 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			if _, err := e.GC(ctx); err != nil {
				e.logger.Error("auto gc failed", "error", err)
			}
			cancel()

		case <-e.stopCh:
			return
		}
	}
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
