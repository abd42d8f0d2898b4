package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/yndnr/sandstore-go/internal/telemetry/logger"
)

// stage is one named shutdown step.
type stage struct {
	name string
	fn   func(context.Context) error
}

// Handler runs shutdown stages once a termination is requested.
type Handler struct {
	timeout time.Duration
	logger  logger.Logger
	signals []os.Signal

	mu     sync.Mutex
	stages []stage

	trigger     chan struct{}
	triggerOnce sync.Once
	done        chan struct{}
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger used to report stage progress.
func WithLogger(l logger.Logger) Option {
	return func(h *Handler) {
		h.logger = l
	}
}

// WithSignals replaces the signals that start a shutdown. No signals means
// only Trigger and context cancellation do.
func WithSignals(sigs ...os.Signal) Option {
	return func(h *Handler) {
		h.signals = sigs
	}
}

// NewHandler creates a new shutdown handler. timeout bounds all stages
// together.
func NewHandler(timeout time.Duration, opts ...Option) *Handler {
	h := &Handler{
		timeout: timeout,
		logger:  logger.Default(),
		signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		trigger: make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// OnShutdown registers a stage. Stages run in registration order, so
// register the listener before the storage it depends on.
func (h *Handler) OnShutdown(name string, fn func(context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stages = append(h.stages, stage{name: name, fn: fn})
}

// Trigger requests a shutdown without a signal. Repeated calls are no-ops.
func (h *Handler) Trigger() {
	h.triggerOnce.Do(func() { close(h.trigger) })
}

// Wait blocks until a shutdown is requested and runs every stage. A failing
// stage does not stop later ones; their errors are joined.
func (h *Handler) Wait(ctx context.Context) error {
	var sigCh chan os.Signal
	if len(h.signals) > 0 {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, h.signals...)
		defer signal.Stop(sigCh)
	}

	select {
	case sig := <-sigCh:
		h.logger.Info("shutdown signal received", "signal", sig.String())
	case <-h.trigger:
		h.logger.Info("shutdown requested")
	case <-ctx.Done():
		h.logger.Info("shutdown on context end", "error", ctx.Err())
	}

	return h.run()
}

func (h *Handler) run() error {
	defer close(h.done)

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	h.mu.Lock()
	stages := make([]stage, len(h.stages))
	copy(stages, h.stages)
	h.mu.Unlock()

	var errs []error
	for _, s := range stages {
		start := time.Now()
		if err := s.fn(ctx); err != nil {
			h.logger.Error("shutdown stage failed", "stage", s.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
			continue
		}
		h.logger.Debug("shutdown stage complete", "stage", s.name, "duration_ms", time.Since(start).Milliseconds())
	}
	return errors.Join(errs...)
}

// Done returns a channel that closes when all stages have run.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}
