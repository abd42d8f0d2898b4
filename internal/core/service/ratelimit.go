package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/yndnr/sandstore-go/internal/core/domain"
)

// Rate limiter defaults.
const (
	DefaultRateQuota  = 500
	DefaultRateWindow = 60 * time.Second
)

// rateLimit is an immutable quota/window pair swapped atomically on reload.
type rateLimit struct {
	quota  int64
	window time.Duration
}

// RateLimiter applies a fixed-window request quota per session.
//
// The window containing now starts at now.Truncate(window). The first quota
// calls in a window are allowed; later ones fail until the next window.
// Counter store failures are logged and the request is allowed.
type RateLimiter struct {
	store  CounterStore
	limit  atomic.Pointer[rateLimit]
	now    func() time.Time
	logger *slog.Logger

	failOpen atomic.Int64
}

// RateLimiterOption configures a RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithRateLimiterClock sets the time source.
func WithRateLimiterClock(now func() time.Time) RateLimiterOption {
	return func(r *RateLimiter) {
		r.now = now
	}
}

// WithRateLimiterLogger sets the logger for counter store failures.
func WithRateLimiterLogger(logger *slog.Logger) RateLimiterOption {
	return func(r *RateLimiter) {
		r.logger = logger
	}
}

// NewRateLimiter creates a new RateLimiter. A quota <= 0 disables limiting.
func NewRateLimiter(store CounterStore, quota int, window time.Duration, opts ...RateLimiterOption) *RateLimiter {
	r := &RateLimiter{
		store:  store,
		now:    time.Now,
		logger: slog.Default(),
	}
	r.SetLimit(quota, window)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetLimit replaces the quota and window. A non-positive window falls back
// to DefaultRateWindow.
func (r *RateLimiter) SetLimit(quota int, window time.Duration) {
	if window <= 0 {
		window = DefaultRateWindow
	}
	r.limit.Store(&rateLimit{quota: int64(quota), window: window})
}

// Limit returns the current quota and window.
func (r *RateLimiter) Limit() (int, time.Duration) {
	l := r.limit.Load()
	return int(l.quota), l.window
}

// FailOpenCount returns how many requests were allowed because the counter
// store failed.
func (r *RateLimiter) FailOpenCount() int64 {
	return r.failOpen.Load()
}

// Allow counts one request for tokenHash and returns ErrRateLimited once the
// window's quota is used up.
func (r *RateLimiter) Allow(ctx context.Context, tokenHash string) error {
	l := r.limit.Load()
	if l.quota <= 0 {
		return nil
	}

	start := r.now().Truncate(l.window)
	key := fmt.Sprintf("ratelimit:%s:%d", tokenHash, start.Unix())

	n, err := r.store.Incr(ctx, key, l.window)
	if err != nil {
		r.failOpen.Add(1)
		r.logger.WarnContext(ctx, "rate limit counter unavailable, allowing request", "error", err)
		return nil
	}
	if n > l.quota {
		return domain.ErrRateLimited.WithDetails(
			fmt.Sprintf("%d requests in the current %s window (max %d)", n, l.window, l.quota),
		)
	}
	return nil
}
