package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/sandstore-go/internal/core/domain"
)

// Sweeper defaults.
const (
	DefaultSweepEvery   = 600 * time.Second
	DefaultSweepIdleFor = 1800 * time.Second
)

// SweepResult summarizes one sweep.
type SweepResult struct {
	Reclaimed int `json:"reclaimed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	// Orphans counts namespaces dropped because no session referenced them,
	// such as those left behind by a failed drop in an earlier sweep.
	Orphans int       `json:"orphans"`
	Cutoff  time.Time `json:"cutoff"`
	// Overlapped is set when the sweep did not run because another was in
	// flight.
	Overlapped bool `json:"overlapped,omitempty"`
}

// ExpirySweeper reclaims sessions idle for longer than the configured
// duration, and the namespace data of res_ids no session references.
//
// A session record is deleted only if it is unchanged since it was listed and
// still idle, so a concurrent keep-alive wins. Namespace data is dropped only
// after that delete succeeds and no other session references the res_id.
// Namespaces older than the cutoff with no session left are dropped in a
// second pass, so a drop that failed once is retried on the next sweep.
type ExpirySweeper struct {
	sessions   SessionRepository
	namespaces NamespaceRepository
	mapper     *NamespaceMapper
	logger     *slog.Logger
	now        func() time.Time

	every   atomic.Int64 // time.Duration
	idleFor atomic.Int64 // time.Duration
	running atomic.Bool

	reclaimedTotal prometheus.Counter
	skippedTotal   prometheus.Counter
	failedTotal    prometheus.Counter
	orphansTotal   prometheus.Counter
	runsTotal      *prometheus.CounterVec

	startOnce sync.Once
	stopOnce  sync.Once
	resetCh   chan struct{}
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// SweeperOption configures an ExpirySweeper.
type SweeperOption func(*ExpirySweeper)

// WithSweeperClock sets the time source.
func WithSweeperClock(now func() time.Time) SweeperOption {
	return func(s *ExpirySweeper) {
		s.now = now
	}
}

// WithSweeperLogger sets the logger.
func WithSweeperLogger(logger *slog.Logger) SweeperOption {
	return func(s *ExpirySweeper) {
		s.logger = logger
	}
}

// NewExpirySweeper creates a new ExpirySweeper. Non-positive durations fall
// back to the defaults.
func NewExpirySweeper(sessions SessionRepository, namespaces NamespaceRepository, mapper *NamespaceMapper, every, idleFor time.Duration, opts ...SweeperOption) *ExpirySweeper {
	s := &ExpirySweeper{
		sessions:   sessions,
		namespaces: namespaces,
		mapper:     mapper,
		logger:     slog.Default(),
		now:        time.Now,
		reclaimedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sandstore",
			Subsystem: "sweeper",
			Name:      "sessions_reclaimed_total",
			Help:      "Idle sessions removed by the expiry sweeper",
		}),
		skippedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sandstore",
			Subsystem: "sweeper",
			Name:      "sessions_skipped_total",
			Help:      "Idle sessions left in place because they became active during the sweep",
		}),
		failedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sandstore",
			Subsystem: "sweeper",
			Name:      "sessions_failed_total",
			Help:      "Idle sessions whose cleanup failed",
		}),
		orphansTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sandstore",
			Subsystem: "sweeper",
			Name:      "namespaces_orphaned_total",
			Help:      "Namespaces dropped because no session referenced them",
		}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sandstore",
			Subsystem: "sweeper",
			Name:      "runs_total",
			Help:      "Sweeps by outcome",
		}, []string{"outcome"}),
		resetCh: make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	s.SetSchedule(every, idleFor)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Collectors returns the sweeper's Prometheus collectors.
func (s *ExpirySweeper) Collectors() []prometheus.Collector {
	return []prometheus.Collector{s.reclaimedTotal, s.skippedTotal, s.failedTotal, s.orphansTotal, s.runsTotal}
}

// SetSchedule replaces the tick interval and idle duration. A running loop
// picks up a new interval on its next tick.
func (s *ExpirySweeper) SetSchedule(every, idleFor time.Duration) {
	if every <= 0 {
		every = DefaultSweepEvery
	}
	if idleFor <= 0 {
		idleFor = DefaultSweepIdleFor
	}
	old := time.Duration(s.every.Swap(int64(every)))
	s.idleFor.Store(int64(idleFor))
	if old != 0 && old != every {
		select {
		case s.resetCh <- struct{}{}:
		default:
		}
	}
}

// Start launches the sweep loop. Calling Start more than once has no effect.
func (s *ExpirySweeper) Start() {
	s.startOnce.Do(func() {
		go s.loop()
	})
}

// Stop ends the sweep loop and waits for a running sweep to finish.
func (s *ExpirySweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	// a sweeper that never started has no loop to wait for
	s.startOnce.Do(func() {
		close(s.doneCh)
	})
	<-s.doneCh
}

func (s *ExpirySweeper) loop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(time.Duration(s.every.Load()))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithCancel(context.Background())
			go func() {
				select {
				case <-s.stopCh:
					cancel()
				case <-ctx.Done():
				}
			}()
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error("session sweep failed", "error", err)
			}
			cancel()

		case <-s.resetCh:
			ticker.Reset(time.Duration(s.every.Load()))

		case <-s.stopCh:
			return
		}
	}
}

// RunOnce performs one sweep. If another sweep is in flight it returns at
// once with Overlapped set.
func (s *ExpirySweeper) RunOnce(ctx context.Context) (*SweepResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.runsTotal.WithLabelValues("overlapped").Inc()
		s.logger.Warn("session sweep skipped, previous sweep still running")
		return &SweepResult{Overlapped: true}, nil
	}
	defer s.running.Store(false)

	result := &SweepResult{Cutoff: s.now().Add(-time.Duration(s.idleFor.Load()))}

	idle, err := s.sessions.ListIdleBefore(ctx, result.Cutoff)
	if err != nil {
		s.runsTotal.WithLabelValues("error").Inc()
		return nil, storageErr(err)
	}

	// res_ids handled above are not retried as orphans in the same sweep
	seen := make(map[string]bool, len(idle))
	for _, session := range idle {
		if ctx.Err() != nil {
			break
		}
		seen[session.ResID] = true
		switch err := s.reclaim(ctx, session, result.Cutoff); {
		case err == nil:
			result.Reclaimed++
		case errors.Is(err, errSessionRevived):
			result.Skipped++
		default:
			result.Failed++
			s.logger.Error("session cleanup failed",
				"res_id", session.ResID,
				"error", err)
		}
	}

	if ctx.Err() == nil {
		if err := s.reclaimOrphans(ctx, result, seen); err != nil {
			result.Failed++
			s.logger.Error("listing namespaces failed", "error", err)
		}
	}

	s.reclaimedTotal.Add(float64(result.Reclaimed))
	s.skippedTotal.Add(float64(result.Skipped))
	s.failedTotal.Add(float64(result.Failed))
	s.orphansTotal.Add(float64(result.Orphans))
	s.runsTotal.WithLabelValues("completed").Inc()

	s.logger.Info("timed out expired sessions",
		"reclaimed", result.Reclaimed,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"orphans", result.Orphans,
		"cutoff", result.Cutoff)

	return result, ctx.Err()
}

var errSessionRevived = errors.New("session active again")

// reclaim removes one idle session and, if it was the last reference to its
// res_id, the namespace and its data.
func (s *ExpirySweeper) reclaim(ctx context.Context, session *domain.Session, cutoff time.Time) error {
	// 1. Delete the record only if it is still the idle version we listed
	deleted, err := s.sessions.DeleteIdle(ctx, session.TokenHash, session.Version, cutoff)
	if err != nil {
		return err
	}
	if !deleted {
		return errSessionRevived
	}

	// 2. Keep shared namespaces alive
	others, err := s.sessions.ListByResID(ctx, session.ResID)
	if err != nil {
		return err
	}
	if len(others) > 0 {
		s.logger.Debug("res_id still referenced, keeping data",
			"res_id", session.ResID,
			"sessions", len(others))
		return nil
	}

	// 3. Drop the data, then the namespace record
	return s.dropNamespace(ctx, session.ResID)
}

// reclaimOrphans drops namespaces created before the cutoff that no session
// references. A res_id without sessions cannot gain one again, since attach
// needs a live token of the same res_id.
func (s *ExpirySweeper) reclaimOrphans(ctx context.Context, result *SweepResult, seen map[string]bool) error {
	candidates, err := s.namespaces.ListCreatedBefore(ctx, result.Cutoff)
	if err != nil {
		return storageErr(err)
	}

	for _, ns := range candidates {
		if ctx.Err() != nil {
			return nil
		}
		if seen[ns.ResID] {
			continue
		}
		sessions, err := s.sessions.ListByResID(ctx, ns.ResID)
		if err == nil && len(sessions) > 0 {
			continue
		}
		if err == nil {
			err = s.dropNamespace(ctx, ns.ResID)
		}
		if err != nil {
			result.Failed++
			s.logger.Error("orphaned namespace cleanup failed",
				"res_id", ns.ResID,
				"error", err)
			continue
		}
		result.Orphans++
	}
	return nil
}

// dropNamespace drops the data of resID, then its namespace record.
func (s *ExpirySweeper) dropNamespace(ctx context.Context, resID string) error {
	if err := s.mapper.DropAll(ctx, resID); err != nil {
		return err
	}
	if err := s.namespaces.Delete(ctx, resID); err != nil && !errors.Is(err, domain.ErrNamespaceNotFound) {
		return err
	}
	return nil
}
