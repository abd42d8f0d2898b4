// Package memory provides in-memory storage for Sandstore.
//
// It implements the service storage interfaces using concurrent-safe
// data structures with sharded locking.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/yndnr/sandstore-go/internal/core/domain"
	"github.com/yndnr/sandstore-go/internal/core/service"
	"github.com/yndnr/sandstore-go/pkg/cmap"
)

var _ service.SessionRepository = (*Store)(nil)

// Store provides in-memory session storage keyed by token hash.
type Store struct {
	// Primary index: TokenHash -> Session
	sessions *cmap.Map[string, *domain.Session]

	// Secondary index: ResID -> set of TokenHashes
	resIndex *ResIndex

	// Global lock for operations requiring atomicity across indexes
	mu sync.RWMutex
}

// Option configures the Store.
type Option func(*Store)

// WithShardCount sets the number of shards of the primary index.
func WithShardCount(n int) Option {
	return func(s *Store) {
		s.sessions = cmap.NewWithShards[string, *domain.Session](n)
	}
}

// New creates a new in-memory session store.
func New(opts ...Option) *Store {
	s := &Store{
		sessions: cmap.New[string, *domain.Session](),
		resIndex: NewResIndex(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Get retrieves a session by token hash.
func (s *Store) Get(_ context.Context, tokenHash string) (*domain.Session, error) {
	session, ok := s.sessions.Get(tokenHash)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session.Clone(), nil
}

// Create stores a new session. Only one of several concurrent creators of
// the same token hash succeeds.
func (s *Store) Create(_ context.Context, session *domain.Session) error {
	if err := session.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Store session (clone to prevent external modification)
	if !s.sessions.SetIfAbsent(session.TokenHash, session.Clone()) {
		return domain.ErrSessionConflict
	}
	s.resIndex.Add(session.ResID, session.TokenHash)

	return nil
}

// Update replaces a session with optimistic locking. The stored version
// becomes expectedVersion+1.
func (s *Store) Update(_ context.Context, session *domain.Session, expectedVersion uint64) error {
	if err := session.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.sessions.Get(session.TokenHash)
	if !ok {
		return domain.ErrSessionNotFound
	}
	if existing.ResID != session.ResID {
		return domain.ErrInvalidArgument.WithDetails("res_id of a session cannot change")
	}

	if !cmap.CompareAndSwap(s.sessions, session.TokenHash, expectedVersion, session.Clone()) {
		return domain.ErrSessionVersionConflict
	}

	// Update version in the caller's session too
	session.Version = expectedVersion + 1

	return nil
}

// DeleteIdle removes a session only if it is unchanged since version
// expectedVersion and still idle before cutoff.
func (s *Store) DeleteIdle(_ context.Context, tokenHash string, expectedVersion uint64, cutoff time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var resID string
	deleted := s.sessions.DeleteIf(tokenHash, func(existing *domain.Session) bool {
		if existing.Version != expectedVersion || !existing.IdleBefore(cutoff) {
			return false
		}
		resID = existing.ResID
		return true
	})
	if deleted {
		s.resIndex.Remove(resID, tokenHash)
	}
	return deleted, nil
}

// Delete removes a session unconditionally.
func (s *Store) Delete(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.sessions.Get(tokenHash)
	if !ok {
		return domain.ErrSessionNotFound
	}
	s.sessions.Delete(tokenHash)
	s.resIndex.Remove(existing.ResID, tokenHash)

	return nil
}

// ListIdleBefore returns sessions last active before cutoff, oldest first.
func (s *Store) ListIdleBefore(_ context.Context, cutoff time.Time) ([]*domain.Session, error) {
	var idle []*domain.Session
	s.sessions.Range(func(_ string, session *domain.Session) bool {
		if session.IdleBefore(cutoff) {
			idle = append(idle, session.Clone())
		}
		return true
	})

	sort.Slice(idle, func(i, j int) bool {
		return idle[i].LastActive < idle[j].LastActive
	})
	return idle, nil
}

// ListByResID returns every session bound to resID.
func (s *Store) ListByResID(_ context.Context, resID string) ([]*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hashes := s.resIndex.Get(resID)
	sessions := make([]*domain.Session, 0, len(hashes))
	for _, hash := range hashes {
		if session, ok := s.sessions.Get(hash); ok {
			sessions = append(sessions, session.Clone())
		}
	}
	return sessions, nil
}

// Count returns the total number of sessions.
func (s *Store) Count(_ context.Context) (int, error) {
	return s.sessions.Count(), nil
}

// Scan iterates over all sessions.
// The callback receives a clone of each session.
// Return false from the callback to stop iteration.
func (s *Store) Scan(fn func(*domain.Session) bool) {
	s.sessions.Range(func(_ string, session *domain.Session) bool {
		return fn(session.Clone())
	})
}
