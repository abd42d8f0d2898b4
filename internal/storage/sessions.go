package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v3"

	"github.com/yndnr/sandstore-go/internal/core/domain"
	"github.com/yndnr/sandstore-go/internal/core/service"
)

var (
	_ service.SessionRepository   = (*BadgerSessionStore)(nil)
	_ service.NamespaceRepository = (*BadgerNamespaceStore)(nil)
)

// BadgerSessionStore persists sessions keyed by token hash, with a res_id
// secondary index kept in the same transaction.
type BadgerSessionStore struct {
	engine *BadgerEngine
}

// NewBadgerSessionStore creates a session store on engine.
func NewBadgerSessionStore(engine *BadgerEngine) *BadgerSessionStore {
	return &BadgerSessionStore{engine: engine}
}

// Create stores a new session.
func (s *BadgerSessionStore) Create(ctx context.Context, session *domain.Session) error {
	if err := session.Validate(); err != nil {
		return err
	}

	return backendErr(s.engine.Update(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get(sessionKey(session.TokenHash)); err == nil {
			return domain.ErrSessionConflict
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := putJSON(txn, sessionKey(session.TokenHash), session); err != nil {
			return err
		}
		return txn.Set(resIndexKey(session.ResID, session.TokenHash), []byte{})
	}))
}

// Get retrieves a session by token hash.
func (s *BadgerSessionStore) Get(_ context.Context, tokenHash string) (*domain.Session, error) {
	var session *domain.Session
	err := s.engine.View(func(txn *badger.Txn) error {
		var err error
		session, err = loadSession(txn, tokenHash)
		return err
	})
	if err != nil {
		return nil, backendErr(err)
	}
	return session, nil
}

// Update replaces a session with optimistic locking. The stored version
// becomes expectedVersion+1.
func (s *BadgerSessionStore) Update(ctx context.Context, session *domain.Session, expectedVersion uint64) error {
	if err := session.Validate(); err != nil {
		return err
	}

	err := s.engine.Update(ctx, func(txn *badger.Txn) error {
		existing, err := loadSession(txn, session.TokenHash)
		if err != nil {
			return err
		}
		if existing.Version != expectedVersion {
			return domain.ErrSessionVersionConflict
		}
		if existing.ResID != session.ResID {
			return domain.ErrInvalidArgument.WithDetails("res_id of a session cannot change")
		}

		updated := session.Clone()
		updated.Version = expectedVersion + 1
		return putJSON(txn, sessionKey(session.TokenHash), updated)
	})
	if err != nil {
		return backendErr(err)
	}

	session.Version = expectedVersion + 1
	return nil
}

// DeleteIdle removes a session only if it is unchanged since version
// expectedVersion and still idle before cutoff.
func (s *BadgerSessionStore) DeleteIdle(ctx context.Context, tokenHash string, expectedVersion uint64, cutoff time.Time) (bool, error) {
	var deleted bool
	err := s.engine.Update(ctx, func(txn *badger.Txn) error {
		deleted = false
		existing, err := loadSession(txn, tokenHash)
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if existing.Version != expectedVersion || !existing.IdleBefore(cutoff) {
			return nil
		}

		if err := txn.Delete(sessionKey(tokenHash)); err != nil {
			return err
		}
		if err := txn.Delete(resIndexKey(existing.ResID, tokenHash)); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	if err != nil {
		return false, backendErr(err)
	}
	return deleted, nil
}

// ListIdleBefore returns sessions last active before cutoff, oldest first.
func (s *BadgerSessionStore) ListIdleBefore(_ context.Context, cutoff time.Time) ([]*domain.Session, error) {
	var idle []*domain.Session
	err := s.engine.View(func(txn *badger.Txn) error {
		return scan(txn, []byte(prefixSession), true, func(key, value []byte) (bool, error) {
			var session domain.Session
			if err := json.Unmarshal(value, &session); err != nil {
				return false, fmt.Errorf("decode %s: %w", key, err)
			}
			if session.IdleBefore(cutoff) {
				idle = append(idle, &session)
			}
			return true, nil
		})
	})
	if err != nil {
		return nil, backendErr(err)
	}

	sort.Slice(idle, func(i, j int) bool {
		return idle[i].LastActive < idle[j].LastActive
	})
	return idle, nil
}

// ListByResID returns every session bound to resID.
func (s *BadgerSessionStore) ListByResID(_ context.Context, resID string) ([]*domain.Session, error) {
	var sessions []*domain.Session
	err := s.engine.View(func(txn *badger.Txn) error {
		prefix := resIndexPrefix(resID)
		var hashes []string
		if err := scan(txn, prefix, false, func(key, _ []byte) (bool, error) {
			hashes = append(hashes, string(key[len(prefix):]))
			return true, nil
		}); err != nil {
			return err
		}

		for _, hash := range hashes {
			session, err := loadSession(txn, hash)
			if errors.Is(err, domain.ErrSessionNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			sessions = append(sessions, session)
		}
		return nil
	})
	if err != nil {
		return nil, backendErr(err)
	}
	return sessions, nil
}

// Count returns the number of stored sessions.
func (s *BadgerSessionStore) Count(_ context.Context) (int, error) {
	n := 0
	err := s.engine.View(func(txn *badger.Txn) error {
		return scan(txn, []byte(prefixSession), false, func([]byte, []byte) (bool, error) {
			n++
			return true, nil
		})
	})
	if err != nil {
		return 0, backendErr(err)
	}
	return n, nil
}

func loadSession(txn *badger.Txn, tokenHash string) (*domain.Session, error) {
	raw, err := getValue(txn, sessionKey(tokenHash))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &session, nil
}

// BadgerNamespaceStore persists namespace records keyed by res_id.
type BadgerNamespaceStore struct {
	engine *BadgerEngine
}

// NewBadgerNamespaceStore creates a namespace store on engine.
func NewBadgerNamespaceStore(engine *BadgerEngine) *BadgerNamespaceStore {
	return &BadgerNamespaceStore{engine: engine}
}

// Create stores a new namespace.
func (s *BadgerNamespaceStore) Create(ctx context.Context, ns *domain.Namespace) error {
	if !domain.IsValidResID(ns.ResID) {
		return domain.ErrInvalidArgument.WithDetails("res_id is malformed")
	}

	return backendErr(s.engine.Update(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get(namespaceKey(ns.ResID)); err == nil {
			return domain.ErrNamespaceConflict
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return putJSON(txn, namespaceKey(ns.ResID), ns)
	}))
}

// Get retrieves a namespace by res_id.
func (s *BadgerNamespaceStore) Get(_ context.Context, resID string) (*domain.Namespace, error) {
	var ns *domain.Namespace
	err := s.engine.View(func(txn *badger.Txn) error {
		var err error
		ns, err = loadNamespace(txn, resID)
		return err
	})
	if err != nil {
		return nil, backendErr(err)
	}
	return ns, nil
}

// Update replaces a namespace with optimistic locking.
func (s *BadgerNamespaceStore) Update(ctx context.Context, ns *domain.Namespace, expectedVersion uint64) error {
	err := s.engine.Update(ctx, func(txn *badger.Txn) error {
		existing, err := loadNamespace(txn, ns.ResID)
		if err != nil {
			return err
		}
		if existing.Version != expectedVersion {
			return domain.ErrNamespaceVersionConflict
		}

		updated := ns.Clone()
		updated.Version = expectedVersion + 1
		return putJSON(txn, namespaceKey(ns.ResID), updated)
	})
	if err != nil {
		return backendErr(err)
	}

	ns.Version = expectedVersion + 1
	return nil
}

// Delete removes a namespace.
func (s *BadgerNamespaceStore) Delete(ctx context.Context, resID string) error {
	return backendErr(s.engine.Update(ctx, func(txn *badger.Txn) error {
		if _, err := loadNamespace(txn, resID); err != nil {
			return err
		}
		return txn.Delete(namespaceKey(resID))
	}))
}

// ListCreatedBefore returns namespaces created before cutoff, oldest first.
func (s *BadgerNamespaceStore) ListCreatedBefore(_ context.Context, cutoff time.Time) ([]*domain.Namespace, error) {
	var out []*domain.Namespace
	err := s.engine.View(func(txn *badger.Txn) error {
		return scan(txn, []byte(prefixNamespace), true, func(key, value []byte) (bool, error) {
			var ns domain.Namespace
			if err := json.Unmarshal(value, &ns); err != nil {
				return false, fmt.Errorf("decode %s: %w", key, err)
			}
			if ns.CreatedBefore(cutoff) {
				out = append(out, &ns)
			}
			return true, nil
		})
	})
	if err != nil {
		return nil, backendErr(err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

func loadNamespace(txn *badger.Txn, resID string) (*domain.Namespace, error) {
	raw, err := getValue(txn, namespaceKey(resID))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, domain.ErrNamespaceNotFound
	}
	if err != nil {
		return nil, err
	}
	var ns domain.Namespace
	if err := json.Unmarshal(raw, &ns); err != nil {
		return nil, fmt.Errorf("decode namespace: %w", err)
	}
	if ns.Collections == nil {
		ns.Collections = []string{}
	}
	return &ns, nil
}
