package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/yndnr/sandstore-go/internal/core/domain"
)

// SessionRepository defines the storage interface for session records.
//
// Sessions are keyed by token hash. Implementations must make Create atomic
// per key so that concurrent resolvers of one token converge on one record.
type SessionRepository interface {
	// Create stores a new session. Returns ErrSessionConflict if a session
	// with the same token hash already exists.
	Create(ctx context.Context, session *domain.Session) error

	// Get retrieves a session by token hash. Returns ErrSessionNotFound.
	Get(ctx context.Context, tokenHash string) (*domain.Session, error)

	// Update replaces a session if its stored version equals expectedVersion.
	// Returns ErrSessionNotFound or ErrSessionVersionConflict.
	Update(ctx context.Context, session *domain.Session, expectedVersion uint64) error

	// DeleteIdle removes a session only if its version still equals
	// expectedVersion and it is still idle before cutoff. Reports whether
	// the record was removed.
	DeleteIdle(ctx context.Context, tokenHash string, expectedVersion uint64, cutoff time.Time) (bool, error)

	// ListIdleBefore returns sessions whose last activity precedes cutoff.
	ListIdleBefore(ctx context.Context, cutoff time.Time) ([]*domain.Session, error)

	// ListByResID returns every session bound to resID.
	ListByResID(ctx context.Context, resID string) ([]*domain.Session, error)

	// Count returns the number of stored sessions.
	Count(ctx context.Context) (int, error)
}

// NamespaceRepository defines the storage interface for namespace records.
type NamespaceRepository interface {
	// Create stores a new namespace. Returns ErrNamespaceConflict.
	Create(ctx context.Context, ns *domain.Namespace) error

	// Get retrieves a namespace by res_id. Returns ErrNamespaceNotFound.
	Get(ctx context.Context, resID string) (*domain.Namespace, error)

	// Update replaces a namespace if its stored version equals
	// expectedVersion. Returns ErrNamespaceNotFound or
	// ErrNamespaceVersionConflict.
	Update(ctx context.Context, ns *domain.Namespace, expectedVersion uint64) error

	// Delete removes a namespace. Returns ErrNamespaceNotFound.
	Delete(ctx context.Context, resID string) error

	// ListCreatedBefore returns namespaces created before cutoff.
	ListCreatedBefore(ctx context.Context, cutoff time.Time) ([]*domain.Namespace, error)
}

// Backend is the shared document store every tenant's collections live in.
//
// Collection names passed to a Backend are internal names. Implementations
// report rejected requests as ErrBackendQuery with the engine message as
// details, storage failures as ErrBackendUnavailable, and dropping a missing
// collection as ErrCollectionNotFound.
type Backend interface {
	Insert(ctx context.Context, coll string, docs []domain.Document) error
	Find(ctx context.Context, coll string, opts *domain.FindOptions) ([]domain.Document, error)
	Count(ctx context.Context, coll string, opts *domain.CountOptions) (int, error)
	Update(ctx context.Context, coll string, m *domain.Mutation) (*domain.WriteResult, error)
	Remove(ctx context.Context, coll string, opts *domain.RemoveOptions) (*domain.WriteResult, error)
	Aggregate(ctx context.Context, coll string, pipeline json.RawMessage) ([]domain.Document, error)

	// Plan projects the effect of m on coll without applying it.
	Plan(ctx context.Context, coll string, m *domain.Mutation) (*domain.MutationPlan, error)

	CreateIndex(ctx context.Context, coll string, spec *domain.IndexSpec) (string, error)
	ListIndexes(ctx context.Context, coll string) ([]*domain.IndexInfo, error)
	DropIndex(ctx context.Context, coll, name string) error
	DropIndexes(ctx context.Context, coll string) error
	ReIndex(ctx context.Context, coll string) error

	DropCollection(ctx context.Context, coll string) error

	// SizeOf returns the stored size of coll in bytes, 0 if it does not exist.
	SizeOf(ctx context.Context, coll string) (int64, error)

	ListCollections(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}

// CounterStore holds fixed-window request counters.
type CounterStore interface {
	// Incr increments key and returns the new count. A key created by the
	// call expires after ttl.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// storageErr passes domain errors through and maps anything else to
// ErrBackendUnavailable.
func storageErr(err error) error {
	if domain.IsDomainError(err, "") {
		return err
	}
	return domain.ErrBackendUnavailable.WithCause(err)
}
