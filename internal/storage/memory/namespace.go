package memory

import (
	"context"
	"sort"
	"time"

	"github.com/yndnr/sandstore-go/internal/core/domain"
	"github.com/yndnr/sandstore-go/internal/core/service"
	"github.com/yndnr/sandstore-go/pkg/cmap"
)

var _ service.NamespaceRepository = (*NamespaceStore)(nil)

// NamespaceStore provides in-memory namespace storage keyed by res_id.
type NamespaceStore struct {
	namespaces *cmap.Map[string, *domain.Namespace]
}

// NewNamespaceStore creates an empty namespace store.
func NewNamespaceStore() *NamespaceStore {
	return &NamespaceStore{
		namespaces: cmap.New[string, *domain.Namespace](),
	}
}

// Create stores a new namespace.
func (s *NamespaceStore) Create(_ context.Context, ns *domain.Namespace) error {
	if !domain.IsValidResID(ns.ResID) {
		return domain.ErrInvalidArgument.WithDetails("res_id is malformed")
	}
	if !s.namespaces.SetIfAbsent(ns.ResID, ns.Clone()) {
		return domain.ErrNamespaceConflict
	}
	return nil
}

// Get retrieves a namespace by res_id.
func (s *NamespaceStore) Get(_ context.Context, resID string) (*domain.Namespace, error) {
	ns, ok := s.namespaces.Get(resID)
	if !ok {
		return nil, domain.ErrNamespaceNotFound
	}
	return ns.Clone(), nil
}

// Update replaces a namespace with optimistic locking.
func (s *NamespaceStore) Update(_ context.Context, ns *domain.Namespace, expectedVersion uint64) error {
	if !s.namespaces.Has(ns.ResID) {
		return domain.ErrNamespaceNotFound
	}
	if !cmap.CompareAndSwap(s.namespaces, ns.ResID, expectedVersion, ns.Clone()) {
		return domain.ErrNamespaceVersionConflict
	}
	ns.Version = expectedVersion + 1
	return nil
}

// Delete removes a namespace.
func (s *NamespaceStore) Delete(_ context.Context, resID string) error {
	if !s.namespaces.DeleteIf(resID, func(*domain.Namespace) bool { return true }) {
		return domain.ErrNamespaceNotFound
	}
	return nil
}

// ListCreatedBefore returns namespaces created before cutoff, oldest first.
func (s *NamespaceStore) ListCreatedBefore(_ context.Context, cutoff time.Time) ([]*domain.Namespace, error) {
	var out []*domain.Namespace
	s.namespaces.Range(func(_ string, ns *domain.Namespace) bool {
		if ns.CreatedBefore(cutoff) {
			out = append(out, ns.Clone())
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

// Count returns the number of namespaces.
func (s *NamespaceStore) Count() int {
	return s.namespaces.Count()
}
