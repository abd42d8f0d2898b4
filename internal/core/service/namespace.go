package service

import (
	"context"
	"errors"
	"time"

	"github.com/yndnr/sandstore-go/internal/core/domain"
)

// maxNamespaceRetries bounds optimistic updates of a namespace record.
const maxNamespaceRetries = 3

// NamespaceMapper maps logical collection names of a res_id onto backend
// collections and maintains the namespace's collection listing.
type NamespaceMapper struct {
	namespaces NamespaceRepository
	backend    Backend
	now        func() time.Time
}

// NewNamespaceMapper creates a new NamespaceMapper.
func NewNamespaceMapper(namespaces NamespaceRepository, backend Backend) *NamespaceMapper {
	return &NamespaceMapper{namespaces: namespaces, backend: backend, now: time.Now}
}

// InternalName returns the backend name of logical within resID.
func (m *NamespaceMapper) InternalName(resID, logical string) string {
	return domain.InternalName(resID, logical)
}

// ValidateLogicalName checks a client-supplied collection name.
func (m *NamespaceMapper) ValidateLogicalName(logical string) error {
	return domain.ValidateCollectionName(logical)
}

// Register adds logical to the listing of resID. It is a no-op when the
// name is already present.
func (m *NamespaceMapper) Register(ctx context.Context, resID, logical string) error {
	return m.modify(ctx, resID, func(ns *domain.Namespace) bool {
		return ns.Add(logical)
	})
}

// Unregister removes logical from the listing of resID.
func (m *NamespaceMapper) Unregister(ctx context.Context, resID, logical string) error {
	return m.modify(ctx, resID, func(ns *domain.Namespace) bool {
		return ns.Remove(logical)
	})
}

// Collections returns the sorted logical collection names of resID.
func (m *NamespaceMapper) Collections(ctx context.Context, resID string) ([]string, error) {
	ns, err := m.namespaces.Get(ctx, resID)
	if err != nil {
		if errors.Is(err, domain.ErrNamespaceNotFound) {
			return []string{}, nil
		}
		return nil, storageErr(err)
	}
	return append([]string{}, ns.Collections...), nil
}

// DropAll drops every backend collection of resID and clears its listing.
// Collections already missing from the backend count as dropped.
func (m *NamespaceMapper) DropAll(ctx context.Context, resID string) error {
	ns, err := m.namespaces.Get(ctx, resID)
	if err != nil {
		if errors.Is(err, domain.ErrNamespaceNotFound) {
			return nil
		}
		return storageErr(err)
	}

	for _, name := range ns.InternalNames() {
		if err := m.backend.DropCollection(ctx, name); err != nil && !errors.Is(err, domain.ErrCollectionNotFound) {
			return storageErr(err)
		}
	}

	dropped := make(map[string]bool, len(ns.Collections))
	for _, logical := range ns.Collections {
		dropped[logical] = true
	}
	return m.modify(ctx, resID, func(ns *domain.Namespace) bool {
		changed := false
		for _, logical := range append([]string(nil), ns.Collections...) {
			if dropped[logical] {
				changed = ns.Remove(logical) || changed
			}
		}
		return changed
	})
}

// modify applies fn to the namespace with optimistic locking. A missing
// namespace is created first.
func (m *NamespaceMapper) modify(ctx context.Context, resID string, fn func(*domain.Namespace) bool) error {
	for attempt := 0; attempt < maxNamespaceRetries; attempt++ {
		ns, err := m.namespaces.Get(ctx, resID)
		if errors.Is(err, domain.ErrNamespaceNotFound) {
			ns = domain.NewNamespace(resID, m.now())
			if !fn(ns) {
				return nil
			}
			err = m.namespaces.Create(ctx, ns)
			if errors.Is(err, domain.ErrNamespaceConflict) {
				continue
			}
			return storageErrOrNil(err)
		}
		if err != nil {
			return storageErr(err)
		}

		expected := ns.Version
		updated := ns.Clone()
		if !fn(updated) {
			return nil
		}
		updated.IncrVersion()

		err = m.namespaces.Update(ctx, updated, expected)
		if errors.Is(err, domain.ErrNamespaceVersionConflict) || errors.Is(err, domain.ErrNamespaceNotFound) {
			continue
		}
		return storageErrOrNil(err)
	}
	return domain.ErrNamespaceVersionConflict.WithDetails("namespace " + resID + " is under contention")
}

func storageErrOrNil(err error) error {
	if err == nil {
		return nil
	}
	return storageErr(err)
}
