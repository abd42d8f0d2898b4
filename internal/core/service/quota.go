package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/yndnr/sandstore-go/internal/core/domain"
	"github.com/yndnr/sandstore-go/pkg/cmap"
)

// DefaultQuotaBudget is the per-tenant storage budget in bytes (5 MiB).
const DefaultQuotaBudget int64 = 5 << 20

// QuotaEnforcer rejects writes that would grow a tenant's stored bytes past
// its budget.
//
// The budget covers every collection of a res_id together. A write is
// planned as one unit, so a batch is accepted or rejected as a whole.
// Writes going through Apply hold a per-res_id lock from planning until the
// write returns, so two writes of one tenant cannot both spend the same
// headroom.
type QuotaEnforcer struct {
	namespaces NamespaceRepository
	backend    Backend
	budget     atomic.Int64
	locks      [quotaLockStripes]sync.Mutex
}

const quotaLockStripes = 64

// NewQuotaEnforcer creates a new QuotaEnforcer. A budget <= 0 disables it.
func NewQuotaEnforcer(namespaces NamespaceRepository, backend Backend, budget int64) *QuotaEnforcer {
	q := &QuotaEnforcer{namespaces: namespaces, backend: backend}
	q.budget.Store(budget)
	return q
}

// SetBudget replaces the budget.
func (q *QuotaEnforcer) SetBudget(budget int64) {
	q.budget.Store(budget)
}

// Budget returns the current budget.
func (q *QuotaEnforcer) Budget() int64 {
	return q.budget.Load()
}

// Apply checks m against the budget and runs write while holding the lock of
// resID. write is not called when the check fails.
func (q *QuotaEnforcer) Apply(ctx context.Context, resID, logical string, m *domain.Mutation, write func() error) error {
	if q.budget.Load() <= 0 {
		return write()
	}

	mu := &q.locks[cmap.ShardIndex(resID, 0x5a5d, quotaLockStripes-1)]
	mu.Lock()
	defer mu.Unlock()

	if err := q.Enforce(ctx, resID, logical, m); err != nil {
		return err
	}
	return write()
}

// Usage returns the stored bytes of every collection of resID.
func (q *QuotaEnforcer) Usage(ctx context.Context, resID string) (int64, error) {
	ns, err := q.namespaces.Get(ctx, resID)
	if err != nil {
		if errors.Is(err, domain.ErrNamespaceNotFound) {
			return 0, nil
		}
		return 0, storageErr(err)
	}

	var total int64
	for _, name := range ns.InternalNames() {
		size, err := q.backend.SizeOf(ctx, name)
		if err != nil {
			return 0, storageErr(err)
		}
		total += size
	}
	return total, nil
}

// Enforce returns ErrQuotaExceeded if applying m to logical would push the
// tenant's projected size past the budget.
func (q *QuotaEnforcer) Enforce(ctx context.Context, resID, logical string, m *domain.Mutation) error {
	budget := q.budget.Load()
	if budget <= 0 {
		return nil
	}

	// 1. Current usage
	used, err := q.Usage(ctx, resID)
	if err != nil {
		return err
	}

	// 2. Projected growth
	plan, err := q.backend.Plan(ctx, domain.InternalName(resID, logical), m)
	if err != nil {
		return storageErr(err)
	}

	// 3. Compare
	if projected := used + plan.SizeDelta; projected > budget {
		return domain.ErrQuotaExceeded.WithDetails(
			fmt.Sprintf("%s of %d documents would bring res_id to %d bytes (max %d)", m.Kind, plan.Affected, projected, budget),
		)
	}
	return nil
}
