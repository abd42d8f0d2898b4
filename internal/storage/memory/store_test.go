package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/sandstore-go/internal/core/domain"
)

var hasher = domain.NewTokenHasher("memory-test")

func newTestSession(t *testing.T, resID string, now time.Time) *domain.Session {
	t.Helper()
	if resID == "" {
		var err error
		if resID, err = domain.GenerateResID(); err != nil {
			t.Fatalf("GenerateResID: %v", err)
		}
	}
	_, hash, err := hasher.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return domain.NewSession(resID, hash, now)
}

func TestStore_CreateAndGet(t *testing.T) {
	store := New()
	ctx := context.Background()
	s := newTestSession(t, "", time.Now())

	if err := store.Create(ctx, s); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := store.Get(ctx, s.TokenHash)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ResID != s.ResID {
		t.Fatalf("Get ResID = %q, want %q", got.ResID, s.ResID)
	}

	// returned sessions are copies
	got.LastActive = 0
	again, _ := store.Get(ctx, s.TokenHash)
	if again.LastActive != s.LastActive {
		t.Fatalf("stored session was modified through a returned copy")
	}

	count, _ := store.Count(ctx)
	if count != 1 {
		t.Fatalf("Count = %d, want 1", count)
	}
}

func TestStore_CreateConflict(t *testing.T) {
	store := New()
	ctx := context.Background()
	s := newTestSession(t, "", time.Now())

	if err := store.Create(ctx, s); err != nil {
		t.Fatalf("Create: %v", err)
	}
	dup := s.Clone()
	dup.ResID, _ = domain.GenerateResID()
	if err := store.Create(ctx, dup); !errors.Is(err, domain.ErrSessionConflict) {
		t.Fatalf("Create duplicate err = %v, want %v", err, domain.ErrSessionConflict)
	}
}

func TestStore_CreateInvalid(t *testing.T) {
	store := New()
	s := newTestSession(t, "", time.Now())
	s.TokenHash = "nope"

	if err := store.Create(context.Background(), s); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("Create err = %v, want %v", err, domain.ErrInvalidArgument)
	}
}

func TestStore_ConcurrentCreate(t *testing.T) {
	store := New()
	ctx := context.Background()
	s := newTestSession(t, "", time.Now())

	const n = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.Create(ctx, s.Clone()); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("winners = %d, want 1", wins)
	}
}

func TestStore_UpdateVersion(t *testing.T) {
	store := New()
	ctx := context.Background()
	s := newTestSession(t, "", time.Now())
	if err := store.Create(ctx, s); err != nil {
		t.Fatalf("Create: %v", err)
	}

	updated := s.Clone()
	updated.Touch(time.Now().Add(time.Minute))
	if err := store.Update(ctx, updated, s.Version); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Version != s.Version+1 {
		t.Fatalf("caller Version = %d, want %d", updated.Version, s.Version+1)
	}

	got, _ := store.Get(ctx, s.TokenHash)
	if got.Version != s.Version+1 || got.LastActive != updated.LastActive {
		t.Fatalf("stored = %+v, want version %d", got, s.Version+1)
	}

	// stale writer loses
	stale := s.Clone()
	if err := store.Update(ctx, stale, s.Version); !errors.Is(err, domain.ErrSessionVersionConflict) {
		t.Fatalf("stale Update err = %v, want %v", err, domain.ErrSessionVersionConflict)
	}
}

func TestStore_UpdateNotFound(t *testing.T) {
	store := New()
	s := newTestSession(t, "", time.Now())

	if err := store.Update(context.Background(), s, 1); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("Update err = %v, want %v", err, domain.ErrSessionNotFound)
	}
}

func TestStore_UpdateCannotMoveResID(t *testing.T) {
	store := New()
	ctx := context.Background()
	s := newTestSession(t, "", time.Now())
	if err := store.Create(ctx, s); err != nil {
		t.Fatalf("Create: %v", err)
	}

	moved := s.Clone()
	moved.ResID, _ = domain.GenerateResID()
	if err := store.Update(ctx, moved, s.Version); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("Update err = %v, want %v", err, domain.ErrInvalidArgument)
	}
}

func TestStore_DeleteIdle(t *testing.T) {
	store := New()
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)
	s := newTestSession(t, "", base)
	if err := store.Create(ctx, s); err != nil {
		t.Fatalf("Create: %v", err)
	}
	cutoff := base.Add(time.Minute)

	tests := []struct {
		name    string
		version uint64
		cutoff  time.Time
		want    bool
	}{
		{"stale version", s.Version + 1, cutoff, false},
		{"not idle", s.Version, base, false},
		{"idle", s.Version, cutoff, true},
		{"already gone", s.Version, cutoff, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.DeleteIdle(ctx, s.TokenHash, tt.version, tt.cutoff)
			if err != nil {
				t.Fatalf("DeleteIdle: %v", err)
			}
			if got != tt.want {
				t.Fatalf("DeleteIdle = %v, want %v", got, tt.want)
			}
		})
	}

	sessions, _ := store.ListByResID(ctx, s.ResID)
	if len(sessions) != 0 {
		t.Fatalf("ListByResID after delete = %d sessions, want 0", len(sessions))
	}
}

func TestStore_Delete(t *testing.T) {
	store := New()
	ctx := context.Background()
	s := newTestSession(t, "", time.Now())
	if err := store.Create(ctx, s); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := store.Delete(ctx, s.TokenHash); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(ctx, s.TokenHash); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("second Delete err = %v, want %v", err, domain.ErrSessionNotFound)
	}
	if _, err := store.Get(ctx, s.TokenHash); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("Get after Delete err = %v", err)
	}
}

func TestStore_ListIdleBefore(t *testing.T) {
	store := New()
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)

	var created []*domain.Session
	for i := 0; i < 3; i++ {
		s := newTestSession(t, "", base.Add(time.Duration(2-i)*time.Minute))
		if err := store.Create(ctx, s); err != nil {
			t.Fatalf("Create: %v", err)
		}
		created = append(created, s)
	}

	idle, err := store.ListIdleBefore(ctx, base.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("ListIdleBefore: %v", err)
	}
	if len(idle) != 2 {
		t.Fatalf("len(idle) = %d, want 2", len(idle))
	}
	// oldest first
	if idle[0].TokenHash != created[2].TokenHash || idle[1].TokenHash != created[1].TokenHash {
		t.Fatalf("idle order = %s, %s", idle[0].TokenHash, idle[1].TokenHash)
	}
}

func TestStore_ListByResID(t *testing.T) {
	store := New()
	ctx := context.Background()
	resID, _ := domain.GenerateResID()

	a := newTestSession(t, resID, time.Now())
	b := newTestSession(t, resID, time.Now())
	other := newTestSession(t, "", time.Now())
	for _, s := range []*domain.Session{a, b, other} {
		if err := store.Create(ctx, s); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	sessions, err := store.ListByResID(ctx, resID)
	if err != nil {
		t.Fatalf("ListByResID: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("len(sessions) = %d, want 2", len(sessions))
	}
	for _, s := range sessions {
		if s.ResID != resID {
			t.Fatalf("session %s bound to %s", s.TokenHash, s.ResID)
		}
	}
}

func TestStore_Scan(t *testing.T) {
	store := New(WithShardCount(4))
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := store.Create(ctx, newTestSession(t, "", time.Now())); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	seen := 0
	store.Scan(func(*domain.Session) bool {
		seen++
		return true
	})
	if seen != 5 {
		t.Fatalf("Scan visited %d, want 5", seen)
	}

	seen = 0
	store.Scan(func(*domain.Session) bool {
		seen++
		return false
	})
	if seen != 1 {
		t.Fatalf("Scan with early stop visited %d, want 1", seen)
	}
}

func TestNamespaceStore(t *testing.T) {
	store := NewNamespaceStore()
	ctx := context.Background()
	resID, _ := domain.GenerateResID()
	ns := domain.NewNamespace(resID, time.Now())

	if err := store.Create(ctx, ns); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Create(ctx, ns); !errors.Is(err, domain.ErrNamespaceConflict) {
		t.Fatalf("Create duplicate err = %v", err)
	}
	if err := store.Create(ctx, domain.NewNamespace("bad", time.Now())); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("Create malformed err = %v", err)
	}

	updated := ns.Clone()
	updated.Add("users")
	if err := store.Update(ctx, updated, ns.Version); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := store.Update(ctx, updated, ns.Version); !errors.Is(err, domain.ErrNamespaceVersionConflict) {
		t.Fatalf("stale Update err = %v", err)
	}

	got, err := store.Get(ctx, resID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.Has("users") || got.Version != ns.Version+1 {
		t.Fatalf("Get = %+v", got)
	}

	if store.Count() != 1 {
		t.Fatalf("Count = %d, want 1", store.Count())
	}
	if err := store.Delete(ctx, resID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(ctx, resID); !errors.Is(err, domain.ErrNamespaceNotFound) {
		t.Fatalf("second Delete err = %v", err)
	}
	if err := store.Update(ctx, updated, updated.Version); !errors.Is(err, domain.ErrNamespaceNotFound) {
		t.Fatalf("Update after Delete err = %v", err)
	}
}

func TestNamespaceStore_ListCreatedBefore(t *testing.T) {
	store := NewNamespaceStore()
	ctx := context.Background()
	now := time.Now()

	var ids []string
	for _, age := range []time.Duration{2 * time.Hour, time.Hour, 0} {
		resID, _ := domain.GenerateResID()
		if err := store.Create(ctx, domain.NewNamespace(resID, now.Add(-age))); err != nil {
			t.Fatalf("Create: %v", err)
		}
		ids = append(ids, resID)
	}

	old, err := store.ListCreatedBefore(ctx, now.Add(-30*time.Minute))
	if err != nil {
		t.Fatalf("ListCreatedBefore: %v", err)
	}
	if len(old) != 2 || old[0].ResID != ids[0] || old[1].ResID != ids[1] {
		t.Fatalf("ListCreatedBefore = %v, want the two oldest, oldest first", old)
	}
}
