package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yndnr/sandstore-go/internal/core/domain"
)

func TestQuotaEnforcer_Enforce(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	_, resID := env.newSession(ctx)
	doc := domain.Document(`{"name":"Mongo"}`) // 16 bytes
	env.quota.SetBudget(3 * 16)

	require.NoError(t, env.quota.Enforce(ctx, resID, "a", domain.NewInsert(doc, doc, doc)))
	require.NoError(t, env.mapper.Register(ctx, resID, "a"))
	require.NoError(t, env.backend.Insert(ctx, domain.InternalName(resID, "a"), []domain.Document{doc, doc}))

	// exactly at the budget
	assert.NoError(t, env.quota.Enforce(ctx, resID, "b", domain.NewInsert(doc)))

	// one byte past it, in another collection of the same tenant
	err := env.quota.Enforce(ctx, resID, "b", domain.NewInsert(doc, domain.Document(`{}`)))
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)
	assert.Equal(t, "Collection size exceeded", domain.Reason(err))

	used, err := env.quota.Usage(ctx, resID)
	require.NoError(t, err)
	assert.Equal(t, int64(32), used)
}

func TestQuotaEnforcer_Updates(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	_, resID := env.newSession(ctx)
	env.quota.SetBudget(10)

	env.backend.updateDelta = -5
	assert.NoError(t, env.quota.Enforce(ctx, resID, "a", domain.NewUpdate(nil, []byte(`{}`), false, true)))

	env.backend.updateDelta = 11
	assert.ErrorIs(t, env.quota.Enforce(ctx, resID, "a", domain.NewUpdate(nil, []byte(`{}`), false, true)), domain.ErrQuotaExceeded)
}

func TestQuotaEnforcer_ConcurrentInsertsStayWithinBudget(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	token, resID := env.newSession(ctx)
	doc := `{"name":"Mongo"}` // 16 bytes
	env.quota.SetBudget(5 * 16)

	const writers = 20
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		rejected int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := env.data.Insert(ctx, &InsertRequest{
				Target:    Target{Token: token, ResID: resID, Collection: "a"},
				Documents: []byte(doc),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, domain.ErrQuotaExceeded):
				rejected++
			default:
				t.Errorf("Insert() error = %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, accepted)
	assert.Equal(t, writers-5, rejected)
	used, err := env.quota.Usage(ctx, resID)
	require.NoError(t, err)
	assert.Equal(t, int64(5*16), used)
}

func TestQuotaEnforcer_ApplySkipsRejectedWrite(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	_, resID := env.newSession(ctx)
	env.quota.SetBudget(4)

	called := false
	err := env.quota.Apply(ctx, resID, "a", domain.NewInsert(domain.Document(`{"n":1}`)), func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)
	assert.False(t, called)

	env.quota.SetBudget(0)
	err = env.quota.Apply(ctx, resID, "a", domain.NewInsert(domain.Document(`{"n":1}`)), func() error {
		called = true
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)
	assert.True(t, called)
}

func TestQuotaEnforcer_Disabled(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	_, resID := env.newSession(ctx)

	env.quota.SetBudget(0)
	big := domain.Document(`{"x":"0123456789"}`)
	assert.NoError(t, env.quota.Enforce(ctx, resID, "a", domain.NewInsert(big)))
	assert.False(t, env.backend.called("plan"), "disabled quota should not plan")
	assert.Equal(t, int64(0), env.quota.Budget())
}

func TestRateLimiter_FixedWindow(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	counters := newMockCounterStore()
	limiter := NewRateLimiter(counters, 3, time.Minute, WithRateLimiterClock(clock.Now))

	// align to the start of a window
	clock.now = clock.now.Truncate(time.Minute)

	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.Allow(ctx, "h1"), "call %d", i+1)
	}
	err := limiter.Allow(ctx, "h1")
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.Equal(t, "Rate limit exceeded", domain.Reason(err))

	// other sessions are unaffected
	assert.NoError(t, limiter.Allow(ctx, "h2"))

	// still blocked late in the window
	clock.Advance(59 * time.Second)
	assert.ErrorIs(t, limiter.Allow(ctx, "h1"), domain.ErrRateLimited)

	// next window
	clock.Advance(time.Second)
	assert.NoError(t, limiter.Allow(ctx, "h1"))
}

func TestRateLimiter_SetLimit(t *testing.T) {
	ctx := context.Background()
	limiter := NewRateLimiter(newMockCounterStore(), 1, time.Minute)

	require.NoError(t, limiter.Allow(ctx, "h"))
	assert.Error(t, limiter.Allow(ctx, "h"))

	limiter.SetLimit(0, time.Minute)
	assert.NoError(t, limiter.Allow(ctx, "h"), "quota 0 disables limiting")

	limiter.SetLimit(5, 0)
	quota, window := limiter.Limit()
	assert.Equal(t, 5, quota)
	assert.Equal(t, DefaultRateWindow, window)
}

func TestRateLimiter_FailOpen(t *testing.T) {
	ctx := context.Background()
	counters := newMockCounterStore()
	counters.err = errBoom
	limiter := NewRateLimiter(counters, 1, time.Minute)

	for i := 0; i < 3; i++ {
		assert.NoError(t, limiter.Allow(ctx, "h"))
	}
	assert.Equal(t, int64(3), limiter.FailOpenCount())
}
