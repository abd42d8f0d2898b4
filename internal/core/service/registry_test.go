package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yndnr/sandstore-go/internal/core/domain"
)

func TestSessionRegistry_ResolveOrCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("no token allocates", func(t *testing.T) {
		env := newTestEnv()
		resp, err := env.registry.ResolveOrCreate(ctx, &ResolveRequest{})
		require.NoError(t, err)

		assert.True(t, resp.IsNew)
		assert.True(t, domain.ValidateTokenFormat(resp.Token))
		assert.True(t, domain.IsValidResID(resp.Session.ResID))
		assert.Equal(t, env.clock.Now().UnixMilli(), resp.Session.CreatedAt)
		assert.Equal(t, resp.Session.CreatedAt, resp.Session.LastActive)

		_, err = env.namespaces.Get(ctx, resp.Session.ResID)
		assert.NoError(t, err, "namespace record should exist")
	})

	t.Run("live token resumes", func(t *testing.T) {
		env := newTestEnv()
		first, err := env.registry.ResolveOrCreate(ctx, &ResolveRequest{})
		require.NoError(t, err)

		env.clock.Advance(time.Minute)
		again, err := env.registry.ResolveOrCreate(ctx, &ResolveRequest{Token: first.Token})
		require.NoError(t, err)

		assert.False(t, again.IsNew)
		assert.Equal(t, first.Session.ResID, again.Session.ResID)
		assert.Equal(t, first.Token, again.Token)
		assert.Equal(t, env.clock.Now().UnixMilli(), again.Session.LastActive)
	})

	t.Run("malformed token is replaced", func(t *testing.T) {
		env := newTestEnv()
		resp, err := env.registry.ResolveOrCreate(ctx, &ResolveRequest{Token: "invalid session"})
		require.NoError(t, err)
		assert.True(t, resp.IsNew)
		assert.NotEqual(t, "invalid session", resp.Token)
	})

	t.Run("unknown token issued by this server is rebound", func(t *testing.T) {
		env := newTestEnv()
		plain, _, err := domain.NewTokenHasher("test-secret").Generate()
		require.NoError(t, err)

		resp, err := env.registry.ResolveOrCreate(ctx, &ResolveRequest{Token: plain})
		require.NoError(t, err)
		assert.True(t, resp.IsNew)
		assert.Equal(t, plain, resp.Token)
	})

	t.Run("made-up well-formed token is replaced", func(t *testing.T) {
		env := newTestEnv()
		chosen := "sstk_" + strings.Repeat("A", domain.TokenBodyLength)
		require.True(t, domain.ValidateTokenFormat(chosen))

		resp, err := env.registry.ResolveOrCreate(ctx, &ResolveRequest{Token: chosen})
		require.NoError(t, err)
		assert.True(t, resp.IsNew)
		assert.NotEqual(t, chosen, resp.Token)
		assert.True(t, domain.ValidateTokenFormat(resp.Token))

		assert.ErrorIs(t, env.registry.KeepAlive(ctx, chosen, resp.Session.ResID), domain.ErrAuthentication)
		assert.NoError(t, env.registry.KeepAlive(ctx, resp.Token, resp.Session.ResID))
	})

	t.Run("token of another deployment is replaced", func(t *testing.T) {
		env := newTestEnv()
		foreign, _, err := domain.NewTokenHasher("other-secret").Generate()
		require.NoError(t, err)

		resp, err := env.registry.ResolveOrCreate(ctx, &ResolveRequest{Token: foreign})
		require.NoError(t, err)
		assert.NotEqual(t, foreign, resp.Token)
	})

	t.Run("two clients get distinct res_ids", func(t *testing.T) {
		env := newTestEnv()
		_, a := env.newSession(ctx)
		_, b := env.newSession(ctx)
		assert.NotEqual(t, a, b)
	})

	t.Run("storage failure", func(t *testing.T) {
		env := newTestEnv()
		plain, _, _ := domain.NewTokenHasher("x").Generate()
		env.sessions.getErr = errBoom

		_, err := env.registry.ResolveOrCreate(ctx, &ResolveRequest{Token: plain})
		assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
	})
}

func TestSessionRegistry_ResolveOrCreate_Concurrent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	plain, _, err := domain.NewTokenHasher("test-secret").Generate()
	require.NoError(t, err)

	const n = 16
	resIDs := make([]string, n)
	var newCount int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := env.registry.ResolveOrCreate(ctx, &ResolveRequest{Token: plain})
			if err != nil {
				t.Errorf("ResolveOrCreate() error = %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			resIDs[i] = resp.Session.ResID
			if resp.IsNew {
				newCount++
			}
		}(i)
	}
	wg.Wait()

	for _, id := range resIDs {
		assert.Equal(t, resIDs[0], id)
	}
	assert.Equal(t, 1, newCount)
	assert.Len(t, env.namespaces.namespaces, 1, "losers must not leave orphan namespaces")
}

func TestSessionRegistry_Validate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	token, resID := env.newSession(ctx)
	otherToken, otherResID := env.newSession(ctx)

	tests := []struct {
		name    string
		token   string
		resID   string
		wantErr error
	}{
		{"valid", token, resID, nil},
		{"absent token", "", resID, domain.ErrAuthentication},
		{"malformed token", "invalid session", resID, domain.ErrAuthentication},
		{"foreign res_id", token, otherResID, domain.ErrAuthorization},
		{"other valid", otherToken, otherResID, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session, err := env.registry.Validate(ctx, tt.token, tt.resID)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.resID, session.ResID)
		})
	}

	t.Run("unknown token", func(t *testing.T) {
		plain, _, _ := domain.NewTokenHasher("x").Generate()
		_, err := env.registry.Validate(ctx, plain, resID)
		assert.ErrorIs(t, err, domain.ErrAuthentication)
	})
}

func TestSessionRegistry_KeepAlive(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	token, resID := env.newSession(ctx)
	hash := env.registry.HashToken(token)

	before, err := env.sessions.Get(ctx, hash)
	require.NoError(t, err)

	env.clock.Advance(10 * time.Minute)
	require.NoError(t, env.registry.KeepAlive(ctx, token, resID))

	after, err := env.sessions.Get(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, env.clock.Now().UnixMilli(), after.LastActive)
	assert.Equal(t, before.CreatedAt, after.CreatedAt)
	assert.Equal(t, before.ResID, after.ResID)
	assert.Greater(t, after.Version, before.Version)

	// idempotent
	require.NoError(t, env.registry.KeepAlive(ctx, token, resID))
	again, _ := env.sessions.Get(ctx, hash)
	assert.Equal(t, after.LastActive, again.LastActive)

	assert.ErrorIs(t, env.registry.KeepAlive(ctx, "", resID), domain.ErrAuthentication)
	_, otherResID := env.newSession(ctx)
	assert.ErrorIs(t, env.registry.KeepAlive(ctx, token, otherResID), domain.ErrAuthorization)
}

func TestSessionRegistry_AttachAndLookup(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	token, resID := env.newSession(ctx)

	resp, err := env.registry.Attach(ctx, token, resID)
	require.NoError(t, err)
	assert.NotEqual(t, token, resp.Token)
	assert.Equal(t, resID, resp.Session.ResID)

	session, err := env.registry.Validate(ctx, resp.Token, resID)
	require.NoError(t, err)
	assert.Equal(t, resID, session.ResID)

	sessions, err := env.registry.Lookup(ctx, resID)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)

	n, err := env.registry.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = env.registry.Attach(ctx, "", resID)
	assert.ErrorIs(t, err, domain.ErrAuthentication)

	_, err = env.registry.Lookup(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
