package service

import (
	"context"
	"errors"
	"time"

	"github.com/yndnr/sandstore-go/internal/core/domain"
)

// maxTouchRetries bounds the conditional last-activity update.
const maxTouchRetries = 2

// SessionRegistry binds client tokens to res_ids.
//
// Every session is keyed by the keyed hash of its token; plaintext tokens are
// never stored.
type SessionRegistry struct {
	sessions   SessionRepository
	namespaces NamespaceRepository
	hasher     *domain.TokenHasher
	now        func() time.Time
}

// RegistryOption configures a SessionRegistry.
type RegistryOption func(*SessionRegistry)

// WithRegistryClock sets the time source.
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *SessionRegistry) {
		r.now = now
	}
}

// NewSessionRegistry creates a new SessionRegistry.
func NewSessionRegistry(sessions SessionRepository, namespaces NamespaceRepository, hasher *domain.TokenHasher, opts ...RegistryOption) *SessionRegistry {
	r := &SessionRegistry{
		sessions:   sessions,
		namespaces: namespaces,
		hasher:     hasher,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// HashToken returns the storage key of a plaintext token.
func (r *SessionRegistry) HashToken(token string) string {
	return r.hasher.Hash(token)
}

// ============================================================================
// Resolve Operation
// ============================================================================

// ResolveRequest contains parameters for create-or-resume.
type ResolveRequest struct {
	Token string // Optional, the token the client presented
}

// ResolveResponse contains the result of create-or-resume.
type ResolveResponse struct {
	Session *domain.Session
	Token   string // Plaintext token the client must keep presenting
	IsNew   bool   // True when a new res_id was allocated
}

// ResolveOrCreate returns the session named by the presented token, or
// allocates a new res_id and binds a token to it.
//
// An unknown token is bound again only if this server issued it, for
// instance after its session was swept. Any other token is replaced by a
// fresh one, so a client cannot choose the token another client ends up
// using.
func (r *SessionRegistry) ResolveOrCreate(ctx context.Context, req *ResolveRequest) (*ResolveResponse, error) {
	// 1. Resume a live session
	plain := req.Token
	var hash string
	if plain != "" && domain.ValidateTokenFormat(plain) {
		hash = r.hasher.Hash(plain)
		session, err := r.sessions.Get(ctx, hash)
		switch {
		case err == nil:
			if touched, err := r.touch(ctx, session); err == nil {
				session = touched
			}
			return &ResolveResponse{Session: session, Token: plain, IsNew: false}, nil
		case !errors.Is(err, domain.ErrSessionNotFound):
			return nil, storageErr(err)
		}
	}

	// 2. Absent, malformed or foreign token: issue a fresh one
	if hash == "" || !r.hasher.Issued(plain) {
		var err error
		plain, hash, err = r.hasher.Generate()
		if err != nil {
			return nil, domain.ErrInternalServer.WithCause(err)
		}
	}

	// 3. Allocate the namespace
	now := r.now()
	resID, err := domain.GenerateResID()
	if err != nil {
		return nil, domain.ErrInternalServer.WithCause(err)
	}
	if err := r.namespaces.Create(ctx, domain.NewNamespace(resID, now)); err != nil {
		return nil, storageErr(err)
	}

	// 4. Bind the token; a concurrent resolver of the same token may win
	session := domain.NewSession(resID, hash, now)
	if err := r.sessions.Create(ctx, session); err != nil {
		_ = r.namespaces.Delete(ctx, resID)
		if !errors.Is(err, domain.ErrSessionConflict) {
			return nil, storageErr(err)
		}
		winner, err := r.sessions.Get(ctx, hash)
		if err != nil {
			return nil, storageErr(err)
		}
		return &ResolveResponse{Session: winner, Token: plain, IsNew: false}, nil
	}

	return &ResolveResponse{Session: session, Token: plain, IsNew: true}, nil
}

// ============================================================================
// Validation Operations
// ============================================================================

// Validate checks that token is live and bound to resID, and records the
// activity. Returns ErrAuthentication for an absent or unknown token and
// ErrAuthorization for a token bound to another res_id.
func (r *SessionRegistry) Validate(ctx context.Context, token, resID string) (*domain.Session, error) {
	// 1. Resolve the token
	if token == "" || !domain.ValidateTokenFormat(token) {
		return nil, domain.ErrAuthentication
	}
	session, err := r.sessions.Get(ctx, r.hasher.Hash(token))
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, domain.ErrAuthentication
		}
		return nil, storageErr(err)
	}

	// 2. Check the binding
	if session.ResID != resID {
		return nil, domain.ErrAuthorization
	}

	// 3. Record activity
	touched, err := r.touch(ctx, session)
	if err != nil {
		return nil, err
	}
	return touched, nil
}

// KeepAlive records activity on the session without any other effect.
func (r *SessionRegistry) KeepAlive(ctx context.Context, token, resID string) error {
	_, err := r.Validate(ctx, token, resID)
	return err
}

// touch sets LastActive to now with a version-checked update.
// A session swept between read and write is reported as ErrAuthentication.
func (r *SessionRegistry) touch(ctx context.Context, session *domain.Session) (*domain.Session, error) {
	current := session
	for attempt := 0; ; attempt++ {
		updated := current.Clone()
		updated.Touch(r.now())
		updated.IncrVersion()

		err := r.sessions.Update(ctx, updated, current.Version)
		switch {
		case err == nil:
			return updated, nil
		case errors.Is(err, domain.ErrSessionNotFound):
			return nil, domain.ErrAuthentication
		case !errors.Is(err, domain.ErrSessionVersionConflict):
			return nil, storageErr(err)
		}

		// Someone else touched it concurrently
		if attempt+1 >= maxTouchRetries {
			return current, nil
		}
		current, err = r.sessions.Get(ctx, session.TokenHash)
		if err != nil {
			if errors.Is(err, domain.ErrSessionNotFound) {
				return nil, domain.ErrAuthentication
			}
			return nil, storageErr(err)
		}
	}
}

// ============================================================================
// Attach and Lookup Operations
// ============================================================================

// AttachResponse contains the result of attaching a token.
type AttachResponse struct {
	Session *domain.Session
	Token   string
}

// Attach issues an additional token bound to resID. The caller must hold a
// valid token for resID.
func (r *SessionRegistry) Attach(ctx context.Context, token, resID string) (*AttachResponse, error) {
	// 1. Authorize the caller
	if _, err := r.Validate(ctx, token, resID); err != nil {
		return nil, err
	}

	// 2. Issue and bind the new token
	plain, hash, err := r.hasher.Generate()
	if err != nil {
		return nil, domain.ErrInternalServer.WithCause(err)
	}
	session := domain.NewSession(resID, hash, r.now())
	if err := r.sessions.Create(ctx, session); err != nil {
		return nil, storageErr(err)
	}

	return &AttachResponse{Session: session, Token: plain}, nil
}

// Lookup lists the sessions bound to resID.
func (r *SessionRegistry) Lookup(ctx context.Context, resID string) ([]*domain.Session, error) {
	if !domain.IsValidResID(resID) {
		return nil, domain.ErrInvalidArgument.WithDetails("res_id is malformed")
	}
	sessions, err := r.sessions.ListByResID(ctx, resID)
	if err != nil {
		return nil, storageErr(err)
	}
	return sessions, nil
}

// Count returns the number of live sessions.
func (r *SessionRegistry) Count(ctx context.Context) (int, error) {
	n, err := r.sessions.Count(ctx)
	if err != nil {
		return 0, storageErr(err)
	}
	return n, nil
}
