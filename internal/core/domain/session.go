package domain

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// ResIDLength is the length of a res_id (lowercase ULID).
const ResIDLength = 26

// Session binds one client token to the namespace it may access.
//
// Sessions are keyed by TokenHash. Several sessions may reference the same
// ResID when extra tokens were attached to an existing namespace.
type Session struct {
	// ResID is the namespace this session is allowed to access.
	ResID string `json:"res_id"`

	// TokenHash is the keyed hash of the session token (format: ssth_...).
	TokenHash string `json:"token_hash"`

	// CreatedAt is the session creation timestamp (Unix milliseconds).
	CreatedAt int64 `json:"created_at"`

	// LastActive is the last activity timestamp (Unix milliseconds).
	LastActive int64 `json:"last_active"`

	// Version is the optimistic lock version number.
	Version uint64 `json:"version"`
}

// NewSession creates a session for tokenHash bound to resID.
func NewSession(resID, tokenHash string, now time.Time) *Session {
	ms := now.UnixMilli()
	return &Session{
		ResID:      resID,
		TokenHash:  tokenHash,
		CreatedAt:  ms,
		LastActive: ms,
		Version:    1,
	}
}

// GenerateResID allocates a new unguessable namespace identifier.
// Format: lowercase ULID, 26 characters, no dots.
func GenerateResID() (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return "", ErrInternalServer.WithCause(err)
	}
	return strings.ToLower(id.String()), nil
}

// IsValidResID reports whether id looks like a res_id issued by GenerateResID.
func IsValidResID(id string) bool {
	if len(id) != ResIDLength || id != strings.ToLower(id) {
		return false
	}
	_, err := ulid.ParseStrict(strings.ToUpper(id))
	return err == nil
}

// Touch records activity at now.
func (s *Session) Touch(now time.Time) {
	s.LastActive = now.UnixMilli()
}

// IdleBefore reports whether the session's last activity is older than cutoff.
func (s *Session) IdleBefore(cutoff time.Time) bool {
	return s.LastActive < cutoff.UnixMilli()
}

// IncrVersion increments the version number for optimistic locking.
func (s *Session) IncrVersion() {
	s.Version++
}

// GetVersion returns the current version for optimistic locking.
// Implements the Versioned interface from pkg/cmap.
func (s *Session) GetVersion() uint64 {
	return s.Version
}

// SetVersion sets the version number for optimistic locking.
// Implements the Versioned interface from pkg/cmap.
func (s *Session) SetVersion(v uint64) {
	s.Version = v
}

// Validate checks the session's identifying fields.
func (s *Session) Validate() error {
	var violations []string

	if !IsValidResID(s.ResID) {
		violations = append(violations, "res_id is malformed")
	}
	if !ValidateTokenHashFormat(s.TokenHash) {
		violations = append(violations, "token_hash is malformed")
	}
	if s.LastActive < s.CreatedAt {
		violations = append(violations, "last_active precedes created_at")
	}

	if len(violations) > 0 {
		return ErrInvalidArgument.WithDetails(strings.Join(violations, "; "))
	}
	return nil
}

// Clone creates a copy of the session.
func (s *Session) Clone() *Session {
	clone := *s
	return &clone
}

// CreatedAtTime returns CreatedAt as time.Time.
func (s *Session) CreatedAtTime() time.Time {
	return time.UnixMilli(s.CreatedAt)
}

// LastActiveTime returns LastActive as time.Time.
func (s *Session) LastActiveTime() time.Time {
	return time.UnixMilli(s.LastActive)
}
