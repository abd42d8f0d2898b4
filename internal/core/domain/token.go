package domain

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/yndnr/sandstore-go/pkg/token"
)

// Token constants.
const (
	// TokenPrefix is the prefix for session tokens (sensitive, uses underscore).
	TokenPrefix = "sstk_"

	// TokenHashPrefix is the prefix for token hashes.
	TokenHashPrefix = "ssth_"

	// TokenBytesLength is the decoded body length: random bytes followed by
	// the issuer tag.
	TokenBytesLength = 32

	// TokenTagLength is the number of trailing body bytes holding the tag.
	TokenTagLength = 8

	// TokenBodyLength is the Base64 RawURL encoded length (32 bytes -> 43 chars).
	TokenBodyLength = 43

	// TokenLength is the total token length (prefix + body).
	TokenLength = 5 + TokenBodyLength // sstk_ + 43 = 48

	// TokenHashLength is the total token hash length (prefix + hex digest).
	TokenHashLength = 5 + 64 // ssth_ + 64 = 69
)

// TokenHasher derives storage keys from plaintext tokens.
// The key is a server secret so that a leaked session table cannot be
// replayed against another deployment.
type TokenHasher struct {
	key []byte
}

// NewTokenHasher creates a hasher keyed with secret.
// An empty secret yields an unkeyed hash.
func NewTokenHasher(secret string) *TokenHasher {
	return &TokenHasher{key: []byte(secret)}
}

// Generate generates a cryptographically secure session token.
// Returns the plaintext token (sstk_...) and its hash (ssth_...).
//
// The body ends with a tag keyed by the hasher secret, so the server can
// later tell its own tokens from ones a client made up. The plaintext token
// is handed to the client once and never stored.
func (h *TokenHasher) Generate() (plaintext string, hash string, err error) {
	body, err := token.Bytes(TokenBytesLength)
	if err != nil {
		return "", "", ErrInternalServer.WithCause(err)
	}
	// an unkeyed hasher leaves the tag bytes random
	random := body[:TokenBytesLength-TokenTagLength]
	copy(body[len(random):], h.tag(random))

	plaintext = TokenPrefix + base64.RawURLEncoding.EncodeToString(body)
	return plaintext, h.Hash(plaintext), nil
}

// Issued reports whether tok carries a valid tag of this hasher. An unkeyed
// hasher issues no verifiable tokens.
func (h *TokenHasher) Issued(tok string) bool {
	if len(h.key) == 0 || !ValidateTokenFormat(tok) {
		return false
	}
	body, err := base64.RawURLEncoding.DecodeString(tok[len(TokenPrefix):])
	if err != nil || len(body) != TokenBytesLength {
		return false
	}
	random, tag := body[:TokenBytesLength-TokenTagLength], body[TokenBytesLength-TokenTagLength:]
	return subtle.ConstantTimeCompare(tag, h.tag(random)) == 1
}

func (h *TokenHasher) tag(random []byte) []byte {
	return token.Tag(h.key, append([]byte("sandstore-token\x00"), random...), TokenTagLength)
}

// Hash computes the keyed hash of a token.
// Returns the hash in format: ssth_{hex} (69 characters total).
func (h *TokenHasher) Hash(plaintext string) string {
	return TokenHashPrefix + token.HashKeyed(h.key, plaintext)
}

// ValidateTokenFormat checks if a string has valid token format.
// A valid token has:
// - Prefix: sstk_
// - Body: 43 characters of Base64 RawURL encoded data
// - Total length: 48 characters
func ValidateTokenFormat(tok string) bool {
	if len(tok) != TokenLength {
		return false
	}
	if !strings.HasPrefix(tok, TokenPrefix) {
		return false
	}
	_, err := base64.RawURLEncoding.DecodeString(tok[len(TokenPrefix):])
	return err == nil
}

// ValidateTokenHashFormat checks if a string has valid token hash format.
func ValidateTokenHashFormat(hash string) bool {
	if len(hash) != TokenHashLength {
		return false
	}
	if !strings.HasPrefix(hash, TokenHashPrefix) {
		return false
	}
	_, err := hex.DecodeString(hash[len(TokenHashPrefix):])
	return err == nil
}

// MaskToken masks a token for safe logging.
// Example: sstk_ABC...xyz
func MaskToken(tok string) string {
	if len(tok) < 10 {
		return "***REDACTED***"
	}
	if strings.HasPrefix(tok, TokenPrefix) {
		body := tok[len(TokenPrefix):]
		if len(body) > 6 {
			return TokenPrefix + body[:3] + "..." + body[len(body)-3:]
		}
		return TokenPrefix + "***"
	}
	return "***REDACTED***"
}
