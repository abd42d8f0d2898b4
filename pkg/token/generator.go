package token

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// DefaultLength is the default token length in bytes.
const DefaultLength = 32

// Generate returns DefaultLength random bytes, Base64 RawURL encoded.
func Generate() (string, error) {
	return GenerateWithLength(DefaultLength)
}

// GenerateWithLength returns length random bytes, Base64 RawURL encoded.
func GenerateWithLength(length int) (string, error) {
	buf, err := Bytes(length)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Bytes returns length random bytes.
func Bytes(length int) ([]byte, error) {
	if length <= 0 {
		return nil, fmt.Errorf("token: invalid length %d", length)
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("token: read random: %w", err)
	}
	return buf, nil
}

// GenerateID returns prefix followed by length random bytes, Base64 RawURL
// encoded. Used for request and trace identifiers.
func GenerateID(prefix string, length int) (string, error) {
	body, err := GenerateWithLength(length)
	if err != nil {
		return "", err
	}
	return prefix + body, nil
}
