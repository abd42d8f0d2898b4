package token

import (
	"crypto/subtle"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Hash computes the BLAKE2b-256 digest of a token, hex encoded.
func Hash(token string) string {
	return HashBytes([]byte(token))
}

// HashBytes computes the BLAKE2b-256 digest of data, hex encoded.
func HashBytes(data []byte) string {
	h := blake2b.Sum256(data)
	return hex.EncodeToString(h[:])
}

// HashKeyed computes a keyed BLAKE2b-256 MAC of token, hex encoded.
// Keys longer than 64 bytes are first reduced with BLAKE2b-512.
// An empty key degrades to Hash.
func HashKeyed(key []byte, token string) string {
	if len(key) == 0 {
		return Hash(token)
	}
	return hex.EncodeToString(mac(key, []byte(token)))
}

// Tag returns the first n bytes of the keyed BLAKE2b-256 MAC of data, or
// nil when key is empty. n is capped at 32.
func Tag(key, data []byte, n int) []byte {
	if len(key) == 0 || n <= 0 {
		return nil
	}
	sum := mac(key, data)
	if n > len(sum) {
		n = len(sum)
	}
	return sum[:n]
}

func mac(key, data []byte) []byte {
	if len(key) > blake2b.Size {
		sum := blake2b.Sum512(key)
		key = sum[:]
	}
	h, err := blake2b.New256(key)
	if err != nil {
		// Unreachable: key length is bounded above.
		panic(err)
	}
	h.Write(data)
	return h.Sum(nil)
}

// Verify verifies a token against an expected keyed hash.
//
// Uses constant-time comparison to prevent timing attacks.
func Verify(key []byte, token, expectedHash string) bool {
	actualHash := HashKeyed(key, token)
	return subtle.ConstantTimeCompare([]byte(actualHash), []byte(expectedHash)) == 1
}
