// Package token provides token generation and hashing utilities.
//
// Tokens are Base64 RawURL encoded random bytes drawn from crypto/rand.
// Only their digests are ever persisted: HashKeyed produces a keyed
// BLAKE2b-256 MAC so that stored digests are useless without the server
// secret, and Verify compares digests in constant time.
package token
