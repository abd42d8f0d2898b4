// Package domain defines the core domain models for Sandstore.
//
// Domain models are pure value objects and entities without any
// IO dependencies or framework coupling. This package contains:
//
//   - Session: binds a client token to the res_id it may access
//   - Namespace: the logical collections owned by one res_id
//   - Token: session token generation and keyed hashing
//   - Document, Mutation, IndexSpec: backend request shapes
//   - Errors: domain-specific error definitions
//
// Session and Namespace carry a version number for optimistic locking.
package domain
