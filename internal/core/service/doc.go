// Package service provides the domain services of Sandstore.
//
// Services implement business logic on top of domain models and define the
// storage interfaces they depend on, so storage can be swapped or faked.
//
// This package contains:
//
//   - SessionRegistry: token to res_id binding, keep-alive and attach
//   - NamespaceMapper: logical to internal collection names, listings
//   - QuotaEnforcer: per-tenant storage budget with plan-then-commit
//   - RateLimiter: fixed-window request quota per session
//   - ExpirySweeper: background reclamation of idle sessions and their data
//   - DataService: the gated collection operations
//   - Validator and FixtureLoader: read-only checks and data seeding
//
// Services are safe for concurrent use. Limits are hot-reloadable.
package service
