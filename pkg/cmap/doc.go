// Package cmap provides a concurrent map sharded by key hash.
//
// Keys are routed to shards with murmur3, each shard guarded by its own
// RWMutex. Besides plain Get/Set the map offers the atomic primitives the
// storage layer builds on:
//
//   - SetIfAbsent / GetOrSet for find-or-create
//   - Compute for read-modify-write under the shard lock
//   - CompareAndSwap / CompareAndDelete for version-checked writes
//   - DeleteIf for conditional removal
//
// Usage:
//
//	m := cmap.New[string, *domain.Session]()
//	if !m.SetIfAbsent(hash, s) { ... }
//	ok := cmap.CompareAndSwap(m, hash, s.Version, updated)
package cmap
