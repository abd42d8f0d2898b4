// Package memory provides in-memory storage for Sandstore.
//
// It implements every service storage interface in process memory:
//
//   - Store: sessions keyed by token hash, with a res_id secondary index
//   - NamespaceStore: per-res_id collection listings
//   - DocStore: the shared document backend, one lock per collection
//   - CounterStore: expiring fixed-window counters, murmur3-sharded
//
// Thread Safety:
//
// All operations are thread-safe. Records are cloned on the way in and out,
// and version-checked updates use the compare-and-swap helpers of pkg/cmap.
package memory
