// Package storage provides the storage engine for Sandstore.
//
// Open assembles the components the core services run on from a Config:
//
//   - Memory: sharded concurrent maps, lost on restart (package memory)
//   - Badger: sessions, namespace records and documents in one Badger
//     database, written in serializable transactions
//   - Counters: rate limit windows kept in process or in Redis (package
//     redis) when several servers share one limit
//
// Both document backends run queries through package query and differ only
// in how they lock and persist collections.
//
// Badger key layout:
//
//	sess/<token_hash>            session record
//	resx/<res_id>/<token_hash>   sessions by res_id
//	ns/<res_id>                  namespace record
//	coll/<internal_name>         collection header
//	doc/<internal_name>\x00<seq> document, seq is big-endian uint64
package storage
