// Package query evaluates document-store requests over JSON documents.
//
// Documents are compact JSON objects held as []byte. Reads go through gjson
// and writes through sjson, so documents are never decoded into Go maps.
// The package covers the request surface the storage backends expose:
//
//   - Filter: equality, comparison, set, existence, array and logical operators
//   - Projection: inclusion or exclusion of dotted paths
//   - Sort: multi-key ordering with a fixed cross-type order
//   - Update: replacement or $set/$unset/$inc/$min/$max/$push/$addToSet/$pull
//   - Aggregate: $match, $sort, $skip, $limit, $project, $count, $unwind, $group
//
// Invalid requests fail with *Error, whose message is meant to be shown to
// clients verbatim.
package query
