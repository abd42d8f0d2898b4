// Package main provides the entry point for sandstore-cli.
//
// The CLI gives command-line access to a Sandstore server:
//
//   - Sessions (create, resolve, keep-alive, attach, saved profiles)
//   - Collection operations (find, count, aggregate, insert, update, remove, indexes)
//   - Namespace operations and fixture loading
//   - Grading a collection against expected documents
//   - Server probes and status
//
// Usage:
//
//	sandstore-cli session create
//	sandstore-cli coll insert users '{"name":"ada"}'
//	sandstore-cli -o json coll find --query '{"name":"ada"}' users
//	sandstore-cli shell
//
// The CLI supports both single-command mode and an interactive shell.
package main
