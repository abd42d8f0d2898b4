// Package command provides the sandstore-cli command definitions.
//
// Commands are built with urfave/cli/v2:
//
//   - root.go: application, global flags and the CLI profile
//   - session.go: session create, resolve, keep-alive, attach and saved sessions
//   - coll.go: collection reads, writes, indexes and validation
//   - db.go: namespace level operations
//   - load.go: fixture loading
//   - system.go: probes, version and the admin status
//   - config.go: CLI profile inspection and defaults
//   - shell.go: the interactive shell
//
// Server, token and res_id come from flags, SANDSTORE_* environment
// variables or the saved session in ~/.sandstore/cli.yaml, in that order.
package command
