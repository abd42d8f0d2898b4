// Package config persists the sandstore-cli profile file.
//
// The file (~/.sandstore/cli.yaml) holds default output settings and named
// sessions. A session records the server, the token and the res_id it is
// bound to, so later commands and the shell can reuse it. The file carries
// tokens and is written with mode 0600.
package config
