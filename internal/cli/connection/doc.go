// Package connection provides the sandstore-cli client for the Sandstore HTTP API.
//
//   - http.go: HTTP transport, token header and error decoding
//   - api.go: typed calls for sessions, collection operations and fixtures
//   - manager.go: the active session (server, token, res_id) of a CLI run or shell
package connection
