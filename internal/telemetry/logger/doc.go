// Package logger provides structured logging for Sandstore.
//
// This package wraps log/slog for structured logging:
//
//   - logger.go: Logger interface, handler setup and runtime level
//   - context.go: Context-aware logging with request ID and res_id
//   - redact.go: Sensitive data redaction
//
// Session tokens (sstk_ prefixed values) never reach the output in clear,
// neither as attribute values nor embedded in longer strings.
package logger
