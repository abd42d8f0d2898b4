// Package config provides server configuration for Sandstore.
//
// This package defines the server configuration structure and validation:
//
//   - spec.go: ServerConfig struct definition
//   - default.go: Default configuration values and env aliases
//   - verify.go: Business validation (value ranges, TLS pairs, data dir)
//   - sanitize.go: Log sanitization (hide sensitive values)
//
// Configuration is loaded via internal/infra/confloader from the YAML file,
// SANDSTORE_ environment variables and the flat alias names.
package config
