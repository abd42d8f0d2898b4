// Package main provides the entry point for sandstore-server.
//
// The server gives browser clients sandboxed access to one shared document
// store:
//
//   - HTTP/HTTPS API for namespace sessions and collection operations
//   - Admin API and Prometheus metrics, loopback only by default
//   - Background sweeper reclaiming idle namespaces
//   - Hot reload of tenant limits and log level from the config file
//
// Usage:
//
//	sandstore-server [--config /etc/sandstore/server.yaml]
//	sandstore-server check-config --config /etc/sandstore/server.yaml
package main
