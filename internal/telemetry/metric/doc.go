// Package metric provides Prometheus metrics for Sandstore.
//
// This package implements metrics collection and exposition:
//
//   - prometheus.go: Prometheus registry, request metrics and HTTP handler
//   - collector.go: Scrape-time collector for live session counts
//
// Components that own their metrics (the expiry sweeper, the Badger engine)
// register them through Registry.Registerer.
//
// Metrics are exposed at /metrics in Prometheus format.
package metric
