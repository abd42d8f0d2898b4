// Package metric provides Prometheus metrics for Sandstore.
package metric

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SessionCounter reports the number of live sessions.
type SessionCounter interface {
	Count(ctx context.Context) (int, error)
}

// Collector reports gauges computed at scrape time.
type Collector struct {
	sessions SessionCounter
	failOpen func() int64
	timeout  time.Duration
	logger   *slog.Logger

	sessionsActive *prometheus.Desc
	failOpenTotal  *prometheus.Desc
}

// NewCollector creates a collector over sessions. failOpen, when set,
// reports how many requests passed because the counter store failed.
func NewCollector(sessions SessionCounter, failOpen func() int64, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		sessions: sessions,
		failOpen: failOpen,
		timeout:  5 * time.Second,
		logger:   logger,
		sessionsActive: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "sessions", "active"),
			"Sessions currently stored",
			nil, nil),
		failOpenTotal: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "ratelimit", "fail_open_total"),
			"Requests allowed because the rate limit counter store was unavailable",
			nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.sessionsActive
	if c.failOpen != nil {
		ch <- c.failOpenTotal
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	if n, err := c.sessions.Count(ctx); err != nil {
		c.logger.Warn("session count unavailable", "error", err)
	} else {
		ch <- prometheus.MustNewConstMetric(c.sessionsActive, prometheus.GaugeValue, float64(n))
	}

	if c.failOpen != nil {
		ch <- prometheus.MustNewConstMetric(c.failOpenTotal, prometheus.CounterValue, float64(c.failOpen()))
	}
}
