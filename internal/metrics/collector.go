package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/rgledhill/netwatch/internal/connection"
)

// StatsSource is anything that exposes connection statistics. The channel
// adapters satisfy it.
type StatsSource interface {
	Name() string
	State() connection.State
	Stats() connection.Stats
}

// ConnectionCollector exports per-channel connection stats. Stats are
// snapshots, so metrics are built at scrape time instead of mutating
// counters on every message.
type ConnectionCollector struct {
	sources []StatsSource

	up         *prometheus.Desc
	received   *prometheus.Desc
	sent       *prometheus.Desc
	reconnects *prometheus.Desc
	errors     *prometheus.Desc
	uptime     *prometheus.Desc
}

// NewConnectionCollector creates a collector over the given sources.
func NewConnectionCollector(sources ...StatsSource) *ConnectionCollector {
	labels := []string{"channel"}
	return &ConnectionCollector{
		sources: sources,
		up: prometheus.NewDesc(
			"netwatch_connection_up",
			"Whether the channel connection is established (1=connected)",
			labels, nil,
		),
		received: prometheus.NewDesc(
			"netwatch_messages_received_total",
			"Total messages received on the channel",
			labels, nil,
		),
		sent: prometheus.NewDesc(
			"netwatch_messages_sent_total",
			"Total messages sent on the channel",
			labels, nil,
		),
		reconnects: prometheus.NewDesc(
			"netwatch_reconnect_attempts_total",
			"Total reconnect attempts on the channel",
			labels, nil,
		),
		errors: prometheus.NewDesc(
			"netwatch_connection_errors",
			"Number of retained error records for the channel",
			labels, nil,
		),
		uptime: prometheus.NewDesc(
			"netwatch_connection_uptime_seconds",
			"Seconds since the current connection was established",
			labels, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *ConnectionCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.up
	ch <- c.received
	ch <- c.sent
	ch <- c.reconnects
	ch <- c.errors
	ch <- c.uptime
}

// Collect implements prometheus.Collector.
func (c *ConnectionCollector) Collect(ch chan<- prometheus.Metric) {
	for _, src := range c.sources {
		name := src.Name()
		stats := src.Stats()

		up := 0.0
		if src.State() == connection.StateConnected {
			up = 1.0
		}
		ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, up, name)
		ch <- prometheus.MustNewConstMetric(c.received, prometheus.CounterValue, float64(stats.MessagesReceived), name)
		ch <- prometheus.MustNewConstMetric(c.sent, prometheus.CounterValue, float64(stats.MessagesSent), name)
		ch <- prometheus.MustNewConstMetric(c.reconnects, prometheus.CounterValue, float64(stats.ReconnectAttempts), name)
		ch <- prometheus.MustNewConstMetric(c.errors, prometheus.GaugeValue, float64(len(stats.Errors)), name)

		uptime := 0.0
		if up == 1.0 && !stats.UptimeStartedAt.IsZero() {
			uptime = time.Since(stats.UptimeStartedAt).Seconds()
		}
		ch <- prometheus.MustNewConstMetric(c.uptime, prometheus.GaugeValue, uptime, name)
	}
}

// NewRegistry creates a Prometheus registry with runtime collectors and
// the connection collector registered.
func NewRegistry(sources ...StatsSource) *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		NewConnectionCollector(sources...),
	)
	return registry
}
