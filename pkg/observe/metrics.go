// Package observe provides Prometheus metrics and OpenTelemetry
// tracing for the reconciliation server.
package observe

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures metric registration.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "gistsync").
	Namespace string

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer.
	Registry prometheus.Registerer
}

// MetricsOption configures metric registration.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

// Metrics holds the Prometheus metrics for the server.
type Metrics struct {
	MessagesTotal  *prometheus.CounterVec // by type, direction
	ProtocolErrors *prometheus.CounterVec // by reason
	ConflictsTotal prometheus.Counter
	SavesTotal     *prometheus.CounterVec // by status
	SaveRetries    prometheus.Counter
	SaveDuration   prometheus.Histogram
	ActiveRooms    prometheus.Gauge
	ActiveSessions prometheus.Gauge
}

var (
	globalMetrics     *Metrics
	globalMetricsOnce sync.Once
)

// NewMetrics registers and returns the server metrics. Call once per
// registry; use Default() for the process-wide instance.
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := MetricsConfig{
		Namespace: "gistsync",
		Registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&config)
	}

	factory := promauto.With(config.Registry)

	return &Metrics{
		MessagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "messages_total",
			Help:      "Total protocol messages processed",
		}, []string{"type", "direction"}),

		ProtocolErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "protocol_errors_total",
			Help:      "Messages dropped for protocol violations",
		}, []string{"reason"}),

		ConflictsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "conflicts_total",
			Help:      "Total divergence conflicts surfaced to clients",
		}),

		SavesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "saves_total",
			Help:      "Canonical markdown save attempts by outcome",
		}, []string{"status"}),

		SaveRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "save_retries_total",
			Help:      "Total save retries after transient failures",
		}),

		SaveDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Name:      "save_duration_seconds",
			Help:      "Canonical markdown save duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		ActiveRooms: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Name:      "active_rooms",
			Help:      "Number of live document rooms",
		}),

		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Name:      "active_sessions",
			Help:      "Number of connected client sessions",
		}),
	}
}

// Default returns the process-wide metrics instance, registering it
// on first use.
func Default() *Metrics {
	globalMetricsOnce.Do(func() {
		globalMetrics = NewMetrics()
	})
	return globalMetrics
}
