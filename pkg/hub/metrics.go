package hub

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the Prometheus client metrics.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "hubwire").
	Namespace string

	// Subsystem is the metrics subsystem (default: "client").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for invoke duration.
	// Default: prometheus.DefBuckets.
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer.
	Registry prometheus.Registerer
}

// Metrics holds the Prometheus instrumentation for a hub client.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	invokesTotal    *prometheus.CounterVec
	invokeDuration  prometheus.Histogram
	queueWait       prometheus.Histogram
	reconnectsTotal prometheus.Counter
	authRecoveries  prometheus.Counter
	framesDropped   prometheus.Counter
}

// NewMetrics registers and returns the client metrics.
func NewMetrics(cfg MetricsConfig) *Metrics {
	if cfg.Namespace == "" {
		cfg.Namespace = "hubwire"
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = "client"
	}
	if cfg.Buckets == nil {
		cfg.Buckets = prometheus.DefBuckets
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(cfg.Registry)

	return &Metrics{
		invokesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "invokes_total",
			Help:        "Total number of hub invocations by outcome",
			ConstLabels: cfg.ConstLabels,
		}, []string{"method", "status"}),

		invokeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "invoke_duration_seconds",
			Help:        "Hub invocation duration in seconds",
			Buckets:     cfg.Buckets,
			ConstLabels: cfg.ConstLabels,
		}),

		queueWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "queue_wait_seconds",
			Help:        "Time spent awaiting dispatch queue admission",
			Buckets:     cfg.Buckets,
			ConstLabels: cfg.ConstLabels,
		}),

		reconnectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "reconnects_total",
			Help:        "Successful automatic reconnects",
			ConstLabels: cfg.ConstLabels,
		}),

		authRecoveries: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "auth_recoveries_total",
			Help:        "Auth-error recovery cycles (forced refresh + reconnect + retry)",
			ConstLabels: cfg.ConstLabels,
		}),

		framesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "frames_dropped_total",
			Help:        "Wire frames skipped or dropped by the decoder",
			ConstLabels: cfg.ConstLabels,
		}),
	}
}

func (m *Metrics) invokeDone(method, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.invokesTotal.WithLabelValues(method, status).Inc()
	m.invokeDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) queueWaited(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.queueWait.Observe(elapsed.Seconds())
}

func (m *Metrics) reconnected() {
	if m == nil {
		return
	}
	m.reconnectsTotal.Inc()
}

func (m *Metrics) authRecovered() {
	if m == nil {
		return
	}
	m.authRecoveries.Inc()
}

func (m *Metrics) frameDropped() {
	if m == nil {
		return
	}
	m.framesDropped.Inc()
}
