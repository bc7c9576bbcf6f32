package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains pipeline-level metrics shared by all components
type Metrics struct {
	// Service metrics
	ServiceStatus          *prometheus.GaugeVec
	NotificationsReceived  *prometheus.CounterVec
	NotificationsProcessed *prometheus.CounterVec
	EventsPublished        *prometheus.CounterVec
	ProcessingDuration     *prometheus.HistogramVec
	ErrorsTotal            *prometheus.CounterVec

	// NATS metrics
	NATSConnected prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all pipeline metrics
func NewMetrics() *Metrics {
	return &Metrics{
		ServiceStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "contextrules",
				Subsystem: "service",
				Name:      "status",
				Help:      "Service status (0=stopped, 1=starting, 2=running, 3=stopping, 4=failed)",
			},
			[]string{"service"},
		),

		NotificationsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "contextrules",
				Subsystem: "notifications",
				Name:      "received_total",
				Help:      "Total number of change notifications received",
			},
			[]string{"service", "source"},
		),

		NotificationsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "contextrules",
				Subsystem: "notifications",
				Name:      "processed_total",
				Help:      "Total number of change notifications processed",
			},
			[]string{"service", "status"},
		),

		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "contextrules",
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Total number of events published downstream",
			},
			[]string{"service", "destination"},
		),

		ProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "contextrules",
				Subsystem: "processing",
				Name:      "duration_seconds",
				Help:      "Notification processing duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service", "operation"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "contextrules",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors",
			},
			[]string{"service", "type"},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "contextrules",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),
	}
}
