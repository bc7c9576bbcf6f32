package logrule

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/contextrules/metric"
)

// Metrics holds Prometheus metrics for the logrule pipeline
type Metrics struct {
	eventsReceived       *prometheus.CounterVec
	propertiesEvaluated  *prometheus.CounterVec
	rejectionsTotal      *prometheus.CounterVec
	eventsPublishedTotal *prometheus.CounterVec
	patchesTotal         *prometheus.CounterVec
	errorsTotal          *prometheus.CounterVec
	evaluationDuration   *prometheus.HistogramVec
}

// NewMetrics creates logrule metrics and registers them with the registrar
// under the "logrule" service name. The registrar rejects duplicate names
// with a classified error, so a single *Metrics is built once per process
// and shared by every adapter that records through it.
// Returns nil if no registrar is provided (nil input = nil feature pattern).
func NewMetrics(registrar metric.MetricsRegistrar) (*Metrics, error) {
	if registrar == nil {
		return nil, nil
	}

	metrics := &Metrics{
		eventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contextrules",
			Subsystem: "logrule",
			Name:      "events_received_total",
			Help:      "Change notifications received for rule evaluation",
		}, []string{"transport"}),

		propertiesEvaluated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contextrules",
			Subsystem: "logrule",
			Name:      "properties_evaluated_total",
			Help:      "Properties evaluated against their log rules",
		}, []string{"outcome"}),

		rejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contextrules",
			Subsystem: "logrule",
			Name:      "rejections_total",
			Help:      "Messages and properties rejected during validation",
		}, []string{"reason"}),

		eventsPublishedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contextrules",
			Subsystem: "logrule",
			Name:      "events_published_total",
			Help:      "Derived events published downstream",
		}, []string{"destination"}),

		patchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contextrules",
			Subsystem: "logrule",
			Name:      "patches_total",
			Help:      "Metadata merge-patches written to the context store",
		}, []string{"status"}),

		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contextrules",
			Subsystem: "logrule",
			Name:      "errors_total",
			Help:      "Processing errors",
		}, []string{"type"}),

		evaluationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "contextrules",
			Subsystem: "logrule",
			Name:      "evaluation_duration_seconds",
			Help:      "Time spent processing a single notification",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"transport"}),
	}

	counters := map[string]*prometheus.CounterVec{
		"events_received_total":      metrics.eventsReceived,
		"properties_evaluated_total": metrics.propertiesEvaluated,
		"rejections_total":           metrics.rejectionsTotal,
		"events_published_total":     metrics.eventsPublishedTotal,
		"patches_total":              metrics.patchesTotal,
		"errors_total":               metrics.errorsTotal,
	}
	for name, vec := range counters {
		if err := registrar.RegisterCounterVec("logrule", name, vec); err != nil {
			return nil, err
		}
	}
	if err := registrar.RegisterHistogramVec("logrule", "evaluation_duration_seconds", metrics.evaluationDuration); err != nil {
		return nil, err
	}

	return metrics, nil
}

func (m *Metrics) recordReceived(transport string) {
	if m == nil {
		return
	}
	m.eventsReceived.WithLabelValues(transport).Inc()
}

func (m *Metrics) recordOutcome(outcome string) {
	if m == nil {
		return
	}
	m.propertiesEvaluated.WithLabelValues(outcome).Inc()
}

func (m *Metrics) recordRejection(reason RejectReason) {
	if m == nil {
		return
	}
	m.rejectionsTotal.WithLabelValues(reason.String()).Inc()
}

func (m *Metrics) recordPublished(destination string) {
	if m == nil {
		return
	}
	m.eventsPublishedTotal.WithLabelValues(destination).Inc()
}

func (m *Metrics) recordPatch(status string) {
	if m == nil {
		return
	}
	m.patchesTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) recordError(errorType string) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(errorType).Inc()
}

func (m *Metrics) observeDuration(transport string, seconds float64) {
	if m == nil {
		return
	}
	m.evaluationDuration.WithLabelValues(transport).Observe(seconds)
}
