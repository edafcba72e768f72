package metrics

import (
	"NKDash/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	status           *prometheus.GaugeVec
	messagesReceived prometheus.Counter
	decodeErrors     prometheus.Counter
	reconnects       prometheus.Counter
	eventsDropped    *prometheus.CounterVec
	errorsTotal      *prometheus.CounterVec
	latency          *prometheus.HistogramVec
}

// New creates a recorder registered on the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder registered on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		status: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "nkdash_connection_status",
				Help: "1 for the current telemetry connection status, 0 otherwise",
			},
			[]string{"status"},
		),
		messagesReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "nkdash_messages_received_total",
			Help: "Telemetry frames decoded into a snapshot",
		}),
		decodeErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "nkdash_decode_errors_total",
			Help: "Telemetry frames discarded because they were not a JSON object",
		}),
		reconnects: f.NewCounter(prometheus.CounterOpts{
			Name: "nkdash_reconnects_total",
			Help: "Reconnect attempts started after a closure",
		}),
		eventsDropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nkdash_events_dropped_total",
				Help: "Lifecycle events dropped because a subscriber was full",
			},
			[]string{"subscriber"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nkdash_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nkdash_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordStatus sets the gauge for s to 1 and the other tags to 0.
func (r *Recorder) RecordStatus(s models.ConnectionStatus) {
	for _, tag := range models.AllStatuses {
		v := 0.0
		if tag == s {
			v = 1
		}
		r.status.WithLabelValues(tag.String()).Set(v)
	}
}

func (r *Recorder) RecordMessage()     { r.messagesReceived.Inc() }
func (r *Recorder) RecordDecodeError() { r.decodeErrors.Inc() }
func (r *Recorder) RecordReconnect()   { r.reconnects.Inc() }

// RecordDropped counts an event a subscriber could not take.
func (r *Recorder) RecordDropped(subscriber string) {
	r.eventsDropped.WithLabelValues(subscriber).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
