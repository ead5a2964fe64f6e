// Package metrics exposes Prometheus collectors for upload sessions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the upload collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	SessionsStarted  prometheus.Counter
	SessionsClosed   *prometheus.CounterVec
	OpenSessions     prometheus.Gauge
	ChunksAccepted   prometheus.Counter
	BytesAccepted    prometheus.Counter
	OffsetConflicts  prometheus.Counter
	StorageFailures  *prometheus.CounterVec
	CapacityRejected prometheus.Counter
	AppendDuration   prometheus.Histogram
}

// New creates the collectors and registers them on a private registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "upload_sessions_started_total",
			Help: "Upload sessions created",
		}),
		SessionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "upload_sessions_closed_total",
			Help: "Upload sessions that reached a terminal state",
		}, []string{"status", "reason"}),
		OpenSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "upload_sessions_open",
			Help: "Upload sessions currently accepting chunks",
		}),
		ChunksAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "upload_chunks_accepted_total",
			Help: "Chunks admitted by the offset gate",
		}),
		BytesAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "upload_bytes_accepted_total",
			Help: "Bytes appended to staged uploads",
		}),
		OffsetConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "upload_offset_conflicts_total",
			Help: "Chunks rejected because their offset was not the expected one",
		}),
		StorageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "upload_storage_failures_total",
			Help: "Append or commit failures from the storage backends",
		}, []string{"op"}),
		CapacityRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "upload_capacity_rejected_total",
			Help: "Start requests rejected because the session store was full",
		}),
		AppendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "upload_append_duration_seconds",
			Help:    "Time spent appending a chunk inside the session lock",
			Buckets: prometheus.DefBuckets,
		}),
	}

	m.registry.MustRegister(
		m.SessionsStarted,
		m.SessionsClosed,
		m.OpenSessions,
		m.ChunksAccepted,
		m.BytesAccepted,
		m.OffsetConflicts,
		m.StorageFailures,
		m.CapacityRejected,
		m.AppendDuration,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Started() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
	m.OpenSessions.Inc()
}

func (m *Metrics) Closed(status, reason string) {
	if m == nil {
		return
	}
	m.SessionsClosed.WithLabelValues(status, reason).Inc()
	m.OpenSessions.Dec()
}

func (m *Metrics) Accepted(n int, seconds float64) {
	if m == nil {
		return
	}
	m.ChunksAccepted.Inc()
	m.BytesAccepted.Add(float64(n))
	m.AppendDuration.Observe(seconds)
}

func (m *Metrics) Conflict() {
	if m == nil {
		return
	}
	m.OffsetConflicts.Inc()
}

func (m *Metrics) StorageFailure(op string) {
	if m == nil {
		return
	}
	m.StorageFailures.WithLabelValues(op).Inc()
}

func (m *Metrics) Rejected() {
	if m == nil {
		return
	}
	m.CapacityRejected.Inc()
}
