// Package metrics holds the Prometheus instrumentation for the session hub
// and its persistence store.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector this service registers.
type Metrics struct {
	BroadcastsTotal  *prometheus.CounterVec
	ConflictsTotal   prometheus.Counter
	ActiveSessions   prometheus.Gauge
	ActiveConns      prometheus.Gauge
	StoreOpDuration  *prometheus.HistogramVec
	StoreOpFailures  *prometheus.CounterVec
	AuthFailuresTot  prometheus.Counter
}

// New creates and registers all collectors for this service.
func New() *Metrics {
	return &Metrics{
		BroadcastsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sessionhub_broadcasts_total",
			Help: "Total number of broadcasts emitted, by message type",
		}, []string{"type"}),

		ConflictsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sessionhub_conflicts_total",
			Help: "Total number of parameter conflicts detected",
		}),

		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "sessionhub_active_sessions",
			Help: "Current number of live (non-empty) session hubs",
		}),

		ActiveConns: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "sessionhub_active_connections",
			Help: "Current number of authenticated participant connections",
		}),

		StoreOpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sessionhub_store_op_duration_seconds",
			Help:    "Duration of persistence store operations by op",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		}, []string{"op"}),

		StoreOpFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sessionhub_store_op_failures_total",
			Help: "Total persistence store operation failures by op",
		}, []string{"op"}),

		AuthFailuresTot: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sessionhub_auth_failures_total",
			Help: "Total number of rejected authentication attempts",
		}),
	}
}

// IncBroadcast records one emitted broadcast of the given message type.
func (m *Metrics) IncBroadcast(msgType string) {
	if m != nil {
		m.BroadcastsTotal.WithLabelValues(msgType).Inc()
	}
}

// IncConflict records one detected parameter conflict.
func (m *Metrics) IncConflict() {
	if m != nil {
		m.ConflictsTotal.Inc()
	}
}

// SetActiveSessions sets the live-session gauge.
func (m *Metrics) SetActiveSessions(n int) {
	if m != nil {
		m.ActiveSessions.Set(float64(n))
	}
}

// IncActiveConns adjusts the active-connection gauge by delta.
func (m *Metrics) IncActiveConns(delta int) {
	if m != nil {
		m.ActiveConns.Add(float64(delta))
	}
}

// IncAuthFailure records one rejected authentication attempt.
func (m *Metrics) IncAuthFailure() {
	if m != nil {
		m.AuthFailuresTot.Inc()
	}
}
