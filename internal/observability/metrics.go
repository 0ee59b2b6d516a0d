package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors the service updates. Each instance owns its
// registry so tests can build as many servers as they like.
type Metrics struct {
	Registry *prometheus.Registry

	MessagesAppended *prometheus.CounterVec
	ModeChanges      *prometheus.CounterVec
	AlertsRaised     prometheus.Counter
	UpstreamFailures *prometheus.CounterVec
	SideEffects      *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		MessagesAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clara",
			Name:      "messages_appended_total",
			Help:      "Messages appended to the message store, by role.",
		}, []string{"role"}),
		ModeChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clara",
			Name:      "mode_changes_total",
			Help:      "Mode set operations, by resulting responder.",
		}, []string{"responder"}),
		AlertsRaised: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clara",
			Name:      "alerts_raised_total",
			Help:      "Alerts recorded through the alert channel.",
		}),
		UpstreamFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clara",
			Name:      "upstream_failures_total",
			Help:      "Failed calls to the relay or language-model provider.",
		}, []string{"upstream"}),
		SideEffects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clara",
			Name:      "mode_side_effects_total",
			Help:      "Detached mode-change side effects, by name and outcome.",
		}, []string{"name", "outcome"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clara",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	m.Registry.MustRegister(
		m.MessagesAppended,
		m.ModeChanges,
		m.AlertsRaised,
		m.UpstreamFailures,
		m.SideEffects,
		m.RequestDuration,
		prometheus.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// The helpers below are nil-safe so services can run without metrics.

func (m *Metrics) MessageAppended(role string) {
	if m == nil {
		return
	}
	m.MessagesAppended.WithLabelValues(role).Inc()
}

func (m *Metrics) ModeChanged(agent bool) {
	if m == nil {
		return
	}
	responder := "caregiver"
	if agent {
		responder = "agent"
	}
	m.ModeChanges.WithLabelValues(responder).Inc()
}

func (m *Metrics) AlertRaised() {
	if m == nil {
		return
	}
	m.AlertsRaised.Inc()
}

func (m *Metrics) UpstreamFailed(upstream string) {
	if m == nil {
		return
	}
	m.UpstreamFailures.WithLabelValues(upstream).Inc()
}

func (m *Metrics) SideEffectDone(name string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.SideEffects.WithLabelValues(name, outcome).Inc()
}
