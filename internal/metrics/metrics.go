// Package metrics exports gateway metrics to Prometheus.
//
// All methods are safe on a nil *Metrics so components can take an optional
// collector without guarding every call.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// statuses lists every target status so the gauge reads 1 for the current
// one and 0 for the rest.
var statuses = []string{"disconnected", "connected", "unauthorized", "error"}

// Metrics holds the gateway collectors.
type Metrics struct {
	registry *prometheus.Registry

	targetStatus  *prometheus.GaugeVec
	listLatency   *prometheus.HistogramVec
	listFailures  *prometheus.CounterVec
	routedCalls   *prometheus.CounterVec
	sessions      prometheus.Gauge
	sessionsTotal prometheus.Counter
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		targetStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mcpgate_target_status",
			Help: "Current status of each target (1 for the active status)",
		}, []string{"proxy", "target", "status"}),

		listLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mcpgate_target_list_duration_seconds",
			Help:    "Latency of list calls fanned out to targets",
			Buckets: prometheus.DefBuckets,
		}, []string{"proxy", "target", "family"}),

		listFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcpgate_target_list_failures_total",
			Help: "List calls skipped because the target failed",
		}, []string{"proxy", "target", "family"}),

		routedCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcpgate_routed_calls_total",
			Help: "Tool, prompt and resource invocations routed to targets",
		}, []string{"proxy", "target", "kind", "result"}),

		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mcpgate_sessions",
			Help: "Live MCP sessions",
		}),

		sessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mcpgate_sessions_total",
			Help: "MCP sessions created",
		}),
	}

	m.registry.MustRegister(
		m.targetStatus,
		m.listLatency,
		m.listFailures,
		m.routedCalls,
		m.sessions,
		m.sessionsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetTargetStatus records the current status of a target.
func (m *Metrics) SetTargetStatus(proxy, target, status string) {
	if m == nil {
		return
	}
	for _, s := range statuses {
		v := 0.0
		if s == status {
			v = 1
		}
		m.targetStatus.WithLabelValues(proxy, target, s).Set(v)
	}
}

// ForgetTarget drops every series of a removed target.
func (m *Metrics) ForgetTarget(proxy, target string) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{"proxy": proxy, "target": target}
	m.targetStatus.DeletePartialMatch(labels)
	m.listLatency.DeletePartialMatch(labels)
	m.listFailures.DeletePartialMatch(labels)
	m.routedCalls.DeletePartialMatch(labels)
}

// ObserveList records one fanned-out list call.
func (m *Metrics) ObserveList(proxy, target, family string, d time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.listLatency.WithLabelValues(proxy, target, family).Observe(d.Seconds())
	if failed {
		m.listFailures.WithLabelValues(proxy, target, family).Inc()
	}
}

// ObserveCall records one routed invocation.
func (m *Metrics) ObserveCall(proxy, target, kind string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.routedCalls.WithLabelValues(proxy, target, kind, result).Inc()
}

// SessionOpened counts a new session.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessions.Inc()
	m.sessionsTotal.Inc()
}

// SessionClosed counts a closed session.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessions.Dec()
}
