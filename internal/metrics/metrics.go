// Package metrics expõe as métricas Prometheus do gateway em um registry próprio.
package metrics

import (
	"net/http"

	"vibewell-gateway/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RateLimitMetrics implementa application.Observer.
// Labels seguros apenas (policy, outcome): nunca o identificador.
type RateLimitMetrics struct {
	handler http.Handler

	decisions     *prometheus.CounterVec
	storeErrors   *prometheus.CounterVec
	suspicious    *prometheus.CounterVec
	eventsDropped prometheus.Counter
}

func New() *RateLimitMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &RateLimitMetrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_decisions_total",
			Help: "Rate limit decisions by policy and outcome (allowed, denied, degraded_allowed, degraded_denied)",
		}, []string{"policy", "outcome"}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_store_errors_total",
			Help: "Backing store failures seen by the rate limiter",
		}, []string{"policy"}),
		suspicious: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_suspicious_total",
			Help: "Identifiers flagged as suspicious",
		}, []string{"policy"}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ratelimit_events_dropped_total",
			Help: "Audit events dropped because the dispatcher was saturated",
		}),
	}
	reg.MustRegister(m.decisions, m.storeErrors, m.suspicious, m.eventsDropped)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
	return m
}

func (m *RateLimitMetrics) Handler() http.Handler { return m.handler }

func (m *RateLimitMetrics) ObserveDecision(policy string, r domain.Result) {
	m.decisions.WithLabelValues(policy, outcome(r)).Inc()
}

func (m *RateLimitMetrics) ObserveStoreError(policy string) {
	m.storeErrors.WithLabelValues(policy).Inc()
}

func (m *RateLimitMetrics) ObserveSuspicious(policy string) {
	m.suspicious.WithLabelValues(policy).Inc()
}

// IncEventsDropped serve de callback para application.WithOnDrop.
func (m *RateLimitMetrics) IncEventsDropped(domain.Event) {
	m.eventsDropped.Inc()
}

func outcome(r domain.Result) string {
	switch {
	case r.Degraded && r.Success:
		return "degraded_allowed"
	case r.Degraded:
		return "degraded_denied"
	case r.Success:
		return "allowed"
	default:
		return "denied"
	}
}
