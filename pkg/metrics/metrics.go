// Package metrics exposes orchestration counters and latencies via a
// Prometheus registry, grounded on the teacher's
// engine/infra/monitoring/monitoring.go service shape but talking to the
// prometheus client directly instead of through an OpenTelemetry bridge.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Service collects and exposes the counters and histograms the
// orchestrator records as it runs requests to completion.
type Service struct {
	registry *prometheus.Registry

	requestsTotal *prometheus.CounterVec
	retriesTotal  prometheus.Counter
	healsTotal    prometheus.Counter
	stepDuration  *prometheus.HistogramVec
	stepsTotal    *prometheus.CounterVec
}

// New builds a Service with its own registry, so metrics from one
// orchestrator instance never collide with another's in the same process.
func New() *Service {
	registry := prometheus.NewRegistry()

	s := &Service{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nlapi",
			Name:      "requests_total",
			Help:      "Chat requests processed, labeled by terminal stage.",
		}, []string{"stage"}),
		retriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nlapi",
			Name:      "plan_retries_total",
			Help:      "Plan retries triggered after a failed execution pass.",
		}),
		healsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nlapi",
			Name:      "schema_heals_total",
			Help:      "Schema healing attempts made after a failed step.",
		}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nlapi",
			Name:      "step_duration_seconds",
			Help:      "Duration of a single executed plan step.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "status"}),
		stepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nlapi",
			Name:      "steps_total",
			Help:      "Executed plan steps, labeled by method and status class.",
		}, []string{"method", "status"}),
	}

	registry.MustRegister(s.requestsTotal, s.retriesTotal, s.healsTotal, s.stepDuration, s.stepsTotal)
	return s
}

// ObserveRequest records the terminal stage a chat request reached.
func (s *Service) ObserveRequest(stage string) {
	s.requestsTotal.WithLabelValues(stage).Inc()
}

// ObserveRetry records a plan retry.
func (s *Service) ObserveRetry() {
	s.retriesTotal.Inc()
}

// ObserveHeal records a schema healing attempt.
func (s *Service) ObserveHeal() {
	s.healsTotal.Inc()
}

// ObserveStep records a single executed step's method, HTTP status, and
// wall-clock duration in seconds.
func (s *Service) ObserveStep(method string, status int, seconds float64) {
	statusLabel := statusClass(status)
	s.stepDuration.WithLabelValues(method, statusLabel).Observe(seconds)
	s.stepsTotal.WithLabelValues(method, statusLabel).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (s *Service) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

func statusClass(status int) string {
	switch {
	case status == 0:
		return "error"
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
