package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soho_http_requests_total",
			Help: "Total HTTP requests by method and status",
		},
		[]string{"method", "status"},
	)
	// InterceptedCallsTotal counts intercepted controller calls by outcome.
	InterceptedCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soho_intercepted_calls_total",
			Help: "Intercepted controller calls by type, method and outcome",
		},
		[]string{"type", "method", "outcome"},
	)
	// InterceptedCallDurationSeconds is the latency of intercepted controller calls.
	InterceptedCallDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "soho_intercepted_call_duration_seconds",
			Help:    "Intercepted controller call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type", "method"},
	)
)

// Observer feeds interceptor outcomes into the collectors above.
type Observer struct{}

// ObserveCall implements weblog.Observer.
func (Observer) ObserveCall(typeName, method, outcome string, elapsed time.Duration) {
	InterceptedCallsTotal.WithLabelValues(typeName, method, outcome).Inc()
	InterceptedCallDurationSeconds.WithLabelValues(typeName, method).Observe(elapsed.Seconds())
}
