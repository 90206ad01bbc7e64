// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the gatekeeper.
package observability

import "github.com/prometheus/client_golang/prometheus"

// APIBuckets defines histogram buckets suited for gatekeeping latencies,
// ranging from 1ms to 2.5s.
var APIBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

var (
	// RequestsTotal counts all HTTP requests by method and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekeeper_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status"},
	)

	// RequestDuration records HTTP request duration in seconds by method.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gatekeeper_request_duration_seconds",
			Help:    "Request duration",
			Buckets: APIBuckets,
		},
		[]string{"method"},
	)

	// AuthFailuresTotal counts rejected identity resolutions by machine code.
	AuthFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekeeper_auth_failures_total",
			Help: "Identity resolution failures",
		},
		[]string{"code"},
	)

	// ForbiddenTotal counts permission denials.
	ForbiddenTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gatekeeper_forbidden_total",
			Help: "Permission denials",
		},
	)

	// RateLimitRejectedTotal counts rate limited requests by identifier
	// scope (ip or key) and violated granularity.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekeeper_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"scope", "granularity"},
	)

	// CounterStoreErrorsTotal counts counter store round trips that failed
	// or timed out. Every increment corresponds to one fail-open allow.
	CounterStoreErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gatekeeper_counter_store_errors_total",
			Help: "Counter store failures (fail-open)",
		},
	)

	// KeyStoreErrorsTotal counts key store lookups that failed for
	// infrastructure reasons (not unknown keys).
	KeyStoreErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gatekeeper_key_store_errors_total",
			Help: "Key store lookup failures",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		AuthFailuresTotal,
		ForbiddenTotal,
		RateLimitRejectedTotal,
		CounterStoreErrorsTotal,
		KeyStoreErrorsTotal,
	)
}
