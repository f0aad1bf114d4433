package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks HTTP request latency across every service
// mounted on the httpserver.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "edgecore",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// OTPRequestsTotal counts request-otp calls by outcome (issued, failed).
var OTPRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "edgecore",
		Subsystem: "identity",
		Name:      "otp_requests_total",
		Help:      "Number of OTP issuance attempts by outcome.",
	},
	[]string{"outcome"},
)

// OTPVerificationsTotal counts verify-otp calls by outcome.
var OTPVerificationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "edgecore",
		Subsystem: "identity",
		Name:      "otp_verifications_total",
		Help:      "Number of OTP verification attempts by outcome.",
	},
	[]string{"outcome"},
)

// RateLimitRejectionsTotal counts requests rejected by the sliding-window
// rate limiter, by bucket.
var RateLimitRejectionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "edgecore",
		Subsystem: "identity",
		Name:      "rate_limit_rejections_total",
		Help:      "Number of requests rejected by the rate limiter, by bucket.",
	},
	[]string{"bucket"},
)

// IntegrityFailuresTotal counts HMAC verification failures, by direction
// (inbound_request, outbound_response).
var IntegrityFailuresTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "edgecore",
		Subsystem: "integrity",
		Name:      "verification_failures_total",
		Help:      "Number of requests/responses that failed integrity verification.",
	},
	[]string{"direction"},
)

// CacheResultsTotal counts APIClient cache lookups by result (hit, miss, stale).
var CacheResultsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "edgecore",
		Subsystem: "apiclient",
		Name:      "cache_results_total",
		Help:      "Number of cache lookups by result.",
	},
	[]string{"result"},
)

// CircuitBreakerTripsTotal counts circuit breaker state transitions to open,
// by service name.
var CircuitBreakerTripsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "edgecore",
		Subsystem: "apiclient",
		Name:      "circuit_breaker_trips_total",
		Help:      "Number of times a circuit breaker opened, by service.",
	},
	[]string{"service"},
)

// All returns the edgecore-specific metrics for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		OTPRequestsTotal,
		OTPVerificationsTotal,
		RateLimitRejectionsTotal,
		IntegrityFailuresTotal,
		CacheResultsTotal,
		CircuitBreakerTripsTotal,
	}
}

// NewMetricsRegistry creates a Prometheus registry with Go/process collectors,
// the shared HTTPRequestDuration metric, and any additional collectors.
func NewMetricsRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestDuration,
	)
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return reg
}
