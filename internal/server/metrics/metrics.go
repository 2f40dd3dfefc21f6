// Package metrics declares the Prometheus collectors exported by the server
// on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts served requests by route pattern and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cellscope_http_requests_total",
			Help: "Total number of HTTP requests served",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration tracks handler latency by route pattern.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cellscope_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// AuthFailuresTotal counts rejected authentications by error code.
	AuthFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cellscope_auth_failures_total",
			Help: "Total number of rejected authentication attempts",
		},
		[]string{"code"},
	)

	// RateLimitedTotal counts requests rejected by a route limiter.
	RateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cellscope_rate_limited_total",
			Help: "Total number of requests rejected by rate limiting",
		},
		[]string{"route"},
	)

	// PasswordHashDuration tracks time spent in the hashing pool,
	// queueing included.
	PasswordHashDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cellscope_password_hash_duration_seconds",
			Help:    "Duration of password hash and verify operations in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"op", "outcome"},
	)

	// QueuePublishTotal counts analysis job publishes by outcome.
	QueuePublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cellscope_queue_publish_total",
			Help: "Total number of analysis job publish attempts",
		},
		[]string{"outcome"},
	)
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
