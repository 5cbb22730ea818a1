package httpclient

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	attemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relaygate_upstream_attempts_total",
			Help: "Upstream HTTP attempts by method and status code (0 when no response)",
		},
		[]string{"method", "status"},
	)

	callDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relaygate_upstream_call_duration_seconds",
			Help:    "Duration of upstream calls including retries and backoff",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "outcome"},
	)
)

func recordAttempt(method string, status int) {
	attemptsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

func recordCall(method, outcome string, seconds float64) {
	callDuration.WithLabelValues(method, outcome).Observe(seconds)
}
