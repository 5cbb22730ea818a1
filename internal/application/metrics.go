package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	invocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relaygate_invocations_total",
			Help: "Executed invocations by outcome (ok or an error kind)",
		},
		[]string{"outcome"},
	)

	invocationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relaygate_invocation_duration_seconds",
			Help:    "Duration of invocations from endpoint lookup to parsed result",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	tokenFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relaygate_token_fetches_total",
			Help: "Token endpoint calls by grant type and result",
		},
		[]string{"grant", "result"},
	)
)

func recordInvocation(outcome string, seconds float64) {
	invocationsTotal.WithLabelValues(outcome).Inc()
	invocationDuration.WithLabelValues(outcome).Observe(seconds)
}

func recordTokenFetch(grant, result string) {
	tokenFetchesTotal.WithLabelValues(grant, result).Inc()
}
