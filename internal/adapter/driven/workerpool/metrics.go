package workerpool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queuedGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relaygate_workerpool_queued_tasks",
		Help: "Tasks waiting for a free worker",
	})

	rejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relaygate_workerpool_rejected_total",
		Help: "Submissions rejected because the queue was full",
	})
)
