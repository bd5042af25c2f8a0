package reminder

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	firingsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "todo",
		Subsystem: "reminder",
		Name:      "firings_total",
		Help:      "Reminders delivered to their entity.",
	})

	failuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "todo",
		Subsystem: "reminder",
		Name:      "failures_total",
		Help:      "Deliveries that failed and were rescheduled with backoff.",
	})

	redeliveriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "todo",
		Subsystem: "reminder",
		Name:      "redeliveries_total",
		Help:      "Firings retried after a failed delivery or an expired lease.",
	})

	ackErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "todo",
		Subsystem: "reminder",
		Name:      "ack_errors_total",
		Help:      "Acknowledgements that could not be written; the lease expires and the reminder fires again.",
	})
)
