package actor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Per-key labels would be unbounded, so everything is labelled by entity kind only.
var (
	activationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "todo",
			Subsystem: "actor",
			Name:      "activations_total",
			Help:      "Entity activations by outcome.",
		},
		[]string{"kind", "result"},
	)

	deactivationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "todo",
			Subsystem: "actor",
			Name:      "deactivations_total",
			Help:      "Entity deactivations by reason.",
		},
		[]string{"kind", "reason"},
	)

	mailboxFullTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "todo",
			Subsystem: "actor",
			Name:      "mailbox_full_total",
			Help:      "Enqueue attempts that timed out on a full mailbox.",
		},
		[]string{"kind"},
	)

	turnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "todo",
			Subsystem: "actor",
			Name:      "turn_duration_seconds",
			Help:      "Turn execution latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	mailboxDepth = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "todo",
			Subsystem: "actor",
			Name:      "mailbox_depth",
			Help:      "Turns still queued when a turn is dequeued.",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 64, 128},
		},
		[]string{"kind"},
	)

	residentEntities = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "todo",
			Subsystem: "actor",
			Name:      "resident_entities",
			Help:      "Activations currently held in the directory.",
		},
		[]string{"kind"},
	)
)
