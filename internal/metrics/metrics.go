package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	IncrementsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tally_increments_total",
		Help: "Total number of increments committed to the live aggregates.",
	})

	IncrementAmount = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tally_increment_amount",
		Help:    "Distribution of increment amounts.",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
	})

	ResetsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tally_resets_total",
		Help: "Total number of resets committed, labelled by scope.",
	}, []string{"scope"})

	ReconcileRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tally_reconcile_runs_total",
		Help: "Total number of reconciliation passes over event windows.",
	})

	MalformedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tally_malformed_events_total",
		Help: "Total number of malformed log records skipped during reconciliation.",
	})

	LiveUpdatesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tally_live_updates_dropped_total",
		Help: "Total number of live snapshot updates dropped for slow subscribers.",
	})
)
