package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the reminder sweep counters exported by the worker.
type Metrics struct {
	SweepsTotal         prometheus.Counter
	SweepDuration       prometheus.Histogram
	RemindersDispatched prometheus.Counter
	RemindersFailed     prometheus.Counter
	RemindersSkipped    prometheus.Counter
}

// New creates and registers all sweep metrics under the given namespace.
func New(namespace string) *Metrics {
	return &Metrics{
		SweepsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "Total number of reminder sweep runs",
		}),
		SweepDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Time spent scanning and dispatching reminders per run",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		RemindersDispatched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_dispatched_total",
			Help:      "Total number of reminder notifications dispatched",
		}),
		RemindersFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_failed_total",
			Help:      "Total number of reminder dispatch attempts that failed",
		}),
		RemindersSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_skipped_total",
			Help:      "Reminders skipped because the patient is unreachable or opted out",
		}),
	}
}
