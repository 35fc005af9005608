package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector bundles the engine's counters. Construct it once per process
// with the registry the /metrics endpoint serves.
type Collector struct {
	AppointmentsCreated prometheus.Counter
	ConflictsRejected   prometheus.Counter
	Transitions         *prometheus.CounterVec
	EventsDispatched    prometheus.Counter
}

func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		AppointmentsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "scheduling",
			Name:      "appointments_created_total",
			Help:      "Total appointments successfully booked.",
		}),
		ConflictsRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "scheduling",
			Name:      "conflicts_rejected_total",
			Help:      "Total booking attempts rejected due to a scheduling conflict, pre-write or at commit.",
		}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scheduling",
			Name:      "transitions_total",
			Help:      "Total successful lifecycle transitions by resulting status.",
		}, []string{"status"}),
		EventsDispatched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "scheduling",
			Name:      "events_dispatched_total",
			Help:      "Total outbox events delivered to the event stream.",
		}),
	}
}
