package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	InFlightGauge   prometheus.Gauge

	BookingsTotal      *prometheus.CounterVec
	TransitionsTotal   *prometheus.CounterVec
	SlotsCreatedTotal  prometheus.Counter
	RemindersTotal     *prometheus.CounterVec
	StatusCacheLookups *prometheus.CounterVec
}

// NewCollector registers all collectors on reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not panic.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)

	return &Collector{
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, route, and status code.",
		}, []string{"method", "route", "status"}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "route"}),

		InFlightGauge: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),

		BookingsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "attempts_total",
			Help:      "Booking attempts by outcome (created, slot_booked, patient_conflict, locked, error).",
		}, []string{"outcome"}),

		TransitionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "status_transitions_total",
			Help:      "Appointment status transitions by target status.",
		}, []string{"to"}),

		SlotsCreatedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "availability",
			Name:      "slots_created_total",
			Help:      "Total availability slots created.",
		}),

		RemindersTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminders",
			Name:      "jobs_total",
			Help:      "Reminder jobs by event (enqueued, enqueue_failed, cancelled, dispatched, dispatch_failed).",
		}, []string{"event"}),

		StatusCacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "status_cache",
			Name:      "lookups_total",
			Help:      "Status registry lookups by result (hit, miss).",
		}, []string{"result"}),
	}
}

// NewNop is used where no metrics endpoint is exposed, mostly tests.
func NewNop() *Collector {
	return NewCollector("test", prometheus.NewRegistry())
}

func Handler() http.Handler {
	return promhttp.Handler()
}
