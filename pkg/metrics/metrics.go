package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	namespace = "parkline"

	queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "admission",
			Name:      "queue_depth",
			Help:      "Number of requests waiting in the admission queue",
		},
	)

	activeProcessing = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "admission",
			Name:      "active_processing",
			Help:      "Number of requests currently inside an allocation attempt",
		},
	)

	requestOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "admission",
			Name:      "request_outcomes_total",
			Help:      "Terminal request outcomes by state and reason",
		},
		[]string{"state", "reason"},
	)

	fastPathAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "admission",
			Name:      "fast_path_attempts_total",
			Help:      "Synchronous allocation attempts for high priority requests",
		},
		[]string{"result"},
	)

	lockWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "coordination",
			Name:      "lock_wait_seconds",
			Help:      "Time spent acquiring a pool lock",
			Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"backend", "result"},
	)

	allocationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "allocation",
			Name:      "duration_seconds",
			Help:      "Duration of allocation transactions",
		},
		[]string{"result"},
	)

	bookingTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bookings",
			Name:      "transitions_total",
			Help:      "Booking lifecycle transitions by target status",
		},
		[]string{"status"},
	)

	eventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Outcome events handed to the event bus",
		},
		[]string{"event_type", "result"},
	)

	eventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "consumed_total",
			Help:      "Events read from the event bus",
		},
		[]string{"topic", "result"},
	)
)

func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

func IncActiveProcessing() {
	activeProcessing.Inc()
}

func DecActiveProcessing() {
	activeProcessing.Dec()
}

func RecordOutcome(state, reason string) {
	requestOutcomes.WithLabelValues(state, reason).Inc()
}

func RecordFastPath(result string) {
	fastPathAttempts.WithLabelValues(result).Inc()
}

func ObserveLockWait(backend, result string, d time.Duration) {
	lockWait.WithLabelValues(backend, result).Observe(d.Seconds())
}

func ObserveAllocation(result string, d time.Duration) {
	allocationDuration.WithLabelValues(result).Observe(d.Seconds())
}

func RecordPublish(eventType, result string) {
	eventsPublished.WithLabelValues(eventType, result).Inc()
}

func RecordConsume(topic, result string) {
	eventsConsumed.WithLabelValues(topic, result).Inc()
}

func RecordBookingTransition(status string) {
	bookingTransitions.WithLabelValues(status).Inc()
}
