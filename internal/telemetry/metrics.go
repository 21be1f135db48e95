package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "refund_transitions_total",
		Help: "Refund workflow transitions by outcome.",
	}, []string{"transition", "outcome"})

	sideEffectFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "refund_side_effect_failures_total",
		Help: "Failed notification or reversal attempts.",
	}, []string{"effect"})

	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "refund_operation_duration_seconds",
		Help:    "Duration of refund workflow operations.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
)

// RecordTransition counts one attempted transition; outcome is "ok" or an error kind.
func RecordTransition(transition, outcome string) {
	transitionsTotal.WithLabelValues(transition, outcome).Inc()
}

func RecordSideEffectFailure(effect string) {
	sideEffectFailures.WithLabelValues(effect).Inc()
}

func ObserveOperation(operation string, start time.Time) {
	operationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
