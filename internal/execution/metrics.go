package execution

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	wavesExecuted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cascade_waves_executed_total",
		Help: "Total waves dispatched to the regeneration executor",
	})

	waveConfidence = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cascade_wave_confidence",
		Help:    "Confidence score of verified waves",
		Buckets: []float64{0.1, 0.25, 0.4, 0.5, 0.6, 0.75, 0.85, 0.95, 1.0},
	})

	regenerationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cascade_regeneration_duration_seconds",
		Help:    "Duration of single-artifact regenerations",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
	}, []string{"mode"})

	regenerationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cascade_regeneration_failures_total",
		Help: "Total wave members whose regeneration returned an error",
	})

	escalations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cascade_escalations_total",
		Help: "Total executions escalated to a human after consecutive low-confidence waves",
	})

	executionsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cascade_executions_total",
		Help: "Total executions that reached a terminal state, by outcome",
	}, []string{"outcome"})

	activeExecutions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cascade_active_executions",
		Help: "Executions started and not yet terminal",
	})
)
