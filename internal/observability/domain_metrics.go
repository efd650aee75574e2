package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querypilot_turns_total",
			Help: "Total number of resolved pipeline turns by terminal outcome.",
		},
		[]string{"outcome"},
	)
	roundsPerTurn = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "querypilot_rounds_per_turn",
			Help:    "Synthesis rounds consumed per resolved turn.",
			Buckets: []float64{1, 2, 3, 4, 5, 6},
		},
	)
	validationRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querypilot_validation_rejections_total",
			Help: "Total number of candidate SQL rejections by failure kind.",
		},
		[]string{"kind"},
	)
	executionFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querypilot_execution_failures_total",
			Help: "Total number of sandbox execution failures by failure kind.",
		},
		[]string{"kind"},
	)
	synthesisDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "querypilot_synthesis_duration_seconds",
			Help:    "Latency of candidate SQL synthesis calls.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
		},
	)
	executionDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "querypilot_execution_duration_seconds",
			Help:    "Latency of sandboxed query execution.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)
	memoHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "querypilot_memo_hits_total",
			Help: "Total number of turns answered from the memoization cache.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		turnsTotal,
		roundsPerTurn,
		validationRejectionsTotal,
		executionFailuresTotal,
		synthesisDurationSeconds,
		executionDurationSeconds,
		memoHitsTotal,
	)
}

func ObserveTurn(outcome string, rounds int) {
	turnsTotal.WithLabelValues(outcome).Inc()
	if rounds > 0 {
		roundsPerTurn.Observe(float64(rounds))
	}
}

func IncrementValidationRejection(kind string) {
	validationRejectionsTotal.WithLabelValues(kind).Inc()
}

func IncrementExecutionFailure(kind string) {
	executionFailuresTotal.WithLabelValues(kind).Inc()
}

func ObserveSynthesis(elapsed time.Duration) {
	synthesisDurationSeconds.Observe(elapsed.Seconds())
}

func ObserveExecution(elapsed time.Duration) {
	executionDurationSeconds.Observe(elapsed.Seconds())
}

func IncrementMemoHit() {
	memoHitsTotal.Inc()
}
