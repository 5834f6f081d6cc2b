package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Bounded label values.
const (
	ModeExhaustive = "exhaustive"
	ModeAnnealing  = "annealing"
	ModeSeeding    = "seeding"

	SourceSimulated = "simulated"
	SourceCache     = "cache"
	SourceFailed    = "failed"

	CheckpointSaved   = "saved"
	CheckpointSkipped = "skipped"
	CheckpointFailed  = "failed"
)

// Search Metrics
var (
	// Evaluations by mode and source (simulated, cache, failed)
	Evaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ezbot_optimizer_evaluations_total",
		Help: "Candidate evaluations by search mode and result source",
	}, []string{"mode", "source"})

	// Simulation latency in milliseconds
	SimulationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ezbot_optimizer_simulation_duration_ms",
		Help:    "Backtest simulation duration in milliseconds",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 50, 100, 500, 1000},
	})

	// Early-terminated simulations by reason
	EarlyTerminations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ezbot_optimizer_early_terminations_total",
		Help: "Simulations stopped early, by termination reason",
	}, []string{"reason"})

	BestFitness = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ezbot_optimizer_best_fitness",
		Help: "Best fitness found so far by strategy type",
	}, []string{"strategy"})

	GlobalImprovements = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ezbot_optimizer_global_improvements_total",
		Help: "Number of times the global best was replaced",
	})

	RetainedResults = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ezbot_optimizer_retained_results",
		Help: "Results currently held in the bounded retention set",
	})
)

// Annealing Metrics
var (
	LiveChains = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ezbot_annealing_live_chains",
		Help: "Annealing chains currently queued or being stepped",
	})

	MeanTemperature = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ezbot_annealing_mean_temperature",
		Help: "Running mean temperature of live chains",
	})

	ExplorationRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ezbot_annealing_exploration_rate",
		Help: "Current probability of injecting a fresh chain",
	})

	ChainsInjected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ezbot_annealing_chains_injected_total",
		Help: "Fresh chains injected to replace stagnant ones",
	})

	ChainsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ezbot_annealing_chains_dropped_total",
		Help: "Chains retired, by reason (frozen, stagnant)",
	}, []string{"reason"})
)

// Cache and Persistence Metrics
var (
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ezbot_cache_lookups_total",
		Help: "Result cache lookups by outcome (hit, miss)",
	}, []string{"outcome"})

	CacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ezbot_cache_entries",
		Help: "Number of results in the cache",
	})

	CheckpointSaves = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ezbot_checkpoint_saves_total",
		Help: "Checkpoint save attempts by blob and outcome (saved, skipped, failed)",
	}, []string{"blob", "outcome"})

	// 0=closed, 1=open, 2=half_open
	CheckpointBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ezbot_checkpoint_breaker_state",
		Help: "Checkpoint store circuit breaker state (0=closed, 1=open, 2=half_open)",
	}, []string{"store"})
)

// Helper functions to update metrics

// RecordEvaluation records one candidate evaluation.
func RecordEvaluation(mode, source string) {
	Evaluations.WithLabelValues(mode, source).Inc()
}

// RecordSimulation records the latency and termination of one simulation.
func RecordSimulation(durationMs float64, terminationReason string) {
	SimulationDuration.Observe(durationMs)
	if terminationReason != "" {
		EarlyTerminations.WithLabelValues(terminationReason).Inc()
	}
}

// RecordCacheLookup records a cache hit or miss.
func RecordCacheLookup(hit bool) {
	if hit {
		CacheLookups.WithLabelValues("hit").Inc()
		return
	}
	CacheLookups.WithLabelValues("miss").Inc()
}

// UpdateBestFitness sets the best fitness gauge and counts the improvement.
func UpdateBestFitness(strategy string, fitness float64) {
	BestFitness.WithLabelValues(strategy).Set(fitness)
	GlobalImprovements.Inc()
}

// UpdateAnnealingState publishes the shared annealing scalars.
func UpdateAnnealingState(liveChains int64, meanTemperature, explorationRate float64) {
	LiveChains.Set(float64(liveChains))
	MeanTemperature.Set(meanTemperature)
	ExplorationRate.Set(explorationRate)
}

// RecordChainDropped counts a retired chain.
func RecordChainDropped(reason string) {
	ChainsDropped.WithLabelValues(reason).Inc()
}

// RecordCheckpointSave counts a checkpoint attempt.
func RecordCheckpointSave(blob, outcome string) {
	CheckpointSaves.WithLabelValues(blob, outcome).Inc()
}

// UpdateBreakerState maps a breaker state name onto the gauge.
func UpdateBreakerState(store, state string) {
	var v float64
	switch state {
	case "open":
		v = 1
	case "half-open", "half_open":
		v = 2
	}
	CheckpointBreakerState.WithLabelValues(store).Set(v)
}
