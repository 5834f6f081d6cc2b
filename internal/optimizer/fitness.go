package optimizer

import (
	"math"

	"github.com/Ceezar89/ezbot-sub000/pkg/backtest"
)

// WorstFitness scores candidates whose evaluation failed. It is finite so that
// Metropolis and convergence arithmetic stay well defined.
const WorstFitness = -1e9

// FitnessWeights parameterize Score.
type FitnessWeights struct {
	Profit             float64 // per percent of return
	Frequency          float64 // full bonus at TargetTrades
	TargetTrades       int
	Drawdown           float64 // per percent of max drawdown
	Inactivity         float64 // per day of the longest flat stretch
	InsufficientTrades float64 // scaled by the missing fraction of MinTrades
	EarlyTermination   float64 // flat penalty
}

// DefaultFitnessWeights returns the weights used by DefaultConfig.
func DefaultFitnessWeights() FitnessWeights {
	return FitnessWeights{
		Profit:             1.0,
		Frequency:          5.0,
		TargetTrades:       50,
		Drawdown:           0.5,
		Inactivity:         0.1,
		InsufficientTrades: 20,
		EarlyTermination:   25,
	}
}

// Score is the single fitness function of the optimizer:
//
//	profit·return%
//	+ frequency·min(trades, target)/target
//	- drawdown·maxDrawdown%
//	- inactivity·maxInactivityDays
//	- insufficient·(minTrades - trades)/minTrades   when trades < minTrades
//	- earlyTermination                              when stopped early
//
// Higher is better.
func Score(r *backtest.Result, w FitnessWeights, minTrades int) float64 {
	if r == nil || r.InitialBalance <= 0 {
		return WorstFitness
	}

	score := w.Profit * r.ReturnPct()

	if w.TargetTrades > 0 {
		freq := math.Min(float64(r.TotalTrades), float64(w.TargetTrades)) / float64(w.TargetTrades)
		score += w.Frequency * freq
	}

	score -= w.Drawdown * r.MaxDrawdown * 100
	score -= w.Inactivity * r.MaxInactivityDays

	if minTrades > 0 && r.TotalTrades < minTrades {
		missing := float64(minTrades-r.TotalTrades) / float64(minTrades)
		score -= w.InsufficientTrades * missing
	}
	if r.EarlyTerminated {
		score -= w.EarlyTermination
	}

	if math.IsNaN(score) || math.IsInf(score, 0) {
		return WorstFitness
	}
	return score
}

// acceptProbability is the Metropolis criterion: 1 for improvements,
// exp(-(current-candidate)/temperature) otherwise.
func acceptProbability(current, candidate, temperature float64) float64 {
	if candidate >= current {
		return 1
	}
	if temperature <= 0 {
		return 0
	}
	return math.Exp(-(current - candidate) / temperature)
}
