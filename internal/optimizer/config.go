// Package optimizer searches a strategy's parameter space for the
// configuration with the best simulated performance, either exhaustively or by
// parallel simulated annealing.
package optimizer

import (
	"fmt"
	"runtime"
)

// Mode selects the search algorithm.
type Mode string

const (
	ModeExhaustive Mode = "exhaustive"
	ModeAnnealing  Mode = "annealing"
)

// ParseMode converts a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeExhaustive, ModeAnnealing:
		return Mode(s), nil
	case "grid":
		return ModeExhaustive, nil
	case "anneal", "sa":
		return ModeAnnealing, nil
	}
	return "", fmt.Errorf("unknown search mode %q", s)
}

// Config controls a search run.
type Config struct {
	Mode         Mode
	StrategyType string
	Threads      int   // <= 0 uses NumCPU-1
	Seed         int64 // 0 seeds from the clock

	// Results with fewer trades or deeper drawdown are not retained by the
	// exhaustive search and are penalized by the fitness function.
	MinTrades   int
	MaxDrawdown float64

	// SimilarityTolerance > 0 lets near-identical vectors share a cached result.
	SimilarityTolerance float64

	BatchSize            int // exhaustive: combinations claimed per batch
	RetentionCap         int
	RetentionTopFraction float64

	Fitness   FitnessWeights
	Annealing AnnealingConfig
}

// AnnealingConfig holds the simulated annealing controls.
type AnnealingConfig struct {
	InitialTemperature float64
	MinTemperature     float64
	CoolingRate        float64
	Chains             int // initial chains; <= 0 uses 2 per thread
	MaxStagnantSteps   int
	InjectionBudget    int

	ExplorationRate  float64
	ExplorationDecay float64
	ExplorationFloor float64

	// Stop when StallIterations·(1+explorationRate) global steps pass
	// without improving the global best.
	StallIterations int

	// Stop when the best fitness moved less than ConvergenceDelta (relative)
	// over ConvergenceWindow global steps while the mean chain temperature is
	// below ConvergenceTemperature.
	ConvergenceWindow      int
	ConvergenceDelta       float64
	ConvergenceTemperature float64

	MaxEvaluations int // 0 means unlimited

	// Seeding probes random-walk until a candidate is viable.
	SeedProbes    int
	ProbeSteps    int
	MinWinRate    float64 // percent
	EarlyLeniency float64 // looser viability multiplier for early-terminated candidates
}

// DefaultConfig returns the defaults used by the CLI.
func DefaultConfig() Config {
	return Config{
		Mode:                 ModeAnnealing,
		StrategyType:         "trend_rsi",
		MinTrades:            10,
		MaxDrawdown:          0.5,
		BatchSize:            64,
		RetentionCap:         1000,
		RetentionTopFraction: 0.5,
		Fitness:              DefaultFitnessWeights(),
		Annealing: AnnealingConfig{
			InitialTemperature:     10,
			MinTemperature:         0.01,
			CoolingRate:            0.97,
			MaxStagnantSteps:       60,
			InjectionBudget:        200,
			ExplorationRate:        0.5,
			ExplorationDecay:       0.999,
			ExplorationFloor:       0.05,
			StallIterations:        500,
			ConvergenceWindow:      300,
			ConvergenceDelta:       0.001,
			ConvergenceTemperature: 0.5,
			SeedProbes:             4,
			ProbeSteps:             25,
			MinWinRate:             30,
			EarlyLeniency:          2,
		},
	}
}

// threads resolves the worker count.
func (c *Config) threads() int {
	if c.Threads > 0 {
		return c.Threads
	}
	if n := runtime.NumCPU() - 1; n > 1 {
		return n
	}
	return 1
}

// chains resolves the initial chain count.
func (a *AnnealingConfig) chains(threads int) int {
	if a.Chains > 0 {
		return a.Chains
	}
	return 2 * threads
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if _, err := ParseMode(string(c.Mode)); err != nil {
		return err
	}
	if c.StrategyType == "" {
		return fmt.Errorf("strategy type is required")
	}
	if c.MinTrades < 0 {
		return fmt.Errorf("min trades must be non-negative, got %d", c.MinTrades)
	}
	if c.MaxDrawdown <= 0 || c.MaxDrawdown > 1 {
		return fmt.Errorf("max drawdown must be in (0, 1], got %v", c.MaxDrawdown)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.RetentionCap <= 0 {
		return fmt.Errorf("retention cap must be positive, got %d", c.RetentionCap)
	}
	if c.RetentionTopFraction < 0 || c.RetentionTopFraction > 1 {
		return fmt.Errorf("retention top fraction must be in [0, 1], got %v", c.RetentionTopFraction)
	}
	if c.Mode == ModeAnnealing {
		return c.Annealing.Validate()
	}
	return nil
}

// Validate checks the annealing controls.
func (a *AnnealingConfig) Validate() error {
	if a.InitialTemperature <= 0 {
		return fmt.Errorf("initial temperature must be positive, got %v", a.InitialTemperature)
	}
	if a.MinTemperature <= 0 || a.MinTemperature >= a.InitialTemperature {
		return fmt.Errorf("min temperature must be in (0, %v), got %v", a.InitialTemperature, a.MinTemperature)
	}
	if a.CoolingRate <= 0 || a.CoolingRate >= 1 {
		return fmt.Errorf("cooling rate must be in (0, 1), got %v", a.CoolingRate)
	}
	if a.MaxStagnantSteps <= 0 {
		return fmt.Errorf("max stagnant steps must be positive, got %d", a.MaxStagnantSteps)
	}
	if a.InjectionBudget < 0 {
		return fmt.Errorf("injection budget must be non-negative, got %d", a.InjectionBudget)
	}
	if a.ExplorationFloor <= 0 || a.ExplorationFloor > a.ExplorationRate || a.ExplorationRate > 1 {
		return fmt.Errorf("exploration rate %v and floor %v must satisfy 0 < floor <= rate <= 1", a.ExplorationRate, a.ExplorationFloor)
	}
	if a.ExplorationDecay <= 0 || a.ExplorationDecay > 1 {
		return fmt.Errorf("exploration decay must be in (0, 1], got %v", a.ExplorationDecay)
	}
	if a.StallIterations <= 0 {
		return fmt.Errorf("stall iterations must be positive, got %d", a.StallIterations)
	}
	if a.ConvergenceWindow < 2 {
		return fmt.Errorf("convergence window must be at least 2, got %d", a.ConvergenceWindow)
	}
	if a.MaxEvaluations < 0 {
		return fmt.Errorf("max evaluations must be non-negative, got %d", a.MaxEvaluations)
	}
	if a.EarlyLeniency < 1 {
		return fmt.Errorf("early leniency must be at least 1, got %v", a.EarlyLeniency)
	}
	return nil
}
