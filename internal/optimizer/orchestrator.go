package optimizer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/Ceezar89/ezbot-sub000/internal/cache"
	"github.com/Ceezar89/ezbot-sub000/internal/checkpoint"
	"github.com/Ceezar89/ezbot-sub000/internal/metrics"
	"github.com/Ceezar89/ezbot-sub000/pkg/backtest"
	"github.com/Ceezar89/ezbot-sub000/pkg/params"
	"github.com/Ceezar89/ezbot-sub000/pkg/strategy"
)

// progressInterval rate-limits progress logs from the workers.
const progressInterval = 5 * time.Second

// topResults is how many retained candidates a Report carries.
const topResults = 10

// Builder turns a parameter vector into a strategy.
type Builder func(*params.Vector) (backtest.Strategy, error)

// Stop reasons reported by a run.
const (
	StopCompleted      = "completed"
	StopExhausted      = "chains_exhausted"
	StopStalled        = "stalled"
	StopConverged      = "converged"
	StopMaxEvaluations = "max_evaluations"
	StopCancelled      = "cancelled"
)

// Report summarizes a finished search.
type Report struct {
	RunID        string        `json:"run_id"`
	StrategyType string        `json:"strategy_type"`
	Mode         Mode          `json:"mode"`
	Best         *Candidate    `json:"-"`
	Top          []Candidate   `json:"-"`
	Combinations uint64        `json:"combinations,omitempty"`
	Simulations  uint64        `json:"simulations"`
	CacheHits    uint64        `json:"cache_hits"`
	Failures     uint64        `json:"failures"`
	StopReason   string        `json:"stop_reason"`
	Duration     time.Duration `json:"duration"`

	// Annealing only.
	ChainsInjected  int     `json:"chains_injected,omitempty"`
	ExplorationRate float64 `json:"exploration_rate,omitempty"`
}

// Evaluations is the number of candidates covered, simulated or not.
func (r *Report) Evaluations() uint64 {
	return r.Simulations + r.CacheHits + r.Failures
}

// Orchestrator runs searches for one strategy type over one bar series. The
// cache and global best persist across runs of the same orchestrator.
type Orchestrator struct {
	cfg      Config
	bars     []backtest.Bar
	opts     backtest.Options
	build    Builder
	cache    *cache.ResultCache
	best     *GlobalBest
	retained *Retention
	runID    string
	seed     int64
	logger   zerolog.Logger
	progress *rate.Sometimes

	simulations atomic.Uint64
	cacheHits   atomic.Uint64
	failures    atomic.Uint64
}

// New creates an orchestrator. A nil cache starts empty; a nil builder uses
// the registered strategy factory for cfg.StrategyType.
func New(cfg Config, bars []backtest.Bar, opts backtest.Options, results *cache.ResultCache, build Builder) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid search config: %w", err)
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid backtest options: %w", err)
	}
	if len(bars) <= opts.WarmupBars+1 {
		return nil, fmt.Errorf("%w: %d bars with a warm-up of %d", backtest.ErrInsufficientData, len(bars), opts.WarmupBars)
	}
	if build == nil {
		if _, err := strategy.DefaultVector(cfg.StrategyType); err != nil {
			return nil, err
		}
		typ := cfg.StrategyType
		build = func(v *params.Vector) (backtest.Strategy, error) {
			return strategy.New(typ, v)
		}
	}
	if results == nil {
		results = cache.New()
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	runID := uuid.NewString()

	return &Orchestrator{
		cfg:      cfg,
		bars:     bars,
		opts:     opts,
		build:    build,
		cache:    results,
		best:     &GlobalBest{},
		retained: NewRetention(cfg.RetentionCap, cfg.RetentionTopFraction, seed),
		runID:    runID,
		seed:     seed,
		logger: log.With().
			Str("component", "optimizer").
			Str("run_id", runID).
			Str("strategy", cfg.StrategyType).
			Logger(),
		progress: &rate.Sometimes{Interval: progressInterval},
	}, nil
}

// RunID identifies this orchestrator in logs and checkpoints.
func (o *Orchestrator) RunID() string { return o.runID }

// Cache returns the result cache.
func (o *Orchestrator) Cache() *cache.ResultCache { return o.cache }

// Best returns the global best candidate.
func (o *Orchestrator) Best() (Candidate, bool) { return o.best.Get() }

// Run searches space with the configured mode. Cancelling ctx stops the search
// after in-flight evaluations; the report then carries StopCancelled.
func (o *Orchestrator) Run(ctx context.Context, space *params.Vector) (*Report, error) {
	if space == nil {
		return nil, params.ErrEmptySpace
	}
	if space.PermutationCount() == 0 {
		return nil, params.ErrEmptySpace
	}
	o.simulations.Store(0)
	o.cacheHits.Store(0)
	o.failures.Store(0)

	start := time.Now()
	o.logger.Info().
		Str("mode", string(o.cfg.Mode)).
		Int("threads", o.cfg.threads()).
		Uint64("space", space.PermutationCount()).
		Int("bars", len(o.bars)).
		Int("cached", o.cache.Len()).
		Msg("Starting search")

	var (
		report *Report
		err    error
	)
	switch o.cfg.Mode {
	case ModeExhaustive:
		report, err = o.runExhaustive(ctx, space)
	default:
		report, err = o.runAnnealing(ctx, space)
	}
	if err != nil {
		return nil, err
	}

	report.RunID = o.runID
	report.StrategyType = o.cfg.StrategyType
	report.Mode = o.cfg.Mode
	report.Simulations = o.simulations.Load()
	report.CacheHits = o.cacheHits.Load()
	report.Failures = o.failures.Load()
	report.Duration = time.Since(start)
	report.Top = o.retained.Top(topResults)
	if best, ok := o.best.Get(); ok {
		report.Best = &best
	}
	metrics.CacheEntries.Set(float64(o.cache.Len()))
	metrics.RetainedResults.Set(float64(o.retained.Len()))

	ev := o.logger.Info().
		Str("stop_reason", report.StopReason).
		Uint64("simulations", report.Simulations).
		Uint64("cache_hits", report.CacheHits).
		Uint64("failures", report.Failures).
		Dur("duration", report.Duration)
	if report.Best != nil {
		ev = ev.Float64("best_fitness", report.Best.Fitness).Str("best", report.Best.Vector.String())
	}
	ev.Msg("Search complete")

	return report, nil
}

// evaluate scores v through the cache, simulating on a miss. A failed
// evaluation yields WorstFitness and the error; callers log and continue.
func (o *Orchestrator) evaluate(mode string, v *params.Vector) (Candidate, error) {
	key := v.CanonicalKey()
	cand := Candidate{Key: key, Vector: v, Fitness: WorstFitness}

	var (
		res *backtest.Result
		hit bool
	)
	if o.cfg.SimilarityTolerance > 0 {
		res, hit = o.cache.LookupSimilar(v, o.cfg.SimilarityTolerance)
	} else {
		res, hit = o.cache.Lookup(key)
	}
	metrics.RecordCacheLookup(hit)
	if hit {
		o.cacheHits.Add(1)
		metrics.RecordEvaluation(mode, metrics.SourceCache)
		cand.Result = res
		cand.Fitness = Score(res, o.cfg.Fitness, o.cfg.MinTrades)
		return cand, nil
	}

	s, err := o.build(v)
	if err != nil {
		o.fail(mode)
		return cand, fmt.Errorf("failed to build strategy: %w", err)
	}

	start := time.Now()
	res, err = backtest.Evaluate(s, o.bars, o.opts)
	if err != nil {
		o.fail(mode)
		return cand, fmt.Errorf("backtest failed: %w", err)
	}
	metrics.RecordSimulation(float64(time.Since(start).Microseconds())/1000.0, string(res.TerminationReason))
	metrics.RecordEvaluation(mode, metrics.SourceSimulated)
	o.simulations.Add(1)

	o.cache.Store(key, v, res)
	cand.Result = res
	cand.Fitness = Score(res, o.cfg.Fitness, o.cfg.MinTrades)
	return cand, nil
}

func (o *Orchestrator) fail(mode string) {
	o.failures.Add(1)
	metrics.RecordEvaluation(mode, metrics.SourceFailed)
}

// offer updates the global best and publishes improvements.
func (o *Orchestrator) offer(c Candidate) bool {
	if !o.best.Offer(c) {
		return false
	}
	metrics.UpdateBestFitness(o.cfg.StrategyType, c.Fitness)
	o.logger.Debug().
		Float64("fitness", c.Fitness).
		Str("vector", c.Vector.String()).
		Msg("New global best")
	return true
}

// passesFilters applies the min-trades and max-drawdown retention filters.
func (o *Orchestrator) passesFilters(r *backtest.Result) bool {
	return r != nil && r.TotalTrades >= o.cfg.MinTrades && r.MaxDrawdown <= o.cfg.MaxDrawdown
}

// ============================================================================
// CHECKPOINT BOUNDARY
// ============================================================================

// Checkpoint returns the best candidate and the cache contents for
// persistence. It implements checkpoint.Source.
func (o *Orchestrator) Checkpoint() checkpoint.State {
	state := checkpoint.State{Cache: o.cache.Snapshot()}
	if best, ok := o.best.Get(); ok {
		state.Best = &checkpoint.Best{
			RunID:        o.runID,
			StrategyType: o.cfg.StrategyType,
			Vector:       best.Vector.Spec(),
			Result:       best.Result,
			Fitness:      best.Fitness,
		}
	}
	return state
}

// RestoreBest seeds the global best from a previous run. The stored result is
// rescored with the current fitness weights.
func (o *Orchestrator) RestoreBest(best *checkpoint.Best) error {
	if best == nil || best.Result == nil {
		return errors.New("checkpoint has no best result")
	}
	if best.StrategyType != "" && best.StrategyType != o.cfg.StrategyType {
		return fmt.Errorf("checkpoint is for strategy %q, not %q", best.StrategyType, o.cfg.StrategyType)
	}
	v, err := params.FromSpec(best.Vector)
	if err != nil {
		return fmt.Errorf("invalid checkpoint vector: %w", err)
	}
	o.offer(Candidate{
		Key:     v.CanonicalKey(),
		Vector:  v,
		Result:  best.Result,
		Fitness: Score(best.Result, o.cfg.Fitness, o.cfg.MinTrades),
	})
	return nil
}

// Status reports live progress for the health endpoint.
func (o *Orchestrator) Status() any {
	status := map[string]any{
		"run_id":      o.runID,
		"strategy":    o.cfg.StrategyType,
		"mode":        o.cfg.Mode,
		"simulations": o.simulations.Load(),
		"cache_hits":  o.cacheHits.Load(),
		"failures":    o.failures.Load(),
		"cached":      o.cache.Len(),
	}
	if best, ok := o.best.Get(); ok {
		status["best_fitness"] = best.Fitness
	}
	return status
}
