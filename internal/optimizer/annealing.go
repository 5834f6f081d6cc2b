package optimizer

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Ceezar89/ezbot-sub000/internal/metrics"
	"github.com/Ceezar89/ezbot-sub000/pkg/backtest"
	"github.com/Ceezar89/ezbot-sub000/pkg/params"
)

// Chain drop reasons.
const (
	dropFrozen   = "frozen"
	dropStagnant = "stagnant"
	dropFailed   = "failed"
	dropStopped  = "stopped"
)

// WorkItem is one annealing chain. An item is owned by exactly one goroutine
// at a time: the queue hands it over, and nothing else holds a reference.
// An item without a Result is evaluated before its first step.
type WorkItem struct {
	ChainID     string
	Current     *params.Vector
	Result      *backtest.Result
	Fitness     float64
	Temperature float64
	CoolingRate float64
	Iteration   int
	Stagnant    int // steps since the chain last improved its own best
	BestFitness float64
}

func newWorkItem(v *params.Vector, temperature, coolingRate float64) *WorkItem {
	return &WorkItem{
		ChainID:     uuid.NewString(),
		Current:     v,
		Fitness:     WorstFitness,
		BestFitness: WorstFitness,
		Temperature: temperature,
		CoolingRate: coolingRate,
	}
}

// annealState is the state shared by the annealing workers. Scalars behind mu
// are touched once per step in short critical sections.
type annealState struct {
	cfg   AnnealingConfig
	space *params.Vector
	queue chan *WorkItem
	seen  *seenSet

	live      atomic.Int64
	stopped   atomic.Bool
	closeOnce sync.Once

	mu              sync.Mutex
	stopReason      string
	explorationRate float64
	budget          int
	injected        int
	sinceImproved   int
	evaluations     int
	temperatureSum  float64
	window          []float64
	windowPos       int
	windowFull      bool
}

func newAnnealState(cfg AnnealingConfig, space *params.Vector, items []*WorkItem) *annealState {
	s := &annealState{
		cfg:             cfg,
		space:           space,
		queue:           make(chan *WorkItem, len(items)),
		seen:            newSeenSet(),
		explorationRate: cfg.ExplorationRate,
		budget:          cfg.InjectionBudget,
		window:          make([]float64, cfg.ConvergenceWindow),
	}
	for _, item := range items {
		s.temperatureSum += item.Temperature
		s.queue <- item
	}
	s.live.Store(int64(len(items)))
	return s
}

// stop records the first stop reason; queued chains are dropped from then on.
func (s *annealState) stop(reason string) {
	s.mu.Lock()
	if s.stopReason == "" {
		s.stopReason = reason
	}
	s.mu.Unlock()
	s.stopped.Store(true)
}

// drop removes a chain for good. Dropping the last live chain closes the queue.
func (s *annealState) drop(item *WorkItem, reason string) {
	metrics.RecordChainDropped(reason)
	s.mu.Lock()
	s.temperatureSum -= item.Temperature
	s.mu.Unlock()
	if s.live.Add(-1) == 0 {
		s.closeOnce.Do(func() { close(s.queue) })
	}
}

// requeue hands the chain back with a private copy of its vector. The queue
// holds every live chain, so the send never blocks.
func (s *annealState) requeue(item *WorkItem) {
	if s.stopped.Load() {
		s.drop(item, dropStopped)
		return
	}
	item.Current = item.Current.Clone()
	s.queue <- item
}

// meanTemperature is the average temperature of live chains. Callers hold mu.
func (s *annealState) meanTemperature() float64 {
	live := s.live.Load()
	if live <= 0 {
		return 0
	}
	return s.temperatureSum / float64(live)
}

// ============================================================================
// ANNEALING SEARCH
// ============================================================================

// runAnnealing seeds the chain pool and runs the workers until a stop rule
// fires, every chain has been dropped, or ctx is cancelled.
func (o *Orchestrator) runAnnealing(ctx context.Context, space *params.Vector) (*Report, error) {
	a := o.cfg.Annealing
	threads := o.cfg.threads()
	rng := rand.New(rand.NewSource(o.seed))

	seeds := o.seedChains(ctx, space)
	items := o.initialItems(space, seeds, a.chains(threads), rng)
	s := newAnnealState(a, space, items)

	o.logger.Info().
		Int("chains", len(items)).
		Int("seeds", len(seeds)).
		Float64("best_fitness", o.best.Fitness()).
		Msg("Starting annealing")

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < threads; w++ {
		workerRng := rand.New(rand.NewSource(o.seed + int64(w) + 1))
		g.Go(func() error {
			o.annealWorker(gctx, s, workerRng)
			return nil
		})
	}
	_ = g.Wait()

	s.mu.Lock()
	report := &Report{
		StopReason:      s.stopReason,
		ChainsInjected:  s.injected,
		ExplorationRate: s.explorationRate,
	}
	s.mu.Unlock()
	switch {
	case ctx.Err() != nil:
		report.StopReason = StopCancelled
	case report.StopReason == "":
		report.StopReason = StopExhausted
	}
	metrics.UpdateAnnealingState(0, 0, report.ExplorationRate)
	return report, nil
}

func (o *Orchestrator) annealWorker(ctx context.Context, s *annealState, rng *rand.Rand) {
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-s.queue:
			if !ok {
				return
			}
			if s.stopped.Load() {
				s.drop(item, dropStopped)
				continue
			}
			o.annealStep(s, item, rng)
		}
	}
}

// annealStep advances one chain by one Metropolis step.
func (o *Orchestrator) annealStep(s *annealState, item *WorkItem, rng *rand.Rand) {
	if item.Result == nil {
		o.startChain(s, item, rng)
		return
	}

	candidate := item.Current.Clone()
	candidate.Perturb(item.Temperature/s.cfg.InitialTemperature, rng)

	temperature := item.Temperature
	item.Temperature *= item.CoolingRate
	item.Iteration++

	if !s.seen.add(candidate.CanonicalKey()) {
		// Already tested: cool and requeue unchanged.
		item.Stagnant++
		o.advance(s, item, temperature, false, false, rng)
		return
	}

	cand, err := o.evaluate(metrics.ModeAnnealing, candidate)
	if err != nil {
		o.logger.Warn().Err(err).Str("chain", item.ChainID).Str("vector", candidate.String()).Msg("Evaluation failed")
		item.Stagnant++
		o.advance(s, item, temperature, false, true, rng)
		return
	}

	improved := o.offer(cand)
	if o.passesFilters(cand.Result) {
		o.retained.Add(cand)
	}

	if rng.Float64() < acceptProbability(item.Fitness, cand.Fitness, temperature) {
		item.Current = cand.Vector
		item.Result = cand.Result
		item.Fitness = cand.Fitness
	}
	if item.Fitness > item.BestFitness {
		item.BestFitness = item.Fitness
		item.Stagnant = 0
	} else {
		item.Stagnant++
	}

	o.advance(s, item, temperature, improved, true, rng)
}

// startChain evaluates the starting point of a new or injected chain.
func (o *Orchestrator) startChain(s *annealState, item *WorkItem, rng *rand.Rand) {
	s.seen.add(item.Current.CanonicalKey())

	cand, err := o.evaluate(metrics.ModeAnnealing, item.Current)
	if err != nil {
		o.logger.Warn().Err(err).Str("chain", item.ChainID).Msg("Chain start failed")
		o.retire(s, item, dropFailed, rng)
		return
	}
	improved := o.offer(cand)
	if o.passesFilters(cand.Result) {
		o.retained.Add(cand)
	}
	item.Result = cand.Result
	item.Fitness = cand.Fitness
	item.BestFitness = cand.Fitness

	o.advance(s, item, item.Temperature, improved, true, rng)
}

// advance applies the global bookkeeping of one step, evaluates the stop
// rules and decides whether the chain continues.
func (o *Orchestrator) advance(s *annealState, item *WorkItem, prevTemperature float64, improved, evaluated bool, rng *rand.Rand) {
	a := s.cfg
	best := o.best.Fitness()

	s.mu.Lock()
	s.temperatureSum += item.Temperature - prevTemperature
	if evaluated {
		s.evaluations++
	}
	s.explorationRate = math.Max(s.explorationRate*a.ExplorationDecay, a.ExplorationFloor)
	if improved {
		s.sinceImproved = 0
	} else {
		s.sinceImproved++
	}

	oldest := s.window[s.windowPos]
	s.window[s.windowPos] = best
	s.windowPos = (s.windowPos + 1) % len(s.window)
	full := s.windowFull
	if s.windowPos == 0 {
		s.windowFull = true
	}

	meanT := s.meanTemperature()
	explorationRate := s.explorationRate
	evaluations := s.evaluations

	reason := ""
	switch {
	case float64(s.sinceImproved) > float64(a.StallIterations)*(1+explorationRate):
		reason = StopStalled
	case full && meanT < a.ConvergenceTemperature &&
		math.Abs(best-oldest)/math.Max(math.Abs(best), 1) < a.ConvergenceDelta:
		reason = StopConverged
	case a.MaxEvaluations > 0 && evaluations >= a.MaxEvaluations:
		reason = StopMaxEvaluations
	}
	s.mu.Unlock()

	if reason != "" && !s.stopped.Load() {
		o.logger.Info().
			Str("reason", reason).
			Int("evaluations", evaluations).
			Float64("best_fitness", best).
			Float64("mean_temperature", meanT).
			Msg("Annealing stop rule triggered")
		s.stop(reason)
	}

	o.progress.Do(func() {
		live := s.live.Load()
		metrics.UpdateAnnealingState(live, meanT, explorationRate)
		metrics.RetainedResults.Set(float64(o.retained.Len()))
		o.logger.Info().
			Int64("live_chains", live).
			Int("evaluations", evaluations).
			Float64("mean_temperature", meanT).
			Float64("exploration_rate", explorationRate).
			Float64("best_fitness", best).
			Msg("Annealing progress")
	})

	switch {
	case item.Temperature < a.MinTemperature:
		o.retire(s, item, dropFrozen, rng)
	case item.Stagnant >= a.MaxStagnantSteps:
		o.retire(s, item, dropStagnant, rng)
	default:
		s.requeue(item)
	}
}

// retire ends a chain. While the injection budget lasts, the chain may be
// replaced by a fresh one at the initial temperature, started either at a
// random point or at a perturbation of the global best.
func (o *Orchestrator) retire(s *annealState, item *WorkItem, reason string, rng *rand.Rand) {
	if s.stopped.Load() {
		s.drop(item, dropStopped)
		return
	}

	s.mu.Lock()
	inject := s.budget > 0 && rng.Float64() < s.explorationRate
	if inject {
		s.budget--
		s.injected++
		s.temperatureSum += s.cfg.InitialTemperature - item.Temperature
	}
	s.mu.Unlock()

	if !inject {
		s.drop(item, reason)
		return
	}
	metrics.RecordChainDropped(reason)
	metrics.ChainsInjected.Inc()

	var start *params.Vector
	if best, ok := o.best.Get(); ok && rng.Intn(2) == 0 {
		start = best.Vector
		start.Perturb(1, rng)
	} else {
		start = s.space.Clone()
		start.Randomize(rng)
	}
	s.requeue(newWorkItem(start, s.cfg.InitialTemperature, s.cfg.CoolingRate))
}
