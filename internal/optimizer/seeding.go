package optimizer

import (
	"context"
	"math/rand"

	"golang.org/x/sync/errgroup"

	"github.com/Ceezar89/ezbot-sub000/internal/metrics"
	"github.com/Ceezar89/ezbot-sub000/pkg/backtest"
	"github.com/Ceezar89/ezbot-sub000/pkg/params"
)

// Seeding viability is looser than the retention filters.
const (
	seedTradeFactor    = 0.5
	seedDrawdownFactor = 1.5
)

// ============================================================================
// SEEDING
// ============================================================================

// seedChains runs parallel probes that random-walk from random starting points
// and stop at the first viable candidate. Every probe evaluation is offered to
// the global best.
func (o *Orchestrator) seedChains(ctx context.Context, space *params.Vector) []Candidate {
	a := o.cfg.Annealing
	if a.SeedProbes <= 0 || a.ProbeSteps <= 0 {
		return nil
	}

	found := make([]*Candidate, a.SeedProbes)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.threads())
	for p := 0; p < a.SeedProbes; p++ {
		p := p
		rng := rand.New(rand.NewSource(o.seed ^ int64(p+1)*0x5851f42d))
		g.Go(func() error {
			v := space.Clone()
			v.Randomize(rng)
			for step := 0; step < a.ProbeSteps; step++ {
				if gctx.Err() != nil {
					return nil
				}
				cand, err := o.evaluate(metrics.ModeSeeding, v)
				if err == nil {
					o.offer(cand)
					if o.viable(cand.Result) {
						found[p] = &cand
						return nil
					}
				}
				v = v.Clone()
				v.Perturb(1, rng)
			}
			return nil
		})
	}
	_ = g.Wait()

	seeds := make([]Candidate, 0, len(found))
	for _, c := range found {
		if c != nil {
			seeds = append(seeds, *c)
		}
	}
	o.logger.Debug().Int("probes", a.SeedProbes).Int("seeds", len(seeds)).Msg("Seeding complete")
	return seeds
}

// viable applies the relaxed seeding filters. Early-terminated results are
// judged with bounds loosened by EarlyLeniency.
func (o *Orchestrator) viable(r *backtest.Result) bool {
	if r == nil {
		return false
	}
	a := o.cfg.Annealing
	minTrades := float64(o.cfg.MinTrades) * seedTradeFactor
	maxDrawdown := o.cfg.MaxDrawdown * seedDrawdownFactor
	minWinRate := a.MinWinRate
	if r.EarlyTerminated {
		minTrades /= a.EarlyLeniency
		maxDrawdown *= a.EarlyLeniency
		minWinRate /= a.EarlyLeniency
	}
	return float64(r.TotalTrades) >= minTrades &&
		r.MaxDrawdown <= maxDrawdown &&
		r.WinRate >= minWinRate
}

// initialItems builds the starting chains: one per seed, then a rotation of
// randomized starts, mild perturbations of a seed and wide perturbations of a
// seed. Without seeds every chain starts at a random point.
func (o *Orchestrator) initialItems(space *params.Vector, seeds []Candidate, n int, rng *rand.Rand) []*WorkItem {
	t0, cooling := o.cfg.Annealing.InitialTemperature, o.cfg.Annealing.CoolingRate
	items := make([]*WorkItem, 0, n)

	for i := 0; i < len(seeds) && len(items) < n; i++ {
		item := newWorkItem(seeds[i].Vector.Clone(), t0, cooling)
		item.Result = seeds[i].Result
		item.Fitness = seeds[i].Fitness
		item.BestFitness = seeds[i].Fitness
		items = append(items, item)
	}

	for i := 0; len(items) < n; i++ {
		var v *params.Vector
		switch {
		case len(seeds) == 0 || i%3 == 0:
			v = space.Clone()
			v.Randomize(rng)
		case i%3 == 1:
			v = seeds[rng.Intn(len(seeds))].Vector.Clone()
			v.Perturb(0.5, rng)
		default:
			v = seeds[rng.Intn(len(seeds))].Vector.Clone()
			v.Perturb(1, rng)
		}
		items = append(items, newWorkItem(v, t0, cooling))
	}
	return items
}
