package optimizer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/Ceezar89/ezbot-sub000/internal/metrics"
	"github.com/Ceezar89/ezbot-sub000/pkg/params"
)

// ============================================================================
// EXHAUSTIVE SEARCH
// ============================================================================

// runExhaustive evaluates every combination of space exactly once. Workers
// claim contiguous index batches from a shared counter and position a private
// clone of the space at the batch start.
func (o *Orchestrator) runExhaustive(ctx context.Context, space *params.Vector) (*Report, error) {
	total := space.PermutationCount()
	if total == math.MaxUint64 {
		return nil, fmt.Errorf("search space is too large to enumerate")
	}
	batch := uint64(o.cfg.BatchSize)

	var (
		next batchCounter
		done atomic.Uint64
	)

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < o.cfg.threads(); w++ {
		local := space.Clone()
		g.Go(func() error {
			for {
				if err := gctx.Err(); err != nil {
					return err
				}
				start, ok := next.claim(batch, total)
				if !ok {
					return nil
				}
				end := min(start+batch, total)

				local.Seek(start)
				for i := start; i < end; i++ {
					if err := gctx.Err(); err != nil {
						return err
					}
					o.exhaustiveStep(local)
					local.Next()
				}

				finished := done.Add(end - start)
				o.progress.Do(func() {
					o.logger.Info().
						Uint64("evaluated", finished).
						Uint64("total", total).
						Float64("progress_pct", float64(finished)/float64(total)*100).
						Float64("best_fitness", o.best.Fitness()).
						Msg("Exhaustive search progress")
				})
			}
		})
	}

	report := &Report{Combinations: total, StopReason: StopCompleted}
	if err := g.Wait(); err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		report.StopReason = StopCancelled
	}
	return report, nil
}

// exhaustiveStep evaluates the current combination of v. v is not retained;
// the global best and the retention set clone it.
func (o *Orchestrator) exhaustiveStep(v *params.Vector) {
	cand, err := o.evaluate(metrics.ModeExhaustive, v)
	if err != nil {
		o.logger.Warn().Err(err).Str("vector", v.String()).Msg("Evaluation failed")
		return
	}
	o.offer(cand)
	if o.passesFilters(cand.Result) {
		o.retained.Add(cand)
	}
}

// batchCounter hands out contiguous index ranges to concurrent workers.
type batchCounter struct {
	next atomic.Uint64
}

// claim reserves the next batch of up to size indices below total.
func (c *batchCounter) claim(size, total uint64) (uint64, bool) {
	for {
		start := c.next.Load()
		if start >= total {
			return 0, false
		}
		if c.next.CompareAndSwap(start, min(start+size, total)) {
			return start, true
		}
	}
}
