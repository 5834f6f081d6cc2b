package optimizer

import (
	"sync"

	"github.com/Ceezar89/ezbot-sub000/pkg/backtest"
	"github.com/Ceezar89/ezbot-sub000/pkg/params"
)

// Candidate is one evaluated configuration.
type Candidate struct {
	Key     string
	Vector  *params.Vector
	Result  *backtest.Result
	Fitness float64
}

func (c Candidate) clone() Candidate {
	if c.Vector != nil {
		c.Vector = c.Vector.Clone()
	}
	return c
}

// GlobalBest is the best candidate seen by any worker. It changes only on a
// strictly greater fitness.
type GlobalBest struct {
	mu   sync.Mutex
	best *Candidate
}

// Offer replaces the best when c is strictly better and reports whether it did.
// The vector is cloned on replacement.
func (g *GlobalBest) Offer(c Candidate) bool {
	if c.Result == nil || c.Vector == nil {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.best != nil && c.Fitness <= g.best.Fitness {
		return false
	}
	cp := c.clone()
	g.best = &cp
	return true
}

// Get returns a copy of the best candidate.
func (g *GlobalBest) Get() (Candidate, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.best == nil {
		return Candidate{}, false
	}
	return g.best.clone(), true
}

// Fitness returns the best fitness, or WorstFitness when empty.
func (g *GlobalBest) Fitness() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.best == nil {
		return WorstFitness
	}
	return g.best.Fitness
}
