package optimizer

import (
	"math/rand"
	"sort"
	"sync"
)

// tradeBuckets are the upper bounds (exclusive) of the trade-count strata used
// when sampling results to keep.
var tradeBuckets = []int{1, 5, 10, 25, 50, 100}

func tradeBucket(trades int) int {
	for i, bound := range tradeBuckets {
		if trades < bound {
			return i
		}
	}
	return len(tradeBuckets)
}

// Retention is a bounded, key-deduplicated collection of evaluated candidates.
// When it grows past its cap it keeps the top fraction by fitness and fills the
// remaining slots with a sample stratified by trade count, so the survivors
// still span low and high activity configurations.
type Retention struct {
	mu          sync.Mutex
	limit       int
	topFraction float64
	items       []Candidate
	keys        map[string]struct{}
	rng         *rand.Rand
}

// NewRetention creates a collection holding at most limit candidates.
func NewRetention(limit int, topFraction float64, seed int64) *Retention {
	return &Retention{
		limit:       limit,
		topFraction: topFraction,
		items:       make([]Candidate, 0, limit+1),
		keys:        make(map[string]struct{}, limit+1),
		rng:         rand.New(rand.NewSource(seed)),
	}
}

// Add stores a clone of c unless its key is already present.
func (r *Retention) Add(c Candidate) bool {
	if c.Result == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.keys[c.Key]; ok {
		return false
	}
	r.keys[c.Key] = struct{}{}
	r.items = append(r.items, c.clone())
	if len(r.items) > r.limit {
		r.trim()
	}
	return true
}

// trim shrinks the collection to half its cap, leaving room to grow before the
// next trim. Callers hold r.mu.
func (r *Retention) trim() {
	target := r.limit / 2
	if target < 1 {
		target = 1
	}
	sortByFitness(r.items)

	top := int(float64(target) * r.topFraction)
	kept := make([]Candidate, 0, r.limit+1)
	kept = append(kept, r.items[:top]...)

	// Stratify the rest by trade bucket and draw round-robin across buckets.
	strata := make(map[int][]Candidate)
	var order []int
	for _, c := range r.items[top:] {
		b := tradeBucket(c.Result.TotalTrades)
		if _, ok := strata[b]; !ok {
			order = append(order, b)
		}
		strata[b] = append(strata[b], c)
	}
	sort.Ints(order)
	for _, b := range order {
		s := strata[b]
		r.rng.Shuffle(len(s), func(i, j int) { s[i], s[j] = s[j], s[i] })
	}
	for len(kept) < target {
		progressed := false
		for _, b := range order {
			if len(kept) == target {
				break
			}
			if s := strata[b]; len(s) > 0 {
				kept = append(kept, s[0])
				strata[b] = s[1:]
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}

	r.items = kept
	r.keys = make(map[string]struct{}, r.limit+1)
	for _, c := range kept {
		r.keys[c.Key] = struct{}{}
	}
}

// Len returns the number of retained candidates.
func (r *Retention) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Top returns up to n candidates by descending fitness.
func (r *Retention) Top(n int) []Candidate {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Candidate, len(r.items))
	copy(out, r.items)
	sortByFitness(out)
	if n >= 0 && n < len(out) {
		out = out[:n]
	}
	return out
}

func sortByFitness(cs []Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].Fitness != cs[j].Fitness {
			return cs[i].Fitness > cs[j].Fitness
		}
		return cs[i].Key < cs[j].Key
	})
}
