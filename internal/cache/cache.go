// Package cache holds backtest results keyed by parameter fingerprint so that
// the optimizer never simulates the same configuration twice.
package cache

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Ceezar89/ezbot-sub000/pkg/backtest"
	"github.com/Ceezar89/ezbot-sub000/pkg/params"
)

// numShards must be a power of two.
const numShards = 64

type entry struct {
	vector *params.Vector
	result *backtest.Result
}

type shard struct {
	mu    sync.RWMutex
	items map[string]entry
}

// ResultCache is a concurrent, append-only map from canonical parameter key to
// backtest result. Each key also keeps the vector it was computed for so that
// near-identical configurations can be served by LookupSimilar.
//
// Cached results are shared between callers and must not be modified.
type ResultCache struct {
	shards [numShards]shard
	size   atomic.Int64
	hits   atomic.Uint64
	misses atomic.Uint64
	logger zerolog.Logger
}

// Stats is a point-in-time view of cache usage.
type Stats struct {
	Entries int
	Hits    uint64
	Misses  uint64
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// New creates an empty cache.
func New() *ResultCache {
	c := &ResultCache{
		logger: log.With().Str("component", "result_cache").Logger(),
	}
	for i := range c.shards {
		c.shards[i].items = make(map[string]entry, 64)
	}
	return c
}

func (c *ResultCache) shardFor(key string) *shard {
	return &c.shards[xxhash.Sum64String(key)&(numShards-1)]
}

// Lookup returns the result stored under key.
func (c *ResultCache) Lookup(key string) (*backtest.Result, bool) {
	s := c.shardFor(key)
	s.mu.RLock()
	e, ok := s.items[key]
	s.mu.RUnlock()

	if ok {
		c.hits.Add(1)
		return e.result, true
	}
	c.misses.Add(1)
	return nil, false
}

// Store records result under key. The first write for a key wins; Store
// reports whether this call inserted. The vector is cloned.
func (c *ResultCache) Store(key string, vector *params.Vector, result *backtest.Result) bool {
	if result == nil || vector == nil {
		return false
	}
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[key]; exists {
		return false
	}
	s.items[key] = entry{vector: vector.Clone(), result: result}
	c.size.Add(1)
	return true
}

// LookupSimilar returns a cached result whose vector is Similar to v within
// tolerance. An exact key match is tried first; otherwise every entry with the
// same shape is scanned. Lookups count as a hit or a miss once.
func (c *ResultCache) LookupSimilar(v *params.Vector, tolerance float64) (*backtest.Result, bool) {
	key := v.CanonicalKey()
	s := c.shardFor(key)
	s.mu.RLock()
	e, ok := s.items[key]
	s.mu.RUnlock()
	if ok {
		c.hits.Add(1)
		return e.result, true
	}

	if tolerance > 0 {
		shape := v.Shape()
		for i := range c.shards {
			s := &c.shards[i]
			s.mu.RLock()
			for _, e := range s.items {
				if e.vector.Shape() == shape && v.Similar(e.vector, tolerance) {
					s.mu.RUnlock()
					c.hits.Add(1)
					return e.result, true
				}
			}
			s.mu.RUnlock()
		}
	}

	c.misses.Add(1)
	return nil, false
}

// Len returns the number of cached results.
func (c *ResultCache) Len() int {
	return int(c.size.Load())
}

// Stats returns the current counters.
func (c *ResultCache) Stats() Stats {
	return Stats{
		Entries: c.Len(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}

// ============================================================================
// SNAPSHOT / RESTORE
// ============================================================================

// SnapshotEntry is the persisted form of one cache entry.
type SnapshotEntry struct {
	Key    string            `json:"key"`
	Vector params.VectorSpec `json:"vector"`
	Result *backtest.Result  `json:"result"`
}

// Snapshot returns every entry sorted by key.
func (c *ResultCache) Snapshot() []SnapshotEntry {
	out := make([]SnapshotEntry, 0, c.Len())
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.RLock()
		for key, e := range s.items {
			out = append(out, SnapshotEntry{Key: key, Vector: e.vector.Spec(), Result: e.result})
		}
		s.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Restore loads snapshot entries. Keys are recomputed from the vectors;
// entries without a result or with an invalid vector are skipped. It returns
// the number of entries inserted and skipped.
func (c *ResultCache) Restore(entries []SnapshotEntry) (restored, skipped int) {
	for i, se := range entries {
		if se.Result == nil {
			c.logger.Warn().Int("index", i).Str("key", se.Key).Msg("Skipping cache entry without result")
			skipped++
			continue
		}
		v, err := params.FromSpec(se.Vector)
		if err != nil {
			c.logger.Warn().Err(err).Int("index", i).Str("key", se.Key).Msg("Skipping malformed cache entry")
			skipped++
			continue
		}
		if c.Store(v.CanonicalKey(), v, se.Result) {
			restored++
		}
	}

	c.logger.Info().
		Int("restored", restored).
		Int("skipped", skipped).
		Int("entries", c.Len()).
		Msg("Result cache restored")
	return restored, skipped
}
