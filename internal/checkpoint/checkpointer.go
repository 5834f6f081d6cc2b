package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Ceezar89/ezbot-sub000/internal/cache"
	"github.com/Ceezar89/ezbot-sub000/internal/metrics"
	"github.com/Ceezar89/ezbot-sub000/pkg/backtest"
	"github.com/Ceezar89/ezbot-sub000/pkg/params"
)

// Blob file names.
const (
	BestFile  = "best.json"
	CacheFile = "cache.json"
)

// DefaultLockTimeout is how long a save waits for a concurrent save to finish
// before giving up until the next interval.
const DefaultLockTimeout = 250 * time.Millisecond

const lockPollInterval = 5 * time.Millisecond

// Best is the persisted best configuration of a search.
type Best struct {
	RunID        string            `json:"run_id"`
	StrategyType string            `json:"strategy_type"`
	Vector       params.VectorSpec `json:"vector"`
	Result       *backtest.Result  `json:"result"`
	Fitness      float64           `json:"fitness"`
	SavedAt      time.Time         `json:"saved_at"`
}

type cacheFile struct {
	StrategyType string                `json:"strategy_type"`
	SavedAt      time.Time             `json:"saved_at"`
	Entries      []cache.SnapshotEntry `json:"entries"`
}

// State is what a periodic checkpoint writes.
type State struct {
	Best  *Best
	Cache []cache.SnapshotEntry
}

// Source produces checkpoint state; the optimizer implements it.
type Source interface {
	Checkpoint() State
}

// Checkpointer saves and restores optimizer state for one strategy type.
// Saves are serialized; a save that cannot take the lock within the lock
// timeout is skipped rather than queued.
type Checkpointer struct {
	store        Store
	strategyType string
	lockTimeout  time.Duration
	mu           sync.Mutex
	logger       zerolog.Logger
}

// New creates a Checkpointer. A lockTimeout of 0 uses DefaultLockTimeout.
func New(store Store, strategyType string, lockTimeout time.Duration) *Checkpointer {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &Checkpointer{
		store:        store,
		strategyType: strategyType,
		lockTimeout:  lockTimeout,
		logger: log.With().
			Str("component", "checkpoint").
			Str("strategy", strategyType).
			Logger(),
	}
}

// tryLock polls the save lock until the timeout.
func (c *Checkpointer) tryLock() bool {
	deadline := time.Now().Add(c.lockTimeout)
	for {
		if c.mu.TryLock() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(lockPollInterval)
	}
}

// Save writes the best result (when present) and the cache snapshot. It
// returns false without error when another save held the lock.
func (c *Checkpointer) Save(ctx context.Context, state State) (bool, error) {
	if !c.tryLock() {
		c.logger.Debug().Msg("Checkpoint in progress, skipping save")
		metrics.RecordCheckpointSave("state", metrics.CheckpointSkipped)
		return false, nil
	}
	defer c.mu.Unlock()

	var errs []error
	if state.Best != nil {
		if err := c.saveBest(ctx, state.Best); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.saveCache(ctx, state.Cache); err != nil {
		errs = append(errs, err)
	}
	return true, errors.Join(errs...)
}

// SaveBest writes only the best result.
func (c *Checkpointer) SaveBest(ctx context.Context, best *Best) (bool, error) {
	if !c.tryLock() {
		metrics.RecordCheckpointSave(BestFile, metrics.CheckpointSkipped)
		return false, nil
	}
	defer c.mu.Unlock()
	return true, c.saveBest(ctx, best)
}

func (c *Checkpointer) saveBest(ctx context.Context, best *Best) error {
	if best.SavedAt.IsZero() {
		best.SavedAt = time.Now().UTC()
	}
	if best.StrategyType == "" {
		best.StrategyType = c.strategyType
	}
	return c.write(ctx, BestFile, best)
}

func (c *Checkpointer) saveCache(ctx context.Context, entries []cache.SnapshotEntry) error {
	return c.write(ctx, CacheFile, cacheFile{
		StrategyType: c.strategyType,
		SavedAt:      time.Now().UTC(),
		Entries:      entries,
	})
}

func (c *Checkpointer) write(ctx context.Context, file string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		metrics.RecordCheckpointSave(file, metrics.CheckpointFailed)
		return fmt.Errorf("failed to marshal %s: %w", file, err)
	}
	if err := c.store.Save(ctx, Key(c.strategyType, file), data); err != nil {
		metrics.RecordCheckpointSave(file, metrics.CheckpointFailed)
		return err
	}
	metrics.RecordCheckpointSave(file, metrics.CheckpointSaved)
	c.logger.Debug().Str("file", file).Int("bytes", len(data)).Msg("Checkpoint saved")
	return nil
}

// LoadBest returns the saved best result. Missing or unreadable checkpoints
// yield false; the search then starts without a prior best.
func (c *Checkpointer) LoadBest(ctx context.Context) (*Best, bool) {
	data, ok := c.read(ctx, BestFile)
	if !ok {
		return nil, false
	}
	var best Best
	if err := json.Unmarshal(data, &best); err != nil || best.Result == nil {
		c.logger.Warn().Err(err).Msg("Ignoring corrupt best-result checkpoint")
		return nil, false
	}
	if _, err := params.FromSpec(best.Vector); err != nil {
		c.logger.Warn().Err(err).Msg("Ignoring best-result checkpoint with invalid vector")
		return nil, false
	}
	return &best, true
}

// LoadCache returns the saved cache entries, or nil when there are none or
// the blob is corrupt.
func (c *Checkpointer) LoadCache(ctx context.Context) []cache.SnapshotEntry {
	data, ok := c.read(ctx, CacheFile)
	if !ok {
		return nil
	}
	var file cacheFile
	if err := json.Unmarshal(data, &file); err != nil {
		c.logger.Warn().Err(err).Msg("Ignoring corrupt cache checkpoint")
		return nil
	}
	return file.Entries
}

func (c *Checkpointer) read(ctx context.Context, file string) ([]byte, bool) {
	data, err := c.store.Load(ctx, Key(c.strategyType, file))
	switch {
	case errors.Is(err, ErrNotFound):
		c.logger.Debug().Str("file", file).Msg("No checkpoint found")
		return nil, false
	case err != nil:
		c.logger.Warn().Err(err).Str("file", file).Msg("Failed to load checkpoint")
		return nil, false
	}
	return data, true
}

// Run saves src every interval until ctx is done, then saves once more with a
// fresh context so the final state is not lost on shutdown.
func (c *Checkpointer) Run(ctx context.Context, interval time.Duration, src Source) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := c.Save(ctx, src.Checkpoint()); err != nil {
				c.logger.Warn().Err(err).Msg("Periodic checkpoint failed")
			}
		case <-ctx.Done():
			finalCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if _, err := c.Save(finalCtx, src.Checkpoint()); err != nil {
				c.logger.Warn().Err(err).Msg("Final checkpoint failed")
			}
			cancel()
			return
		}
	}
}
