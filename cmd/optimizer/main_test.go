package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ceezar89/ezbot-sub000/internal/cache"
	"github.com/Ceezar89/ezbot-sub000/internal/checkpoint"
	"github.com/Ceezar89/ezbot-sub000/internal/config"
	"github.com/Ceezar89/ezbot-sub000/internal/optimizer"
	"github.com/Ceezar89/ezbot-sub000/pkg/backtest"
	"github.com/Ceezar89/ezbot-sub000/pkg/strategy"
)

func testReport(t *testing.T) *optimizer.Report {
	t.Helper()
	v, err := strategy.DefaultVector(strategy.TypeBreakout)
	require.NoError(t, err)

	best := optimizer.Candidate{
		Key:     v.CanonicalKey(),
		Vector:  v,
		Result:  &backtest.Result{InitialBalance: 1000, NetProfit: 50, TotalTrades: 12, WinRate: 58.3},
		Fitness: 7.25,
	}
	return &optimizer.Report{
		RunID:        "run-1",
		StrategyType: strategy.TypeBreakout,
		Mode:         optimizer.ModeExhaustive,
		Best:         &best,
		Top:          []optimizer.Candidate{best},
		Simulations:  90,
		CacheHits:    10,
		StopReason:   optimizer.StopCompleted,
		Duration:     1500 * time.Millisecond,
	}
}

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	printReport(&buf, testReport(t), 5)

	out := buf.String()
	assert.Contains(t, out, "strategy=breakout")
	assert.Contains(t, out, "Evaluations: 100 (simulated 90, cached 10, failed 0)")
	assert.Contains(t, out, "Best fitness 7.2500")
	assert.Contains(t, out, "Top 1 retained")
	assert.Contains(t, out, "FITNESS")
	assert.Contains(t, out, "7.2500")

	buf.Reset()
	printReport(&buf, &optimizer.Report{StopReason: optimizer.StopCancelled}, 5)
	assert.Contains(t, buf.String(), "No configuration was evaluated successfully.")
}

func TestWriteReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, writeReportFile(path, testReport(t)))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "run-1", decoded["run_id"])
	assert.Equal(t, "completed", decoded["stop_reason"])
	assert.Equal(t, "1.5s", decoded["duration_text"])

	best, ok := decoded["best"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 7.25, best["fitness"])
	assert.Contains(t, best, "params")
	assert.Len(t, decoded["top"], 1)
}

func TestPrintStrategies(t *testing.T) {
	var buf bytes.Buffer
	printStrategies(&buf)
	for _, typ := range strategy.Types() {
		assert.Contains(t, buf.String(), typ)
	}
}

func TestLoadSpace(t *testing.T) {
	v, err := loadSpace(config.SearchConfig{Strategy: strategy.TypeBreakout})
	require.NoError(t, err)
	assert.Positive(t, v.PermutationCount())

	path := filepath.Join(t.TempDir(), "space.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sets:\n  - type: unrelated\n    params:\n      - {name: a, kind: int, min: 1, max: 2, step: 1}\n"), 0o600))
	_, err = loadSpace(config.SearchConfig{Strategy: strategy.TypeBreakout, SpaceFile: path})
	assert.Error(t, err, "space must carry the strategy's sets")

	_, err = loadSpace(config.SearchConfig{Strategy: strategy.TypeBreakout, SpaceFile: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)
}

func TestOpenCheckpoint_RestoresCacheOnce(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	v, err := strategy.DefaultVector(strategy.TypeBreakout)
	require.NoError(t, err)
	saved := cache.New()
	require.True(t, saved.Store(v.CanonicalKey(), v, &backtest.Result{InitialBalance: 1000, TotalTrades: 4}))
	store, err := checkpoint.NewFileStore(dir)
	require.NoError(t, err)
	_, err = checkpoint.New(store, strategy.TypeBreakout, time.Second).Save(ctx, checkpoint.State{Cache: saved.Snapshot()})
	require.NoError(t, err)

	prevLogger := log.Logger
	t.Cleanup(func() { log.Logger = prevLogger })
	var buf bytes.Buffer
	log.Logger = zerolog.New(&buf)

	cfg := &config.Config{Checkpoint: config.CheckpointConfig{Enabled: true, Store: config.StoreFile, Dir: dir}}
	results := cache.New()
	cp, closeStore, err := openCheckpoint(ctx, cfg, strategy.TypeBreakout, results)
	require.NoError(t, err)
	defer closeStore()

	assert.NotNil(t, cp)
	assert.Equal(t, 1, results.Len())
	assert.Equal(t, 1, strings.Count(buf.String(), "Result cache restored"))
}
