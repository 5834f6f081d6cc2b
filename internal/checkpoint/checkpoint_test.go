package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ceezar89/ezbot-sub000/internal/cache"
	"github.com/Ceezar89/ezbot-sub000/pkg/backtest"
	"github.com/Ceezar89/ezbot-sub000/pkg/params"
)

func testVector(t *testing.T, fast int) *params.Vector {
	t.Helper()
	set := params.MustSet("ema_cross", params.NewInt("fast", 2, 20, 1), params.NewInt("slow", 20, 60, 10))
	require.NoError(t, set.Set("fast", float64(fast)))
	v, err := params.NewVector(set)
	require.NoError(t, err)
	return v
}

func testState(t *testing.T) State {
	t.Helper()
	c := cache.New()
	for fast := 2; fast < 6; fast++ {
		v := testVector(t, fast)
		c.Store(v.CanonicalKey(), v, &backtest.Result{NetProfit: float64(fast), TotalTrades: fast})
	}
	best := testVector(t, 5)
	return State{
		Best: &Best{
			RunID:   "run-1",
			Vector:  best.Spec(),
			Result:  &backtest.Result{NetProfit: 5, TotalTrades: 5},
			Fitness: 0.75,
		},
		Cache: c.Snapshot(),
	}
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

// ============================================================================
// STORE TESTS
// ============================================================================

func TestValidateKey(t *testing.T) {
	tests := []struct {
		key   string
		valid bool
	}{
		{"trend_rsi/best.json", true},
		{"best.json", true},
		{"", false},
		{"/etc/passwd", false},
		{"../escape.json", false},
		{"a/../../b", false},
		{"a//b", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			err := validateKey(tt.key)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestFileStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "checkpoints"))
	require.NoError(t, err)

	_, err = store.Load(ctx, Key("trend_rsi", BestFile))
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Save(ctx, Key("trend_rsi", BestFile), []byte("first")))
	require.NoError(t, store.Save(ctx, Key("trend_rsi", BestFile), []byte("second")))

	data, err := store.Load(ctx, Key("trend_rsi", BestFile))
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	// Only the destination remains; temp files are renamed or removed.
	entries, err := os.ReadDir(filepath.Join(store.Root(), "trend_rsi"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, BestFile, entries[0].Name())
}

func TestFileStore_RejectsEscapingKeys(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	assert.Error(t, store.Save(context.Background(), "../x", []byte("x")))
}

func TestRedisStore_SaveLoad(t *testing.T) {
	mr, client := newRedis(t)
	store, err := NewRedisStore(client, RedisOptions{TTL: time.Hour})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Load(ctx, Key("breakout", CacheFile))
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Save(ctx, Key("breakout", CacheFile), []byte(`{"entries":[]}`)))
	data, err := store.Load(ctx, Key("breakout", CacheFile))
	require.NoError(t, err)
	assert.JSONEq(t, `{"entries":[]}`, string(data))

	assert.True(t, mr.Exists(defaultRedisPrefix+"breakout/cache.json"))
	assert.Equal(t, time.Hour, mr.TTL(defaultRedisPrefix+"breakout/cache.json"))
	assert.Equal(t, gobreaker.StateClosed, store.State())
}

func TestRedisStore_NilClient(t *testing.T) {
	_, err := NewRedisStore(nil, RedisOptions{})
	assert.Error(t, err)
}

func TestRedisStore_BreakerOpensWhenRedisIsDown(t *testing.T) {
	mr, client := newRedis(t)
	store, err := NewRedisStore(client, RedisOptions{Timeout: 200 * time.Millisecond})
	require.NoError(t, err)
	mr.Close()

	ctx := context.Background()
	for i := 0; i < RedisMinRequests; i++ {
		assert.Error(t, store.Save(ctx, "x/best.json", []byte("x")))
	}
	assert.Equal(t, gobreaker.StateOpen, store.State())

	err = store.Save(ctx, "x/best.json", []byte("x"))
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

// ============================================================================
// CHECKPOINTER TESTS
// ============================================================================

func TestCheckpointer_RoundTrip(t *testing.T) {
	for name, newStore := range map[string]func(t *testing.T) Store{
		"file": func(t *testing.T) Store {
			s, err := NewFileStore(t.TempDir())
			require.NoError(t, err)
			return s
		},
		"redis": func(t *testing.T) Store {
			_, client := newRedis(t)
			s, err := NewRedisStore(client, RedisOptions{})
			require.NoError(t, err)
			return s
		},
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			cp := New(newStore(t), "trend_rsi", 0)
			state := testState(t)

			saved, err := cp.Save(ctx, state)
			require.NoError(t, err)
			require.True(t, saved)

			best, ok := cp.LoadBest(ctx)
			require.True(t, ok)
			assert.Equal(t, "run-1", best.RunID)
			assert.Equal(t, "trend_rsi", best.StrategyType)
			assert.Equal(t, 0.75, best.Fitness)
			assert.False(t, best.SavedAt.IsZero())

			v, err := params.FromSpec(best.Vector)
			require.NoError(t, err)
			assert.Equal(t, testVector(t, 5).CanonicalKey(), v.CanonicalKey())

			entries := cp.LoadCache(ctx)
			require.Len(t, entries, 4)

			restored := cache.New()
			n, skipped := restored.Restore(entries)
			assert.Equal(t, 4, n)
			assert.Zero(t, skipped)
		})
	}
}

func TestCheckpointer_MissingAndCorrupt(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	cp := New(store, "breakout", 0)

	_, ok := cp.LoadBest(ctx)
	assert.False(t, ok)
	assert.Nil(t, cp.LoadCache(ctx))

	require.NoError(t, store.Save(ctx, Key("breakout", BestFile), []byte("{not json")))
	require.NoError(t, store.Save(ctx, Key("breakout", CacheFile), []byte("[1,2")))

	_, ok = cp.LoadBest(ctx)
	assert.False(t, ok)
	assert.Nil(t, cp.LoadCache(ctx))

	// Parseable but without a result.
	require.NoError(t, store.Save(ctx, Key("breakout", BestFile), []byte(`{"run_id":"x"}`)))
	_, ok = cp.LoadBest(ctx)
	assert.False(t, ok)
}

func TestCheckpointer_SkipsWhenLocked(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	cp := New(store, "breakout", 20*time.Millisecond)

	cp.mu.Lock()
	start := time.Now()
	saved, err := cp.Save(context.Background(), testState(t))
	cp.mu.Unlock()

	require.NoError(t, err)
	assert.False(t, saved)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	_, ok := cp.LoadBest(context.Background())
	assert.False(t, ok, "skipped save wrote nothing")

	saved, err = cp.SaveBest(context.Background(), testState(t).Best)
	require.NoError(t, err)
	assert.True(t, saved)
}

type staticSource struct{ state State }

func (s staticSource) Checkpoint() State { return s.state }

func TestCheckpointer_RunSavesOnShutdown(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	cp := New(store, "trend_rsi", 0)

	src := staticSource{state: testState(t)}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		cp.Run(ctx, time.Hour, src)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	best, ok := cp.LoadBest(context.Background())
	require.True(t, ok)
	assert.Equal(t, "run-1", best.RunID)
}
