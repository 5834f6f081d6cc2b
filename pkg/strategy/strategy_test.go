package strategy

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ceezar89/ezbot-sub000/pkg/backtest"
	"github.com/Ceezar89/ezbot-sub000/pkg/params"
)

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func bar(i int, open, high, low, close float64) backtest.Bar {
	return backtest.Bar{Timestamp: start.Add(time.Duration(i) * time.Hour), Open: open, High: high, Low: low, Close: close, Volume: 1}
}

func walk(n int, seed int64) []backtest.Bar {
	rng := rand.New(rand.NewSource(seed))
	bars := make([]backtest.Bar, n)
	price := 100.0
	for i := range bars {
		open := price
		price *= 1 + (rng.Float64()-0.5)*0.04
		bars[i] = bar(i, open, math.Max(open, price)*1.002, math.Min(open, price)*0.998, price)
	}
	return bars
}

func setRisk(t *testing.T, v *params.Vector, stopPct, reward float64, short bool) {
	t.Helper()
	set, ok := v.SetByType(RiskSetType)
	require.True(t, ok)
	require.NoError(t, set.Set("stop_pct", stopPct))
	require.NoError(t, set.Set("reward_ratio", reward))
	allow := 0.0
	if short {
		allow = 1
	}
	require.NoError(t, set.Set("allow_short", allow))
}

func TestNew_UnknownStrategy(t *testing.T) {
	v, err := DefaultVector(TypeBreakout)
	require.NoError(t, err)

	_, err = New("martingale", v)
	assert.ErrorIs(t, err, ErrUnknownStrategy)

	_, err = DefaultVector("martingale")
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestDefaultVectorBuildsForEveryType(t *testing.T) {
	require.Len(t, Types(), 3)
	for _, typ := range Types() {
		t.Run(typ, func(t *testing.T) {
			v, err := DefaultVector(typ)
			require.NoError(t, err)
			assert.NotEmpty(t, Describe(typ))

			_, ok := v.SetByType(RiskSetType)
			assert.True(t, ok)

			s, err := New(typ, v)
			require.NoError(t, err)

			opts := backtest.DefaultOptions()
			opts.MaxInactivityDays = 0
			_, err = backtest.Evaluate(s, walk(400, 3), opts)
			assert.NoError(t, err)
		})
	}
}

func TestDefaultStopsFitDefaultRisk(t *testing.T) {
	opts := backtest.DefaultOptions()
	opts.MaxInactivityDays = 0
	bars := walk(3000, 5)

	stop, ok := riskDefaults().Get("stop_pct")
	require.True(t, ok)
	assert.GreaterOrEqual(t, stop.Min, opts.RiskFraction*100, "tighter stops cannot afford their margin")

	for s := stop.Min; s <= stop.Max; s += stop.Step {
		v, err := DefaultVector(TypeBreakout)
		require.NoError(t, err)
		setRisk(t, v, s, 2, false)
		strat, err := New(TypeBreakout, v)
		require.NoError(t, err)

		result, err := backtest.Evaluate(strat, bars, opts)
		require.NoError(t, err)
		assert.Positive(t, result.TotalTrades, "stop_pct=%v", s)
	}
}

func TestNew_MissingSet(t *testing.T) {
	v, err := params.NewVector(riskDefaults())
	require.NoError(t, err)

	for _, typ := range Types() {
		_, err := New(typ, v)
		assert.Error(t, err, typ)
	}
}

func TestBreakout_LongOnNewHigh(t *testing.T) {
	v, err := DefaultVector(TypeBreakout)
	require.NoError(t, err)
	setRisk(t, v, 2, 2, false)

	s, err := New(TypeBreakout, v)
	require.NoError(t, err)

	var bars []backtest.Bar
	for i := 0; i < 15; i++ {
		bars = append(bars, bar(i, 100, 101, 99, 100))
	}
	bars = append(bars, bar(15, 100, 111, 100, 110))

	action, err := s.GetAction(bars, 14)
	require.NoError(t, err)
	assert.Equal(t, backtest.TradeNone, action.Type)

	action, err = s.GetAction(bars, 15)
	require.NoError(t, err)
	assert.Equal(t, backtest.TradeLong, action.Type)
	assert.InDelta(t, 107.8, action.StopLoss, 1e-9)
	assert.InDelta(t, 114.4, action.TakeProfit, 1e-9)
}

func TestBreakout_ShortsOnlyWhenAllowed(t *testing.T) {
	var bars []backtest.Bar
	for i := 0; i < 15; i++ {
		bars = append(bars, bar(i, 100, 101, 99, 100))
	}
	bars = append(bars, bar(15, 100, 100, 89, 90))

	for _, allow := range []bool{false, true} {
		v, err := DefaultVector(TypeBreakout)
		require.NoError(t, err)
		setRisk(t, v, 2, 1, allow)
		s, err := New(TypeBreakout, v)
		require.NoError(t, err)

		action, err := s.GetAction(bars, 15)
		require.NoError(t, err)
		if !allow {
			assert.Equal(t, backtest.TradeNone, action.Type)
			continue
		}
		assert.Equal(t, backtest.TradeShort, action.Type)
		assert.InDelta(t, 91.8, action.StopLoss, 1e-9)
		assert.InDelta(t, 88.2, action.TakeProfit, 1e-9)
	}
}

func TestNew_ReadsValuesOnce(t *testing.T) {
	v, err := DefaultVector(TypeBreakout)
	require.NoError(t, err)
	setRisk(t, v, 2, 2, false)
	s, err := New(TypeBreakout, v)
	require.NoError(t, err)

	setRisk(t, v, 4, 3, true)
	assert.Equal(t, 2.0, s.(*Breakout).risk.stopPct)
}

func TestTrendRSI_ActionsCarryValidStops(t *testing.T) {
	v, err := DefaultVector(TypeTrendRSI)
	require.NoError(t, err)
	setRisk(t, v, 2, 2, true)
	s, err := New(TypeTrendRSI, v)
	require.NoError(t, err)

	bars := walk(500, 11)
	actions := 0
	for i := range bars {
		action, err := s.GetAction(bars, i)
		require.NoError(t, err)
		price := bars[i].Close
		switch action.Type {
		case backtest.TradeLong:
			actions++
			assert.Less(t, action.StopLoss, price)
			assert.Greater(t, action.TakeProfit, price)
		case backtest.TradeShort:
			actions++
			assert.Greater(t, action.StopLoss, price)
			assert.Less(t, action.TakeProfit, price)
		}
	}
	assert.Positive(t, actions, "a random walk produces EMA crosses")
}

func TestEvaluateIsDeterministicPerVector(t *testing.T) {
	bars := walk(600, 21)
	opts := backtest.DefaultOptions()
	opts.MaxInactivityDays = 0

	run := func() *backtest.Result {
		v, err := DefaultVector(TypeTrendRSI)
		require.NoError(t, err)
		v.Seek(7)
		s, err := New(TypeTrendRSI, v)
		require.NoError(t, err)
		res, err := backtest.Evaluate(s, bars, opts)
		require.NoError(t, err)
		return res
	}

	assert.Equal(t, run(), run())
}
