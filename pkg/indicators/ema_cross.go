package indicators

import (
	"fmt"
	"math"

	"github.com/cinar/indicator/v2/trend"

	"github.com/Ceezar89/ezbot-sub000/pkg/backtest"
	"github.com/Ceezar89/ezbot-sub000/pkg/params"
)

// EMACross signals when a fast EMA crosses a slow EMA. Its value is the spread
// fast - slow.
type EMACross struct {
	set  *params.Set
	memo memo
	fast []float64
	slow []float64
}

func emaCrossDefaults() *params.Set {
	return params.MustSet(KindEMACross.String(),
		params.NewInt("fast", 5, 20, 5),
		params.NewInt("slow", 20, 60, 10),
	)
}

func newEMACross(set *params.Set) (Indicator, error) {
	if set.Int("fast", 0) < 1 || set.Int("slow", 0) < 1 {
		return nil, fmt.Errorf("ema periods must be positive")
	}
	return &EMACross{set: set}, nil
}

func (e *EMACross) Kind() Kind          { return KindEMACross }
func (e *EMACross) Params() *params.Set { return e.set }

// Calculate computes both EMA series over the closes.
func (e *EMACross) Calculate(bars []backtest.Bar) error {
	return e.memo.once(bars, func() error {
		prices := closes(bars)
		e.fast = compute(prices, trend.NewEmaWithPeriod[float64](e.set.Int("fast", 12)).Compute)
		e.slow = compute(prices, trend.NewEmaWithPeriod[float64](e.set.Int("slow", 26)).Compute)
		return nil
	})
}

// Value returns fast - slow at bar i.
func (e *EMACross) Value(i int) float64 {
	return at(e.fast, i) - at(e.slow, i)
}

// Signal is buy on the bar the fast EMA closes above the slow one and sell on
// the bar it closes below.
func (e *EMACross) Signal(i int) Signal {
	prev, cur := e.Value(i-1), e.Value(i)
	if math.IsNaN(prev) || math.IsNaN(cur) {
		return SignalNone
	}
	switch {
	case prev <= 0 && cur > 0:
		return SignalBuy
	case prev >= 0 && cur < 0:
		return SignalSell
	}
	return SignalNone
}
