package indicators

import (
	"fmt"
	"math"

	"github.com/cinar/indicator/v2/momentum"

	"github.com/Ceezar89/ezbot-sub000/pkg/backtest"
	"github.com/Ceezar89/ezbot-sub000/pkg/params"
)

// RSI is the relative strength index with tunable oversold and overbought
// thresholds.
type RSI struct {
	set    *params.Set
	memo   memo
	series []float64
}

func rsiDefaults() *params.Set {
	return params.MustSet(KindRSI.String(),
		params.NewInt("period", 7, 21, 7),
		params.NewFloat("oversold", 20, 35, 5),
		params.NewFloat("overbought", 65, 80, 5),
	)
}

func newRSI(set *params.Set) (Indicator, error) {
	if set.Int("period", 0) < 1 {
		return nil, fmt.Errorf("rsi period must be positive")
	}
	if set.Float("oversold", 30) >= set.Float("overbought", 70) {
		return nil, fmt.Errorf("rsi oversold threshold must be below overbought")
	}
	return &RSI{set: set}, nil
}

func (r *RSI) Kind() Kind          { return KindRSI }
func (r *RSI) Params() *params.Set { return r.set }

func (r *RSI) Calculate(bars []backtest.Bar) error {
	return r.memo.once(bars, func() error {
		r.series = compute(closes(bars), momentum.NewRsiWithPeriod[float64](r.set.Int("period", 14)).Compute)
		return nil
	})
}

func (r *RSI) Value(i int) float64 { return at(r.series, i) }

// Signal is buy below the oversold threshold and sell above overbought.
func (r *RSI) Signal(i int) Signal {
	v := r.Value(i)
	switch {
	case math.IsNaN(v):
		return SignalNone
	case v < r.set.Float("oversold", 30):
		return SignalBuy
	case v > r.set.Float("overbought", 70):
		return SignalSell
	}
	return SignalNone
}
