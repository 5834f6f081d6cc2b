package indicators

import (
	"fmt"
	"math"

	"github.com/cinar/indicator/v2/volatility"

	"github.com/Ceezar89/ezbot-sub000/pkg/backtest"
	"github.com/Ceezar89/ezbot-sub000/pkg/params"
)

// Bollinger tracks the close relative to its Bollinger Bands. The value is %B:
// 0 at the lower band and 1 at the upper band.
type Bollinger struct {
	set    *params.Set
	memo   memo
	closes []float64
	upper  []float64
	lower  []float64
}

func bollingerDefaults() *params.Set {
	return params.MustSet(KindBollinger.String(),
		params.NewInt("period", 10, 30, 10),
	)
}

func newBollinger(set *params.Set) (Indicator, error) {
	if set.Int("period", 0) < 2 {
		return nil, fmt.Errorf("bollinger period must be at least 2")
	}
	return &Bollinger{set: set}, nil
}

func (b *Bollinger) Kind() Kind          { return KindBollinger }
func (b *Bollinger) Params() *params.Set { return b.set }

func (b *Bollinger) Calculate(bars []backtest.Bar) error {
	return b.memo.once(bars, func() error {
		prices := closes(bars)
		bb := &volatility.BollingerBands[float64]{Period: b.set.Int("period", 20)}
		first, middle, third := bb.Compute(feed(prices))

		// The three outputs are produced in lockstep and must be drained together.
		var x, y []float64
		for {
			v1, ok1 := <-first
			_, ok2 := <-middle
			v3, ok3 := <-third
			if !ok1 || !ok2 || !ok3 {
				break
			}
			x = append(x, v1)
			y = append(y, v3)
		}

		b.closes = prices
		b.upper = alignRight(x, len(prices))
		b.lower = alignRight(y, len(prices))
		for i := range b.upper {
			if b.upper[i] < b.lower[i] {
				b.upper[i], b.lower[i] = b.lower[i], b.upper[i]
			}
		}
		return nil
	})
}

// Value returns %B at bar i.
func (b *Bollinger) Value(i int) float64 {
	upper, lower := at(b.upper, i), at(b.lower, i)
	width := upper - lower
	if math.IsNaN(width) || width == 0 {
		return math.NaN()
	}
	return (at(b.closes, i) - lower) / width
}

// Signal is buy when the close is below the lower band and sell above the upper.
func (b *Bollinger) Signal(i int) Signal {
	v := b.Value(i)
	switch {
	case math.IsNaN(v):
		return SignalNone
	case v < 0:
		return SignalBuy
	case v > 1:
		return SignalSell
	}
	return SignalNone
}
