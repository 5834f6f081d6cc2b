package strategy

import (
	"fmt"

	"github.com/Ceezar89/ezbot-sub000/pkg/backtest"
	"github.com/Ceezar89/ezbot-sub000/pkg/params"
)

const breakoutSetType = "breakout"

// Breakout enters when the close leaves the high/low range of the previous
// lookback bars.
type Breakout struct {
	lookback int
	risk     risk
}

func breakoutDefaults() []*params.Set {
	return []*params.Set{
		params.MustSet(breakoutSetType, params.NewInt("lookback", 10, 50, 10)),
		riskDefaults(),
	}
}

func newBreakout(v *params.Vector) (backtest.Strategy, error) {
	set, ok := v.SetByType(breakoutSetType)
	if !ok {
		return nil, fmt.Errorf("missing %q parameter set", breakoutSetType)
	}
	lookback := set.Int("lookback", 20)
	if lookback < 1 {
		return nil, fmt.Errorf("lookback must be positive, got %d", lookback)
	}
	r, err := riskFrom(v)
	if err != nil {
		return nil, err
	}
	return &Breakout{lookback: lookback, risk: r}, nil
}

func (s *Breakout) GetAction(bars []backtest.Bar, index int) (backtest.Action, error) {
	if index < s.lookback {
		return backtest.Action{}, nil
	}
	high, low := bars[index-s.lookback].High, bars[index-s.lookback].Low
	for _, b := range bars[index-s.lookback+1 : index] {
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
	}

	price := bars[index].Close
	switch {
	case price > high:
		return s.risk.action(backtest.TradeLong, price), nil
	case price < low:
		return s.risk.action(backtest.TradeShort, price), nil
	}
	return backtest.Action{}, nil
}
