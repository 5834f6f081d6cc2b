package strategy

import (
	"github.com/Ceezar89/ezbot-sub000/pkg/backtest"
	"github.com/Ceezar89/ezbot-sub000/pkg/indicators"
	"github.com/Ceezar89/ezbot-sub000/pkg/params"
)

// MeanReversion buys closes below the lower Bollinger Band and sells closes
// above the upper one.
type MeanReversion struct {
	bands indicators.Indicator
	risk  risk
}

func meanReversionDefaults() []*params.Set {
	return []*params.Set{
		indicatorDefaults(indicators.KindBollinger),
		riskDefaults(),
	}
}

func newMeanReversion(v *params.Vector) (backtest.Strategy, error) {
	bands, err := indicator(v, indicators.KindBollinger)
	if err != nil {
		return nil, err
	}
	r, err := riskFrom(v)
	if err != nil {
		return nil, err
	}
	return &MeanReversion{bands: bands, risk: r}, nil
}

func (s *MeanReversion) GetAction(bars []backtest.Bar, index int) (backtest.Action, error) {
	if err := s.bands.Calculate(bars); err != nil {
		return backtest.Action{}, err
	}
	price := bars[index].Close
	switch s.bands.Signal(index) {
	case indicators.SignalBuy:
		return s.risk.action(backtest.TradeLong, price), nil
	case indicators.SignalSell:
		return s.risk.action(backtest.TradeShort, price), nil
	}
	return backtest.Action{}, nil
}
