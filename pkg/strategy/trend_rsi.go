package strategy

import (
	"math"

	"github.com/Ceezar89/ezbot-sub000/pkg/backtest"
	"github.com/Ceezar89/ezbot-sub000/pkg/indicators"
	"github.com/Ceezar89/ezbot-sub000/pkg/params"
)

// TrendRSI goes long on a bullish EMA cross unless RSI is overbought, and short
// on a bearish cross unless RSI is oversold.
type TrendRSI struct {
	cross indicators.Indicator
	rsi   indicators.Indicator
	risk  risk
}

func trendRSIDefaults() []*params.Set {
	return []*params.Set{
		indicatorDefaults(indicators.KindEMACross),
		indicatorDefaults(indicators.KindRSI),
		riskDefaults(),
	}
}

func newTrendRSI(v *params.Vector) (backtest.Strategy, error) {
	cross, err := indicator(v, indicators.KindEMACross)
	if err != nil {
		return nil, err
	}
	rsi, err := indicator(v, indicators.KindRSI)
	if err != nil {
		return nil, err
	}
	r, err := riskFrom(v)
	if err != nil {
		return nil, err
	}
	return &TrendRSI{cross: cross, rsi: rsi, risk: r}, nil
}

func (s *TrendRSI) GetAction(bars []backtest.Bar, index int) (backtest.Action, error) {
	if err := s.cross.Calculate(bars); err != nil {
		return backtest.Action{}, err
	}
	if err := s.rsi.Calculate(bars); err != nil {
		return backtest.Action{}, err
	}

	rsi := s.rsi.Value(index)
	if math.IsNaN(rsi) {
		return backtest.Action{}, nil
	}
	rsiSignal := s.rsi.Signal(index)
	price := bars[index].Close

	switch s.cross.Signal(index) {
	case indicators.SignalBuy:
		if rsiSignal != indicators.SignalSell {
			return s.risk.action(backtest.TradeLong, price), nil
		}
	case indicators.SignalSell:
		if rsiSignal != indicators.SignalBuy {
			return s.risk.action(backtest.TradeShort, price), nil
		}
	}
	return backtest.Action{}, nil
}
