package backtest

// ============================================================================
// STRATEGY INTERFACE
// ============================================================================

// TradeType is the action a strategy requests for a bar.
type TradeType int

const (
	TradeNone TradeType = iota
	TradeLong
	TradeShort
)

func (t TradeType) String() string {
	switch t {
	case TradeLong:
		return "LONG"
	case TradeShort:
		return "SHORT"
	default:
		return "NONE"
	}
}

// Action is a strategy decision. StopLoss is mandatory for Long and Short;
// a zero TakeProfit means the trade only exits on its stop or at data end.
type Action struct {
	Type       TradeType
	StopLoss   float64
	TakeProfit float64
}

// Strategy is the interface that trading strategies must implement.
//
// GetAction is called once per simulated bar with the full bar slice and the
// index of the bar being closed. Implementations must only look at
// bars[:index+1]. A returned error is treated as "no action" for that bar.
type Strategy interface {
	GetAction(bars []Bar, index int) (Action, error)
}

// StrategyFunc adapts a plain function to Strategy.
type StrategyFunc func(bars []Bar, index int) (Action, error)

// GetAction implements Strategy.
func (f StrategyFunc) GetAction(bars []Bar, index int) (Action, error) {
	return f(bars, index)
}
