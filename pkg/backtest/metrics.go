// Performance aggregate returned by the simulator
package backtest

import (
	"fmt"
	"time"
)

// ============================================================================
// BACKTEST RESULT
// ============================================================================

// MaxProfitFactor is reported when a run has winners but no losers.
const MaxProfitFactor = 100.0

// TerminationReason explains why a simulation stopped before the data end.
type TerminationReason string

const (
	ReasonNone        TerminationReason = ""
	ReasonMaxDrawdown TerminationReason = "max_drawdown"
	ReasonInactivity  TerminationReason = "inactivity"
)

// Result is the immutable aggregate of one simulation.
type Result struct {
	InitialBalance float64 `json:"initial_balance"`
	FinalBalance   float64 `json:"final_balance"`
	NetProfit      float64 `json:"net_profit"`
	PeakEquity     float64 `json:"peak_equity"`

	// Trade statistics
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"` // Percentage of winning trades
	GrossProfit   float64 `json:"gross_profit"`
	GrossLoss     float64 `json:"gross_loss"` // Positive number
	ProfitFactor  float64 `json:"profit_factor"`
	TotalFees     float64 `json:"total_fees"`

	// Risk and activity
	MaxDrawdown       float64 `json:"max_drawdown"`        // Fraction of peak equity
	ActivityPct       float64 `json:"activity_pct"`        // Bars with an open position
	MaxInactivityDays float64 `json:"max_inactivity_days"` // Longest gap between opens/closes
	BarsEvaluated     int     `json:"bars_evaluated"`

	EarlyTerminated   bool              `json:"early_terminated"`
	TerminationReason TerminationReason `json:"termination_reason,omitempty"`

	EquityCurve []EquityPoint `json:"equity_curve,omitempty"`
}

// EquityPoint is the marked-to-market equity after one simulated bar.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
	Peak      float64   `json:"peak"`
	Drawdown  float64   `json:"drawdown"`
}

// ReturnPct returns the net profit as a percentage of the initial balance.
func (r *Result) ReturnPct() float64 {
	if r.InitialBalance == 0 {
		return 0
	}
	return r.NetProfit / r.InitialBalance * 100.0
}

// String renders a one-line summary for logs and the CLI.
func (r *Result) String() string {
	s := fmt.Sprintf("trades=%d win=%.1f%% pf=%.2f net=%.2f (%.2f%%) dd=%.2f%% active=%.1f%%",
		r.TotalTrades, r.WinRate, r.ProfitFactor, r.NetProfit, r.ReturnPct(), r.MaxDrawdown*100, r.ActivityPct)
	if r.EarlyTerminated {
		s += fmt.Sprintf(" stopped=%s", r.TerminationReason)
	}
	return s
}
