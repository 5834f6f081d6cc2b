// Package backtest provides the bar-by-bar simulator used as the fitness
// function of the parameter search.
package backtest

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ============================================================================
// DATA STRUCTURES
// ============================================================================

// Bar represents OHLCV data for one period. Bars are immutable once loaded and
// always handed to the simulator in ascending timestamp order.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// marginTolerance absorbs rounding when the margin equals the free balance.
const marginTolerance = 1e-9

// ErrInsufficientData is returned when there are not enough bars beyond the
// warm-up window to run a simulation.
var ErrInsufficientData = errors.New("insufficient bars for backtest")

// trade is one open position in the per-call ledger.
type trade struct {
	side       TradeType
	entryPrice float64
	size       float64
	margin     float64
	stopLoss   float64
	takeProfit float64
}

// ledger holds the mutable state of a single Evaluate call. It is never shared.
type ledger struct {
	opts Options

	balance float64 // free balance, margin of open trades excluded
	open    []trade

	peak        float64
	maxDrawdown float64

	wins, losses          int
	grossProfit           float64
	grossLoss             float64
	fees                  float64
	barsSinceActivity     int
	maxBarsSinceActivity  int
	barsWithOpenPositions int
}

// ============================================================================
// SIMULATION
// ============================================================================

// Evaluate simulates strategy over bars and returns the aggregate result.
//
// The call is deterministic: identical bars, strategy parameters and options
// always produce an identical Result. A strategy error or panic on a single bar
// is treated as "no action".
func Evaluate(strategy Strategy, bars []Bar, opts Options) (*Result, error) {
	if strategy == nil {
		return nil, errors.New("strategy is nil")
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid backtest options: %w", err)
	}
	if len(bars) <= opts.WarmupBars+1 {
		return nil, fmt.Errorf("%w: have %d bars, need more than %d", ErrInsufficientData, len(bars), opts.WarmupBars+1)
	}

	l := &ledger{
		opts:    opts,
		balance: opts.InitialBalance,
		peak:    opts.InitialBalance,
		open:    make([]trade, 0, opts.MaxConcurrentTrades),
	}

	barsPerDay := opts.BarsPerDay()
	result := &Result{InitialBalance: opts.InitialBalance}
	if opts.RecordEquity {
		result.EquityCurve = make([]EquityPoint, 0, len(bars)-opts.WarmupBars)
	}

	evaluated := 0
	for i := opts.WarmupBars; i < len(bars); i++ {
		bar := &bars[i]
		evaluated++

		// Exits first: trades opened on this bar are only checked from the next one.
		closedAny := l.checkExits(bar)

		openedAny := false
		if len(l.open) < opts.MaxConcurrentTrades {
			if action, ok := safeAction(strategy, bars, i); ok {
				openedAny = l.openTrade(action, bar.Close)
			}
		}

		if len(l.open) > 0 {
			l.barsWithOpenPositions++
		}

		equity := l.equity(bar.Close)
		if equity > l.peak {
			l.peak = equity
		}
		drawdown := 0.0
		if l.peak > 0 {
			drawdown = (l.peak - equity) / l.peak
		}
		if drawdown > l.maxDrawdown {
			l.maxDrawdown = drawdown
		}
		if opts.RecordEquity {
			result.EquityCurve = append(result.EquityCurve, EquityPoint{
				Timestamp: bar.Timestamp,
				Equity:    equity,
				Peak:      l.peak,
				Drawdown:  drawdown,
			})
		}

		if closedAny || openedAny {
			l.barsSinceActivity = 0
		} else {
			l.barsSinceActivity++
		}
		if l.barsSinceActivity > l.maxBarsSinceActivity {
			l.maxBarsSinceActivity = l.barsSinceActivity
		}

		if opts.MaxDrawdown > 0 && drawdown > opts.MaxDrawdown {
			result.EarlyTerminated = true
			result.TerminationReason = ReasonMaxDrawdown
		} else if opts.MaxInactivityDays > 0 && float64(l.barsSinceActivity)/barsPerDay > opts.MaxInactivityDays {
			result.EarlyTerminated = true
			result.TerminationReason = ReasonInactivity
		}
		if result.EarlyTerminated {
			l.closeAll(bar.Close)
			break
		}
	}

	if !result.EarlyTerminated {
		l.closeAll(bars[len(bars)-1].Close)
	}

	l.fill(result, evaluated, barsPerDay)
	return result, nil
}

// safeAction queries the strategy for bar index and converts errors and panics
// into "no action".
func safeAction(strategy Strategy, bars []Bar, index int) (action Action, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			action, ok = Action{}, false
		}
	}()

	action, err := strategy.GetAction(bars, index)
	if err != nil || action.Type == TradeNone {
		return Action{}, false
	}
	return action, true
}

// checkExits closes every open trade whose stop-loss or take-profit was touched
// by bar. When both levels are inside the bar's range the stop-loss wins.
func (l *ledger) checkExits(bar *Bar) bool {
	closed := false
	kept := l.open[:0]
	for _, t := range l.open {
		exit, hit := exitPrice(t, bar)
		if hit {
			l.settle(t, exit)
			closed = true
			continue
		}
		kept = append(kept, t)
	}
	l.open = kept
	return closed
}

func exitPrice(t trade, bar *Bar) (float64, bool) {
	switch t.side {
	case TradeLong:
		if bar.Low <= t.stopLoss {
			return t.stopLoss, true
		}
		if t.takeProfit > 0 && bar.High >= t.takeProfit {
			return t.takeProfit, true
		}
	case TradeShort:
		if bar.High >= t.stopLoss {
			return t.stopLoss, true
		}
		if t.takeProfit > 0 && bar.Low <= t.takeProfit {
			return t.takeProfit, true
		}
	}
	return 0, false
}

// openTrade opens a position at entry for a Long or Short action. Actions with
// a stop on the wrong side of entry, a zero stop distance or a margin larger
// than the free balance are ignored.
func (l *ledger) openTrade(action Action, entry float64) bool {
	if entry <= 0 {
		return false
	}
	switch action.Type {
	case TradeLong:
		if action.StopLoss >= entry {
			return false
		}
	case TradeShort:
		if action.StopLoss <= entry {
			return false
		}
	default:
		return false
	}

	distance := math.Abs(entry - action.StopLoss)
	if distance == 0 || l.balance <= 0 {
		return false
	}

	// margin = balance·risk·entry/distance, so an entry fits only when the
	// stop is at least RiskFraction of the entry away, whatever the leverage.
	size := l.balance * l.opts.RiskFraction * l.opts.Leverage / distance
	margin := entry * size / l.opts.Leverage
	if size <= 0 || margin > l.balance*(1+marginTolerance) {
		return false
	}
	margin = math.Min(margin, l.balance)

	l.balance -= margin
	l.open = append(l.open, trade{
		side:       action.Type,
		entryPrice: entry,
		size:       size,
		margin:     margin,
		stopLoss:   action.StopLoss,
		takeProfit: action.TakeProfit,
	})
	return true
}

// settle releases the margin of t, books its P&L at exit and charges the fee.
func (l *ledger) settle(t trade, exit float64) {
	pnl := (exit - t.entryPrice) * t.size
	if t.side == TradeShort {
		pnl = -pnl
	}
	fee := exit * t.size * l.opts.FeePercent / 100.0
	net := pnl - fee

	l.balance += t.margin + net
	l.fees += fee
	if net > 0 {
		l.wins++
		l.grossProfit += net
	} else {
		l.losses++
		l.grossLoss -= net
	}
}

func (l *ledger) closeAll(price float64) {
	for _, t := range l.open {
		l.settle(t, price)
	}
	l.open = l.open[:0]
}

// equity marks the account to market at price.
func (l *ledger) equity(price float64) float64 {
	equity := l.balance
	for _, t := range l.open {
		pnl := (price - t.entryPrice) * t.size
		if t.side == TradeShort {
			pnl = -pnl
		}
		equity += t.margin + pnl
	}
	return equity
}

func (l *ledger) fill(r *Result, evaluated int, barsPerDay float64) {
	r.FinalBalance = l.balance
	r.NetProfit = l.balance - l.opts.InitialBalance
	r.TotalTrades = l.wins + l.losses
	r.WinningTrades = l.wins
	r.LosingTrades = l.losses
	r.GrossProfit = l.grossProfit
	r.GrossLoss = l.grossLoss
	r.TotalFees = l.fees
	r.MaxDrawdown = l.maxDrawdown
	r.PeakEquity = l.peak
	r.BarsEvaluated = evaluated
	r.MaxInactivityDays = float64(l.maxBarsSinceActivity) / barsPerDay

	if r.TotalTrades > 0 {
		r.WinRate = float64(l.wins) / float64(r.TotalTrades) * 100.0
	}
	switch {
	case l.grossLoss > 0:
		r.ProfitFactor = l.grossProfit / l.grossLoss
	case l.grossProfit > 0:
		r.ProfitFactor = MaxProfitFactor
	}
	if evaluated > 0 {
		r.ActivityPct = float64(l.barsWithOpenPositions) / float64(evaluated) * 100.0
	}
}
