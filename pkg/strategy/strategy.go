// Package strategy builds backtest strategies from parameter vectors. Each
// strategy family is registered under a type name together with its default
// search space.
package strategy

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Ceezar89/ezbot-sub000/pkg/backtest"
	"github.com/Ceezar89/ezbot-sub000/pkg/indicators"
	"github.com/Ceezar89/ezbot-sub000/pkg/params"
)

// ErrUnknownStrategy is returned for unregistered strategy types.
var ErrUnknownStrategy = errors.New("unknown strategy type")

// Strategy type names.
const (
	TypeTrendRSI      = "trend_rsi"
	TypeBreakout      = "breakout"
	TypeMeanReversion = "mean_reversion"
)

type definition struct {
	description string
	defaults    func() []*params.Set
	build       func(*params.Vector) (backtest.Strategy, error)
}

var registry = map[string]definition{
	TypeTrendRSI: {
		description: "EMA crossover entries filtered by RSI",
		defaults:    trendRSIDefaults,
		build:       newTrendRSI,
	},
	TypeBreakout: {
		description: "Close beyond the recent high/low range",
		defaults:    breakoutDefaults,
		build:       newBreakout,
	},
	TypeMeanReversion: {
		description: "Fade closes outside the Bollinger Bands",
		defaults:    meanReversionDefaults,
		build:       newMeanReversion,
	},
}

// Types returns the registered strategy types, sorted.
func Types() []string {
	out := make([]string, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Describe returns the one-line description of a strategy type.
func Describe(typ string) string {
	return registry[typ].description
}

// New builds the strategy of the given type from v. The strategy reads v's
// values once; later changes to v do not affect it.
func New(typ string, v *params.Vector) (backtest.Strategy, error) {
	def, ok := registry[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, typ)
	}
	if v == nil {
		return nil, params.ErrEmptySpace
	}
	s, err := def.build(v)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s strategy: %w", typ, err)
	}
	return s, nil
}

// DefaultVector returns the default search space of a strategy type.
func DefaultVector(typ string) (*params.Vector, error) {
	def, ok := registry[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, typ)
	}
	return params.NewVector(def.defaults()...)
}

// ============================================================================
// SHARED BUILDING BLOCKS
// ============================================================================

// RiskSetType is the parameter set holding stop and target distances. It is
// part of every strategy's vector so exits are optimized with the entries.
const RiskSetType = "risk"

// minStopPct is the tightest default stop. With the default 2% risk fraction
// a tighter stop needs more margin than the whole balance, so the simulator
// would skip every entry.
const minStopPct = 2

func riskDefaults() *params.Set {
	return params.MustSet(RiskSetType,
		params.NewFloat("stop_pct", minStopPct, minStopPct+3, 1),
		params.NewFloat("reward_ratio", 1, 3, 0.5),
		params.NewBool("allow_short"),
	)
}

type risk struct {
	stopPct     float64
	rewardRatio float64
	allowShort  bool
}

func riskFrom(v *params.Vector) (risk, error) {
	set, ok := v.SetByType(RiskSetType)
	if !ok {
		return risk{}, fmt.Errorf("missing %q parameter set", RiskSetType)
	}
	r := risk{
		stopPct:     set.Float("stop_pct", 2),
		rewardRatio: set.Float("reward_ratio", 2),
		allowShort:  set.Bool("allow_short", false),
	}
	if r.stopPct <= 0 || r.stopPct >= 100 {
		return risk{}, fmt.Errorf("stop_pct must be in (0, 100), got %v", r.stopPct)
	}
	if r.rewardRatio <= 0 {
		return risk{}, fmt.Errorf("reward_ratio must be positive, got %v", r.rewardRatio)
	}
	return r, nil
}

// action places the stop stopPct away from price and the target rewardRatio
// stop distances away on the other side.
func (r risk) action(t backtest.TradeType, price float64) backtest.Action {
	dist := price * r.stopPct / 100
	switch t {
	case backtest.TradeLong:
		return backtest.Action{Type: t, StopLoss: price - dist, TakeProfit: price + dist*r.rewardRatio}
	case backtest.TradeShort:
		if !r.allowShort {
			return backtest.Action{}
		}
		return backtest.Action{Type: t, StopLoss: price + dist, TakeProfit: price - dist*r.rewardRatio}
	}
	return backtest.Action{}
}

func indicator(v *params.Vector, kind indicators.Kind) (indicators.Indicator, error) {
	set, ok := v.SetByType(kind.String())
	if !ok {
		return nil, fmt.Errorf("missing %q parameter set", kind)
	}
	return indicators.FromParams(set)
}

func indicatorDefaults(kind indicators.Kind) *params.Set {
	set, err := indicators.DefaultParams(kind)
	if err != nil {
		panic(err)
	}
	return set
}
