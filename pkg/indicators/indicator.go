// Package indicators provides the technical indicators strategies are built
// from. Each indicator owns one parameter set, computes its series once per bar
// window and answers per-bar value and signal queries.
package indicators

import (
	"errors"
	"fmt"
	"math"

	"github.com/Ceezar89/ezbot-sub000/pkg/backtest"
	"github.com/Ceezar89/ezbot-sub000/pkg/params"
)

// ErrUnknownIndicator is returned for parameter sets whose type has no
// registered indicator.
var ErrUnknownIndicator = errors.New("unknown indicator type")

// Kind identifies an indicator implementation.
type Kind int

const (
	KindEMACross Kind = iota
	KindRSI
	KindBollinger
)

func (k Kind) String() string {
	switch k {
	case KindEMACross:
		return "ema_cross"
	case KindRSI:
		return "rsi"
	case KindBollinger:
		return "bollinger"
	default:
		return "unknown"
	}
}

// ParseKind maps a parameter set type name to a Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownIndicator, s)
}

// Kinds lists every registered indicator kind.
func Kinds() []Kind {
	return []Kind{KindEMACross, KindRSI, KindBollinger}
}

// Signal is the directional reading of an indicator at one bar.
type Signal int

const (
	SignalNone Signal = iota
	SignalBuy
	SignalSell
)

func (s Signal) String() string {
	switch s {
	case SignalBuy:
		return "buy"
	case SignalSell:
		return "sell"
	default:
		return "none"
	}
}

// Indicator is a technical indicator over a bar series. Calculate must be
// called before Value or Signal; calling it again with the same bar window is a
// no-op. Indicators are not safe for concurrent use.
type Indicator interface {
	Kind() Kind
	Params() *params.Set
	Calculate(bars []backtest.Bar) error
	Value(i int) float64
	Signal(i int) Signal
}

// ============================================================================
// REGISTRY
// ============================================================================

type entry struct {
	defaults func() *params.Set
	build    func(*params.Set) (Indicator, error)
}

var registry = map[Kind]entry{
	KindEMACross:  {defaults: emaCrossDefaults, build: newEMACross},
	KindRSI:       {defaults: rsiDefaults, build: newRSI},
	KindBollinger: {defaults: bollingerDefaults, build: newBollinger},
}

// DefaultParams returns the default search ranges for an indicator kind.
func DefaultParams(kind Kind) (*params.Set, error) {
	e, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownIndicator, kind)
	}
	return e.defaults(), nil
}

// FromParams builds the indicator named by the set's type. The indicator keeps
// its own clone of the set.
func FromParams(set *params.Set) (Indicator, error) {
	kind, err := ParseKind(set.Type())
	if err != nil {
		return nil, err
	}
	ind, err := registry[kind].build(set.Clone())
	if err != nil {
		return nil, fmt.Errorf("failed to build %s indicator: %w", kind, err)
	}
	return ind, nil
}

// at returns series[i], or NaN when i is out of range.
func at(series []float64, i int) float64 {
	if i < 0 || i >= len(series) {
		return math.NaN()
	}
	return series[i]
}
