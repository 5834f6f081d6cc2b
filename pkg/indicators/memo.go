package indicators

import (
	"time"

	"github.com/Ceezar89/ezbot-sub000/pkg/backtest"
)

// memo records which bar window an indicator last computed. Strategies call
// Calculate with the same full series on every bar, so the window identity is
// the series length plus its first and last timestamps.
type memo struct {
	valid bool
	n     int
	first time.Time
	last  time.Time
}

// fresh reports whether bars is the window already computed.
func (m *memo) fresh(bars []backtest.Bar) bool {
	if !m.valid || len(bars) != m.n || len(bars) == 0 {
		return false
	}
	return bars[0].Timestamp.Equal(m.first) && bars[len(bars)-1].Timestamp.Equal(m.last)
}

func (m *memo) mark(bars []backtest.Bar) {
	m.valid = true
	m.n = len(bars)
	if len(bars) > 0 {
		m.first = bars[0].Timestamp
		m.last = bars[len(bars)-1].Timestamp
	}
}

// once runs compute unless bars is the memoized window.
func (m *memo) once(bars []backtest.Bar, compute func() error) error {
	if m.fresh(bars) {
		return nil
	}
	if err := compute(); err != nil {
		m.valid = false
		return err
	}
	m.mark(bars)
	return nil
}
