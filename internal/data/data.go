// Package data loads the historical bars a search is evaluated against.
package data

import (
	"errors"
	"fmt"

	"github.com/Ceezar89/ezbot-sub000/pkg/backtest"
)

// ErrNoBars is returned when a source yields no bars.
var ErrNoBars = errors.New("no bars loaded")

// Validate checks that bars are strictly ascending in time and internally
// consistent.
func Validate(bars []backtest.Bar) error {
	if len(bars) == 0 {
		return ErrNoBars
	}
	for i := range bars {
		b := &bars[i]
		if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
			return fmt.Errorf("bar %d (%s): prices must be positive", i, b.Timestamp)
		}
		if b.High < b.Low {
			return fmt.Errorf("bar %d (%s): high %v below low %v", i, b.Timestamp, b.High, b.Low)
		}
		if i > 0 && !b.Timestamp.After(bars[i-1].Timestamp) {
			return fmt.Errorf("bar %d (%s): timestamps must be strictly ascending", i, b.Timestamp)
		}
	}
	return nil
}
