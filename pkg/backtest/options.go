package backtest

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Options holds configuration for one simulation.
type Options struct {
	InitialBalance      float64
	FeePercent          float64 // e.g. 0.1 for 0.1% per close
	Leverage            float64
	RiskFraction        float64 // Fraction of balance risked per trade, e.g. 0.02
	MaxConcurrentTrades int
	MaxDrawdown         float64 // Early-termination bound as a fraction, 0 disables
	MaxInactivityDays   float64 // Early-termination bound in days, 0 disables
	WarmupBars          int
	Timeframe           time.Duration
	RecordEquity        bool
}

// DefaultOptions returns the options used when no configuration is given.
func DefaultOptions() Options {
	return Options{
		InitialBalance:      10000.0,
		FeePercent:          0.1,
		Leverage:            1.0,
		RiskFraction:        0.02,
		MaxConcurrentTrades: 1,
		MaxDrawdown:         0.5,
		MaxInactivityDays:   30,
		WarmupBars:          50,
		Timeframe:           time.Hour,
	}
}

// Validate checks the options for structural errors.
func (o Options) Validate() error {
	switch {
	case o.InitialBalance <= 0:
		return fmt.Errorf("initial balance must be positive, got %f", o.InitialBalance)
	case o.FeePercent < 0:
		return fmt.Errorf("fee percent must not be negative, got %f", o.FeePercent)
	case o.Leverage <= 0:
		return fmt.Errorf("leverage must be positive, got %f", o.Leverage)
	case o.RiskFraction <= 0 || o.RiskFraction > 1:
		return fmt.Errorf("risk fraction must be in (0, 1], got %f", o.RiskFraction)
	case o.MaxConcurrentTrades < 1:
		return fmt.Errorf("max concurrent trades must be at least 1, got %d", o.MaxConcurrentTrades)
	case o.MaxDrawdown < 0:
		return fmt.Errorf("max drawdown must not be negative, got %f", o.MaxDrawdown)
	case o.MaxInactivityDays < 0:
		return fmt.Errorf("max inactivity days must not be negative, got %f", o.MaxInactivityDays)
	case o.WarmupBars < 0:
		return fmt.Errorf("warm-up bars must not be negative, got %d", o.WarmupBars)
	case o.Timeframe <= 0:
		return fmt.Errorf("timeframe must be positive, got %s", o.Timeframe)
	}
	return nil
}

// BarsPerDay converts the timeframe to the number of bars in a calendar day.
func (o Options) BarsPerDay() float64 {
	return float64(24*time.Hour) / float64(o.Timeframe)
}

// ParseTimeframe parses exchange-style intervals ("15m", "1h", "4h", "1d", "1w")
// as well as any time.ParseDuration string.
func ParseTimeframe(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty timeframe")
	}

	unit := s[len(s)-1]
	if unit == 'd' || unit == 'w' {
		n, err := strconv.Atoi(s[:len(s)-1])
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid timeframe %q", s)
		}
		day := 24 * time.Hour
		if unit == 'w' {
			return time.Duration(n) * 7 * day, nil
		}
		return time.Duration(n) * day, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid timeframe %q", s)
	}
	return d, nil
}
