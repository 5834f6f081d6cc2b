package indicators

import (
	"math"

	"github.com/Ceezar89/ezbot-sub000/pkg/backtest"
)

func closes(bars []backtest.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// feed converts a slice to a closed, buffered channel.
func feed(values []float64) <-chan float64 {
	c := make(chan float64, len(values))
	for _, v := range values {
		c <- v
	}
	close(c)
	return c
}

func collect(c <-chan float64) []float64 {
	var out []float64
	for v := range c {
		out = append(out, v)
	}
	return out
}

// alignRight pads the front of an indicator output with NaN so that out[i]
// corresponds to input bar i. Indicators drop their idle period from the
// front of the stream.
func alignRight(out []float64, n int) []float64 {
	if len(out) >= n {
		return out[len(out)-n:]
	}
	aligned := make([]float64, n)
	pad := n - len(out)
	for i := 0; i < pad; i++ {
		aligned[i] = math.NaN()
	}
	copy(aligned[pad:], out)
	return aligned
}

// compute runs a single-output streaming indicator over values.
func compute(values []float64, fn func(<-chan float64) <-chan float64) []float64 {
	return alignRight(collect(fn(feed(values))), len(values))
}
