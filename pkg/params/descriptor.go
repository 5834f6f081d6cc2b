// Package params implements the tunable parameter space searched by the
// optimizer: descriptors, per-indicator parameter sets and the composite
// parameter vector.
package params

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
)

// Kind is the value type of a parameter.
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	default:
		return "unknown"
	}
}

// ParseKind converts a kind name to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "int", "integer":
		return KindInt, nil
	case "float", "double":
		return KindFloat, nil
	case "bool", "boolean":
		return KindBool, nil
	}
	return 0, fmt.Errorf("unknown parameter kind %q", s)
}

// perturbScale is the fraction of a parameter's range a full-temperature
// perturbation may move it by.
const perturbScale = 0.3

const epsilon = 1e-9

// Descriptor is one tunable parameter. Booleans are stored as 0 or 1 with a
// [0, 1] range and unit step.
type Descriptor struct {
	Name  string
	Kind  Kind
	Value float64
	Min   float64
	Max   float64
	Step  float64
}

// NewInt creates an integer descriptor starting at min.
func NewInt(name string, min, max, step int) Descriptor {
	return Descriptor{Name: name, Kind: KindInt, Value: float64(min), Min: float64(min), Max: float64(max), Step: float64(step)}
}

// NewFloat creates a floating point descriptor starting at min.
func NewFloat(name string, min, max, step float64) Descriptor {
	return Descriptor{Name: name, Kind: KindFloat, Value: min, Min: min, Max: max, Step: step}
}

// NewBool creates a boolean descriptor starting at false.
func NewBool(name string) Descriptor {
	return Descriptor{Name: name, Kind: KindBool, Min: 0, Max: 1, Step: 1}
}

// Validate checks range and step consistency.
func (d *Descriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("parameter name is empty")
	}
	if d.Kind == KindBool {
		return nil
	}
	if d.Max < d.Min {
		return fmt.Errorf("parameter %s: max %v below min %v", d.Name, d.Max, d.Min)
	}
	if d.Step <= 0 && d.Max > d.Min {
		return fmt.Errorf("parameter %s: step must be positive", d.Name)
	}
	if d.Kind == KindInt && (d.Min != math.Trunc(d.Min) || d.Step != math.Trunc(d.Step)) {
		return fmt.Errorf("parameter %s: integer range must use whole numbers", d.Name)
	}
	return nil
}

// Steps returns the number of grid values of the parameter.
func (d *Descriptor) Steps() uint64 {
	if d.Kind == KindBool {
		return 2
	}
	if d.Step <= 0 || d.Max <= d.Min {
		return 1
	}
	return uint64(math.Floor((d.Max-d.Min)/d.Step+epsilon)) + 1
}

// index returns the grid position nearest to the current value.
func (d *Descriptor) index() uint64 {
	if d.Kind == KindBool {
		if d.Value != 0 {
			return 1
		}
		return 0
	}
	if d.Step <= 0 {
		return 0
	}
	idx := math.Round((d.Value - d.Min) / d.Step)
	if idx < 0 {
		return 0
	}
	if n := d.Steps(); uint64(idx) >= n {
		return n - 1
	}
	return uint64(idx)
}

// setIndex moves the value onto grid position idx.
func (d *Descriptor) setIndex(idx uint64) {
	if d.Kind == KindBool {
		d.Value = float64(idx & 1)
		return
	}
	d.Value = d.Min + float64(idx)*d.Step
	if d.Value > d.Max {
		d.Value = d.Max
	}
}

// Reset moves the value to the first grid position.
func (d *Descriptor) Reset() {
	d.setIndex(0)
}

// Increment advances the value by one step. It reports true when the value
// wrapped back to its minimum (a carry).
func (d *Descriptor) Increment() bool {
	next := d.index() + 1
	if next >= d.Steps() {
		d.setIndex(0)
		return true
	}
	d.setIndex(next)
	return false
}

// Randomize resamples the value uniformly from the grid.
func (d *Descriptor) Randomize(rng *rand.Rand) {
	n := d.Steps()
	d.setIndex(uint64(rng.Int63n(int64(n))))
}

// Perturb moves the value by a random amount proportional to ratio, the
// current temperature relative to the starting temperature.
func (d *Descriptor) Perturb(ratio float64, rng *rand.Rand) {
	if d.Kind == KindBool {
		if rng.Float64() < ratio*perturbScale {
			d.Value = 1 - d.Value
		}
		return
	}
	if d.Max <= d.Min {
		return
	}

	delta := (rng.Float64()*2 - 1) * (d.Max - d.Min) * ratio * perturbScale
	v := clamp(d.Value+delta, d.Min, d.Max)
	if d.Kind == KindInt {
		// Integers stay on their step grid.
		v = d.Min + math.Round((v-d.Min)/d.Step)*d.Step
		v = clamp(v, d.Min, d.Max)
	}
	d.Value = v
}

// Int returns the value as an integer.
func (d *Descriptor) Int() int {
	return int(math.Round(d.Value))
}

// Bool returns the value as a boolean.
func (d *Descriptor) Bool() bool {
	return d.Value != 0
}

// Discretized returns the value rendered for hashing. Floats are rounded to one
// decimal so near-identical values share a cache bucket.
func (d *Descriptor) Discretized() string {
	switch d.Kind {
	case KindInt:
		return strconv.Itoa(d.Int())
	case KindBool:
		return strconv.FormatBool(d.Bool())
	default:
		return strconv.FormatFloat(RoundBucket(d.Value), 'f', 1, 64)
	}
}

// RoundBucket rounds v to the one-decimal hashing bucket.
func RoundBucket(v float64) float64 {
	r := math.Round(v*10) / 10
	if r == 0 {
		return 0 // normalise -0
	}
	return r
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
