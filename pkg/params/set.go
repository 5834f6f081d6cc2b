package params

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
)

// Set is the ordered parameter set of one indicator (or other strategy
// component), tagged with the component's type name.
type Set struct {
	typ    string
	params []Descriptor
	index  map[string]int
}

// NewSet creates a set of the given type from descriptors, in order.
func NewSet(typ string, descriptors ...Descriptor) (*Set, error) {
	s := &Set{typ: typ, index: make(map[string]int, len(descriptors))}
	for _, d := range descriptors {
		if err := s.Add(d); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// MustSet is NewSet for static definitions; it panics on invalid descriptors.
func MustSet(typ string, descriptors ...Descriptor) *Set {
	s, err := NewSet(typ, descriptors...)
	if err != nil {
		panic(err)
	}
	return s
}

// Add appends a descriptor. Names must be unique within the set.
func (s *Set) Add(d Descriptor) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("%s: %w", s.typ, err)
	}
	if _, exists := s.index[d.Name]; exists {
		return fmt.Errorf("%s: duplicate parameter %q", s.typ, d.Name)
	}
	s.index[d.Name] = len(s.params)
	s.params = append(s.params, d)
	return nil
}

// Type returns the component type name.
func (s *Set) Type() string { return s.typ }

// Len returns the number of parameters.
func (s *Set) Len() int { return len(s.params) }

// Descriptors returns a copy of the descriptors in order.
func (s *Set) Descriptors() []Descriptor {
	out := make([]Descriptor, len(s.params))
	copy(out, s.params)
	return out
}

// Get returns the named descriptor.
func (s *Set) Get(name string) (Descriptor, bool) {
	i, ok := s.index[name]
	if !ok {
		return Descriptor{}, false
	}
	return s.params[i], true
}

// Set overwrites the value of the named parameter, clamped to its range.
func (s *Set) Set(name string, value float64) error {
	i, ok := s.index[name]
	if !ok {
		return fmt.Errorf("%s: unknown parameter %q", s.typ, name)
	}
	d := &s.params[i]
	d.Value = clamp(value, d.Min, d.Max)
	return nil
}

// Float returns the named value, or def when the parameter is absent.
func (s *Set) Float(name string, def float64) float64 {
	if d, ok := s.Get(name); ok {
		return d.Value
	}
	return def
}

// Int returns the named value as an integer, or def when absent.
func (s *Set) Int(name string, def int) int {
	if d, ok := s.Get(name); ok {
		return d.Int()
	}
	return def
}

// Bool returns the named value as a boolean, or def when absent.
func (s *Set) Bool(name string, def bool) bool {
	if d, ok := s.Get(name); ok {
		return d.Bool()
	}
	return def
}

// PermutationCount is the product of the per-descriptor step counts,
// saturating at the largest uint64.
func (s *Set) PermutationCount() uint64 {
	total := uint64(1)
	for i := range s.params {
		total = mulSaturating(total, s.params[i].Steps())
	}
	return total
}

// Reset moves every parameter to its first grid value.
func (s *Set) Reset() {
	for i := range s.params {
		s.params[i].Reset()
	}
}

// Increment advances the set by one combination, rightmost parameter first.
// It reports true when every parameter wrapped, i.e. the set overflowed.
func (s *Set) Increment() bool {
	for i := len(s.params) - 1; i >= 0; i-- {
		if !s.params[i].Increment() {
			return false
		}
	}
	return true
}

// Enumerate calls fn for every combination of the set, starting from Reset.
// The set is left reset afterwards.
func (s *Set) Enumerate(fn func(*Set)) {
	s.Reset()
	for {
		fn(s)
		if s.Increment() {
			return
		}
	}
}

// Randomize resamples every parameter.
func (s *Set) Randomize(rng *rand.Rand) {
	for i := range s.params {
		s.params[i].Randomize(rng)
	}
}

// Perturb moves every parameter proportionally to ratio.
func (s *Set) Perturb(ratio float64, rng *rand.Rand) {
	for i := range s.params {
		s.params[i].Perturb(ratio, rng)
	}
}

// Clone returns a deep copy.
func (s *Set) Clone() *Set {
	c := &Set{
		typ:    s.typ,
		params: make([]Descriptor, len(s.params)),
		index:  make(map[string]int, len(s.index)),
	}
	copy(c.params, s.params)
	for k, v := range s.index {
		c.index[k] = v
	}
	return c
}

// seek positions the set at combination idx of its own odometer.
func (s *Set) seek(idx uint64) {
	for i := len(s.params) - 1; i >= 0; i-- {
		n := s.params[i].Steps()
		s.params[i].setIndex(idx % n)
		idx /= n
	}
}

// key renders the set as type{name=value,...} with names sorted.
func (s *Set) key() string {
	pairs := make([]string, len(s.params))
	for i := range s.params {
		pairs[i] = s.params[i].Name + "=" + s.params[i].Discretized()
	}
	sort.Strings(pairs)

	var b strings.Builder
	b.WriteString(s.typ)
	b.WriteByte('{')
	b.WriteString(strings.Join(pairs, ","))
	b.WriteByte('}')
	return b.String()
}

// shape identifies sets whose parameters can be compared value by value.
func (s *Set) shape() string {
	names := make([]string, len(s.params))
	for i := range s.params {
		names[i] = s.params[i].Name
	}
	sort.Strings(names)
	return s.typ + "(" + strings.Join(names, ",") + ")"
}

// String renders the set for logs.
func (s *Set) String() string {
	parts := make([]string, len(s.params))
	for i := range s.params {
		parts[i] = s.params[i].Name + "=" + s.params[i].Discretized()
	}
	return s.typ + "(" + strings.Join(parts, " ") + ")"
}

func mulSaturating(a, b uint64) uint64 {
	if a == 0 || b == 0 {
		return 0
	}
	if a > ^uint64(0)/b {
		return ^uint64(0)
	}
	return a * b
}
