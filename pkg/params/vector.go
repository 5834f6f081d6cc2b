package params

import (
	"errors"
	"math"
	"math/rand"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// ErrEmptySpace is returned when a vector would have no parameter sets.
var ErrEmptySpace = errors.New("parameter vector has no sets")

// Vector is the ordered list of parameter sets making up one strategy
// configuration. A Vector has a single owner; share it only through Clone.
type Vector struct {
	sets []*Set
}

// NewVector creates a vector over the given sets. The sets are owned by the
// vector afterwards.
func NewVector(sets ...*Set) (*Vector, error) {
	if len(sets) == 0 {
		return nil, ErrEmptySpace
	}
	for _, s := range sets {
		if s == nil {
			return nil, errors.New("parameter vector contains a nil set")
		}
	}
	return &Vector{sets: sets}, nil
}

// Sets returns the sets in order. Callers must not mutate them.
func (v *Vector) Sets() []*Set { return v.sets }

// SetByType returns the first set of the given type.
func (v *Vector) SetByType(typ string) (*Set, bool) {
	for _, s := range v.sets {
		if s.typ == typ {
			return s, true
		}
	}
	return nil, false
}

// PermutationCount is the size of the full grid, saturating at the largest uint64.
func (v *Vector) PermutationCount() uint64 {
	total := uint64(1)
	for _, s := range v.sets {
		total = mulSaturating(total, s.PermutationCount())
	}
	return total
}

// Reset moves every set to its first combination.
func (v *Vector) Reset() {
	for _, s := range v.sets {
		s.Reset()
	}
}

// Next advances to the next grid combination using odometer carry: the
// rightmost set is incremented and an overflow resets it and carries left.
// Next returns false once every set has wrapped, leaving the vector reset.
func (v *Vector) Next() bool {
	for i := len(v.sets) - 1; i >= 0; i-- {
		if !v.sets[i].Increment() {
			return true
		}
	}
	return false
}

// Seek positions the vector at combination index, the state reached by Reset
// followed by index calls to Next.
func (v *Vector) Seek(index uint64) {
	for i := len(v.sets) - 1; i >= 0; i-- {
		n := v.sets[i].PermutationCount()
		v.sets[i].seek(index % n)
		index /= n
	}
}

// Randomize resamples every parameter from its grid.
func (v *Vector) Randomize(rng *rand.Rand) {
	for _, s := range v.sets {
		s.Randomize(rng)
	}
}

// Perturb moves every parameter by an amount scaled by temperatureRatio.
func (v *Vector) Perturb(temperatureRatio float64, rng *rand.Rand) {
	if temperatureRatio > 1 {
		temperatureRatio = 1
	}
	for _, s := range v.sets {
		s.Perturb(temperatureRatio, rng)
	}
}

// Clone returns a deep copy.
func (v *Vector) Clone() *Vector {
	c := &Vector{sets: make([]*Set, len(v.sets))}
	for i, s := range v.sets {
		c.sets[i] = s.Clone()
	}
	return c
}

// CanonicalKey is the discretized, order-independent fingerprint of the
// vector: each set renders as its type plus sorted name=value pairs and the set
// renderings are sorted.
func (v *Vector) CanonicalKey() string {
	keys := make([]string, len(v.sets))
	for i, s := range v.sets {
		keys[i] = s.key()
	}
	sort.Strings(keys)
	return strings.Join(keys, "|")
}

// Hash is the 64-bit hash of CanonicalKey.
func (v *Vector) Hash() uint64 {
	return xxhash.Sum64String(v.CanonicalKey())
}

// Shape identifies vectors whose parameters can be compared value by value.
func (v *Vector) Shape() string {
	shapes := make([]string, len(v.sets))
	for i, s := range v.sets {
		shapes[i] = s.shape()
	}
	sort.Strings(shapes)
	return strings.Join(shapes, "|")
}

// Similar reports whether other has the same shape, equal booleans and every
// numeric parameter within tolerance. The tolerance is relative to the larger
// magnitude, and absolute when both values are near zero. A tolerance of zero
// or less matches only the same discretized bucket.
func (v *Vector) Similar(other *Vector, tolerance float64) bool {
	if tolerance <= 0 {
		return v.CanonicalKey() == other.CanonicalKey()
	}
	if len(v.sets) != len(other.sets) || v.Shape() != other.Shape() {
		return false
	}

	a, b := v.sortedSets(), other.sortedSets()
	for i := range a {
		if !similarSets(a[i], b[i], tolerance) {
			return false
		}
	}
	return true
}

func (v *Vector) sortedSets() []*Set {
	sorted := make([]*Set, len(v.sets))
	copy(sorted, v.sets)
	sort.SliceStable(sorted, func(i, j int) bool {
		si, sj := sorted[i].shape(), sorted[j].shape()
		if si != sj {
			return si < sj
		}
		return sorted[i].key() < sorted[j].key()
	})
	return sorted
}

func similarSets(a, b *Set, tolerance float64) bool {
	for _, da := range a.params {
		db, ok := b.Get(da.Name)
		if !ok || da.Kind != db.Kind {
			return false
		}
		if da.Kind == KindBool {
			if da.Bool() != db.Bool() {
				return false
			}
			continue
		}
		diff := math.Abs(da.Value - db.Value)
		scale := math.Max(math.Abs(da.Value), math.Abs(db.Value))
		if scale < nearZero {
			if diff >= tolerance {
				return false
			}
			continue
		}
		if diff/scale >= tolerance {
			return false
		}
	}
	return true
}

const nearZero = 1e-6

// String renders the vector for logs.
func (v *Vector) String() string {
	parts := make([]string, len(v.sets))
	for i, s := range v.sets {
		parts[i] = s.String()
	}
	return strings.Join(parts, " ")
}
