package params

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// ParamSpec is the serializable form of a Descriptor.
type ParamSpec struct {
	Name  string   `json:"name" yaml:"name"`
	Kind  string   `json:"kind" yaml:"kind"`
	Value *float64 `json:"value,omitempty" yaml:"value,omitempty"`
	Min   float64  `json:"min" yaml:"min"`
	Max   float64  `json:"max" yaml:"max"`
	Step  float64  `json:"step,omitempty" yaml:"step,omitempty"`
}

// SetSpec is the serializable form of a Set.
type SetSpec struct {
	Type   string      `json:"type" yaml:"type"`
	Params []ParamSpec `json:"params" yaml:"params"`
}

// VectorSpec is the serializable form of a Vector. It is used both for search
// space declarations (YAML) and for persisted snapshots (JSON).
type VectorSpec struct {
	Sets []SetSpec `json:"sets" yaml:"sets"`
}

// Spec returns the serializable form of the vector, current values included.
func (v *Vector) Spec() VectorSpec {
	spec := VectorSpec{Sets: make([]SetSpec, len(v.sets))}
	for i, s := range v.sets {
		ss := SetSpec{Type: s.typ, Params: make([]ParamSpec, len(s.params))}
		for j, d := range s.params {
			value := d.Value
			ss.Params[j] = ParamSpec{
				Name:  d.Name,
				Kind:  d.Kind.String(),
				Value: &value,
				Min:   d.Min,
				Max:   d.Max,
				Step:  d.Step,
			}
		}
		spec.Sets[i] = ss
	}
	return spec
}

// FromSpec builds a vector from its serializable form. Parameters without a
// value start at their minimum.
func FromSpec(spec VectorSpec) (*Vector, error) {
	sets := make([]*Set, 0, len(spec.Sets))
	for _, ss := range spec.Sets {
		if ss.Type == "" {
			return nil, fmt.Errorf("parameter set without type")
		}
		set := &Set{typ: ss.Type, index: make(map[string]int, len(ss.Params))}
		for _, ps := range ss.Params {
			d, err := ps.descriptor()
			if err != nil {
				return nil, fmt.Errorf("%s: %w", ss.Type, err)
			}
			if err := set.Add(d); err != nil {
				return nil, err
			}
		}
		sets = append(sets, set)
	}
	return NewVector(sets...)
}

func (ps ParamSpec) descriptor() (Descriptor, error) {
	kind, err := ParseKind(ps.Kind)
	if err != nil {
		return Descriptor{}, err
	}
	d := Descriptor{Name: ps.Name, Kind: kind, Min: ps.Min, Max: ps.Max, Step: ps.Step}
	if kind == KindBool {
		d.Min, d.Max, d.Step = 0, 1, 1
	}
	d.Value = d.Min
	if ps.Value != nil {
		d.Value = clamp(*ps.Value, d.Min, d.Max)
		if kind == KindBool && *ps.Value != 0 {
			d.Value = 1
		}
	}
	return d, nil
}

// LoadSpace reads a YAML search-space declaration:
//
//	sets:
//	  - type: ema_cross
//	    params:
//	      - {name: fast, kind: int, min: 5, max: 20, step: 5}
func LoadSpace(r io.Reader) (*Vector, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var spec VectorSpec
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("failed to decode search space: %w", err)
	}
	return FromSpec(spec)
}

// MarshalJSON encodes the vector through its spec.
func (v *Vector) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Spec())
}

// UnmarshalJSON decodes a vector encoded by MarshalJSON.
func (v *Vector) UnmarshalJSON(data []byte) error {
	var spec VectorSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return err
	}
	decoded, err := FromSpec(spec)
	if err != nil {
		return err
	}
	*v = *decoded
	return nil
}
