// Package features declares the clinical inputs accepted by the response model.
package features

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Kind selects how a Definition validates its values.
type Kind string

const (
	Numerical   Kind = "numerical"
	Categorical Kind = "categorical"
)

// Definition describes one model input. Numerical definitions use Min/Max,
// categorical definitions use Options.
type Definition struct {
	Name    string    `json:"name" yaml:"name"`
	Label   string    `json:"label" yaml:"label"`
	Kind    Kind      `json:"kind" yaml:"kind"`
	Min     float64   `json:"min" yaml:"min"`
	Max     float64   `json:"max" yaml:"max"`
	Options []float64 `json:"options,omitempty" yaml:"options,omitempty"`
	Default float64   `json:"default" yaml:"default"`
}

// published is the wire form of a Definition. Bounds are pointers so a zero
// lower bound is still written; each kind only carries its own constraint.
type published struct {
	Name    string    `json:"name" yaml:"name"`
	Label   string    `json:"label" yaml:"label"`
	Kind    Kind      `json:"kind" yaml:"kind"`
	Min     *float64  `json:"min,omitempty" yaml:"min,omitempty"`
	Max     *float64  `json:"max,omitempty" yaml:"max,omitempty"`
	Options []float64 `json:"options,omitempty" yaml:"options,omitempty"`
	Default float64   `json:"default" yaml:"default"`
}

func (d Definition) publish() published {
	p := published{Name: d.Name, Label: d.Label, Kind: d.Kind, Default: d.Default}
	if d.Kind == Categorical {
		p.Options = d.Options
	} else {
		lo, hi := d.Min, d.Max
		p.Min, p.Max = &lo, &hi
	}
	return p
}

func (d Definition) MarshalJSON() ([]byte, error) { return json.Marshal(d.publish()) }

func (d Definition) MarshalYAML() (any, error) { return d.publish(), nil }

// Check reports why value is not acceptable for d, or nil.
func (d Definition) Check(value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("value must be a finite number")
	}
	switch d.Kind {
	case Numerical:
		if value < d.Min || value > d.Max {
			return fmt.Errorf("value %s outside range [%s, %s]", formatValue(value), formatValue(d.Min), formatValue(d.Max))
		}
		return nil
	case Categorical:
		for _, opt := range d.Options {
			if value == opt {
				return nil
			}
		}
		return fmt.Errorf("value %s not one of %s", formatValue(value), d.optionList())
	default:
		return fmt.Errorf("unknown feature kind %q", d.Kind)
	}
}

func (d Definition) optionList() string {
	out := "{"
	for i, opt := range d.Options {
		if i > 0 {
			out += ", "
		}
		out += formatValue(opt)
	}
	return out + "}"
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Schema is an ordered list of definitions. The order must match the column
// order the classifier was fitted with.
type Schema struct {
	defs  []Definition
	index map[string]int
}

// NewSchema validates defs and keeps them in the given order.
func NewSchema(defs ...Definition) (Schema, error) {
	s := Schema{
		defs:  make([]Definition, 0, len(defs)),
		index: make(map[string]int, len(defs)),
	}
	for _, d := range defs {
		if d.Name == "" {
			return Schema{}, fmt.Errorf("feature definition without name")
		}
		if _, dup := s.index[d.Name]; dup {
			return Schema{}, fmt.Errorf("duplicate feature %q", d.Name)
		}
		switch d.Kind {
		case Numerical:
			if d.Min > d.Max {
				return Schema{}, fmt.Errorf("feature %q: min %v greater than max %v", d.Name, d.Min, d.Max)
			}
		case Categorical:
			if len(d.Options) == 0 {
				return Schema{}, fmt.Errorf("feature %q: categorical feature needs options", d.Name)
			}
		default:
			return Schema{}, fmt.Errorf("feature %q: unknown kind %q", d.Name, d.Kind)
		}
		if err := d.Check(d.Default); err != nil {
			return Schema{}, fmt.Errorf("feature %q default: %w", d.Name, err)
		}
		s.index[d.Name] = len(s.defs)
		s.defs = append(s.defs, d)
	}
	return s, nil
}

// Definitions returns a copy of the definitions in schema order.
func (s Schema) Definitions() []Definition {
	out := make([]Definition, len(s.defs))
	copy(out, s.defs)
	return out
}

// Len is the number of features.
func (s Schema) Len() int { return len(s.defs) }

// Names lists feature names in schema order.
func (s Schema) Names() []string {
	names := make([]string, len(s.defs))
	for i, d := range s.defs {
		names[i] = d.Name
	}
	return names
}

// Lookup finds a definition by its case-sensitive name.
func (s Schema) Lookup(name string) (Definition, bool) {
	i, ok := s.index[name]
	if !ok {
		return Definition{}, false
	}
	return s.defs[i], true
}

// Defaults returns the default value of every feature keyed by name.
func (s Schema) Defaults() map[string]float64 {
	out := make(map[string]float64, len(s.defs))
	for _, d := range s.defs {
		out[d.Name] = d.Default
	}
	return out
}
