package intake

import (
	"encoding/json"
	"fmt"
)

// Field is one named feature value.
type Field struct {
	Name  string  `json:"name" yaml:"name"`
	Value float64 `json:"value" yaml:"value"`
}

// Record is one validated set of feature values. Values stay attached to
// their names; Vector is the only way to turn a record into model input.
type Record struct {
	fields []Field
}

// NewRecord builds a record without schema validation. Collect is the normal
// constructor; this one exists for callers that already hold trusted values.
func NewRecord(fields ...Field) Record {
	out := make([]Field, len(fields))
	copy(out, fields)
	return Record{fields: out}
}

func (r Record) Fields() []Field {
	out := make([]Field, len(r.fields))
	copy(out, r.fields)
	return out
}

func (r Record) Len() int { return len(r.fields) }

func (r Record) Value(name string) (float64, bool) {
	for _, f := range r.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return 0, false
}

// Vector lays the record out in the given column order, matching by name.
func (r Record) Vector(order []string) ([]float64, error) {
	if len(order) != len(r.fields) {
		return nil, fmt.Errorf("record has %d features, model expects %d", len(r.fields), len(order))
	}
	vec := make([]float64, len(order))
	for i, name := range order {
		v, ok := r.Value(name)
		if !ok {
			return nil, fmt.Errorf("record has no feature %q", name)
		}
		vec[i] = v
	}
	return vec, nil
}

// Permute returns a copy whose fields are reordered by perm, where perm[i] is
// the index of the field placed at position i.
func (r Record) Permute(perm []int) (Record, error) {
	if len(perm) != len(r.fields) {
		return Record{}, fmt.Errorf("permutation length %d, record length %d", len(perm), len(r.fields))
	}
	seen := make([]bool, len(perm))
	out := make([]Field, len(perm))
	for i, p := range perm {
		if p < 0 || p >= len(perm) || seen[p] {
			return Record{}, fmt.Errorf("invalid permutation %v", perm)
		}
		seen[p] = true
		out[i] = r.fields[p]
	}
	return Record{fields: out}, nil
}

// MarshalJSON writes the record as an object in field order.
func (r Record) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, f := range r.fields {
		if i > 0 {
			buf = append(buf, ',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf = append(buf, key...)
		buf = append(buf, ':')
		buf = append(buf, val...)
	}
	return append(buf, '}'), nil
}
