// Package intake collects and validates one patient's feature values.
package intake

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/Skufu/il17a-response/internal/features"
)

// ValidationError names the feature that could not be accepted.
type ValidationError struct {
	Feature string
	Reason  string
}

func (e *ValidationError) Error() string {
	if e.Feature == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Feature, e.Reason)
}

// Source supplies raw input values by feature name.
type Source interface {
	// Lookup returns the raw value for name and whether one was supplied.
	Lookup(name string) (any, bool)
	// Keys lists every supplied name, used to reject unknown fields.
	Keys() []string
}

// Values is a Source backed by decoded JSON or programmatic input.
type Values map[string]any

func (v Values) Lookup(name string) (any, bool) {
	raw, ok := v[name]
	return raw, ok
}

func (v Values) Keys() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	return keys
}

// FormValues is a Source backed by form or query parameters.
type FormValues url.Values

func (f FormValues) Lookup(name string) (any, bool) {
	vals, ok := f[name]
	if !ok || len(vals) == 0 {
		return nil, false
	}
	return vals[0], true
}

func (f FormValues) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	return keys
}

type withDefaults struct {
	src      Source
	defaults map[string]float64
}

// WithDefaults fills every feature the source leaves unset with the schema
// default, the way the input form pre-fills its controls.
func WithDefaults(src Source, schema features.Schema) Source {
	return withDefaults{src: src, defaults: schema.Defaults()}
}

func (w withDefaults) Lookup(name string) (any, bool) {
	if raw, ok := w.src.Lookup(name); ok {
		if s, isString := raw.(string); !isString || strings.TrimSpace(s) != "" {
			return raw, true
		}
	}
	def, ok := w.defaults[name]
	return def, ok
}

func (w withDefaults) Keys() []string { return w.src.Keys() }

// Collect reads one value per schema feature, in schema order, and validates
// each against its definition. It returns no record on the first failure.
func Collect(schema features.Schema, src Source) (Record, error) {
	if src == nil {
		return Record{}, &ValidationError{Reason: "no input supplied"}
	}
	for _, key := range src.Keys() {
		if _, known := schema.Lookup(key); !known {
			return Record{}, &ValidationError{Feature: key, Reason: "unknown feature"}
		}
	}

	fields := make([]Field, 0, schema.Len())
	for _, def := range schema.Definitions() {
		raw, ok := src.Lookup(def.Name)
		if !ok || raw == nil {
			return Record{}, &ValidationError{Feature: def.Name, Reason: "value is required"}
		}
		value, err := toFloat(raw)
		if err != nil {
			return Record{}, &ValidationError{Feature: def.Name, Reason: err.Error()}
		}
		if err := def.Check(value); err != nil {
			return Record{}, &ValidationError{Feature: def.Name, Reason: err.Error()}
		}
		fields = append(fields, Field{Name: def.Name, Value: value})
	}
	return Record{fields: fields}, nil
}

func toFloat(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", v.String())
		}
		return f, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, fmt.Errorf("value is required")
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("unsupported value type %T", raw)
	}
}
