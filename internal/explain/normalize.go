package explain

import "fmt"

// Layout says how a raw attribution matrix is indexed.
type Layout int

const (
	// PerClass holds one attribution row per class: [class][feature].
	PerClass Layout = iota
	// Stacked holds one row per feature with a column per class: [feature][class].
	Stacked
)

// RawAttribution is attribution output as an explainer backend produced it,
// before the responder class is selected.
type RawAttribution struct {
	Layout   Layout
	Values   [][]float64
	Expected []float64 // expected output per class
}

// Normalized is the canonical single-class form used past this package's boundary.
type Normalized struct {
	Baseline      float64
	Contributions []float64
}

// Normalize selects class from raw regardless of its layout. nFeatures guards
// against a backend that dropped or added columns.
func Normalize(raw RawAttribution, class, nFeatures int) (Normalized, error) {
	if class < 0 || class >= len(raw.Expected) {
		return Normalized{}, fmt.Errorf("class %d out of range for %d expected values", class, len(raw.Expected))
	}
	out := Normalized{Baseline: raw.Expected[class], Contributions: make([]float64, nFeatures)}

	switch raw.Layout {
	case PerClass:
		if class >= len(raw.Values) {
			return Normalized{}, fmt.Errorf("attribution has %d classes, want class %d", len(raw.Values), class)
		}
		row := raw.Values[class]
		if len(row) != nFeatures {
			return Normalized{}, fmt.Errorf("attribution has %d features, want %d", len(row), nFeatures)
		}
		copy(out.Contributions, row)
	case Stacked:
		if len(raw.Values) != nFeatures {
			return Normalized{}, fmt.Errorf("attribution has %d features, want %d", len(raw.Values), nFeatures)
		}
		for i, row := range raw.Values {
			if class >= len(row) {
				return Normalized{}, fmt.Errorf("feature %d has %d class columns, want class %d", i, len(row), class)
			}
			out.Contributions[i] = row[class]
		}
	default:
		return Normalized{}, fmt.Errorf("unknown attribution layout %d", raw.Layout)
	}
	return out, nil
}
