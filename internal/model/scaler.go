package model

import (
	"fmt"
	"math"
)

// Scaler is the fitted feature transform bundled with the classifier.
type Scaler interface {
	Transform(x []float64) ([]float64, error)
	Kind() string
}

type standardScaler struct {
	mean  []float64
	scale []float64
}

func (s standardScaler) Kind() string { return "standard" }

func (s standardScaler) Transform(x []float64) ([]float64, error) {
	if len(x) != len(s.mean) {
		return nil, fmt.Errorf("scaler expects %d features, got %d", len(s.mean), len(x))
	}
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = (v - s.mean[i]) / s.scale[i]
	}
	return out, nil
}

// minMaxScaler follows sklearn's MinMaxScaler: x*scale_ + min_.
type minMaxScaler struct {
	min   []float64
	scale []float64
}

func (s minMaxScaler) Kind() string { return "minmax" }

func (s minMaxScaler) Transform(x []float64) ([]float64, error) {
	if len(x) != len(s.min) {
		return nil, fmt.Errorf("scaler expects %d features, got %d", len(s.min), len(x))
	}
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = v*s.scale[i] + s.min[i]
	}
	return out, nil
}

type identityScaler struct {
	n int
}

func (s identityScaler) Kind() string { return "identity" }

func (s identityScaler) Transform(x []float64) ([]float64, error) {
	if len(x) != s.n {
		return nil, fmt.Errorf("scaler expects %d features, got %d", s.n, len(x))
	}
	out := make([]float64, len(x))
	copy(out, x)
	return out, nil
}

func buildScaler(spec scalerSpec, n int) (Scaler, error) {
	switch spec.Kind {
	case "standard":
		if err := checkParams("mean", spec.Mean, n, false); err != nil {
			return nil, err
		}
		if err := checkParams("scale", spec.Scale, n, true); err != nil {
			return nil, err
		}
		return standardScaler{mean: spec.Mean, scale: spec.Scale}, nil
	case "minmax":
		if err := checkParams("min", spec.Min, n, false); err != nil {
			return nil, err
		}
		if err := checkParams("scale", spec.Scale, n, true); err != nil {
			return nil, err
		}
		return minMaxScaler{min: spec.Min, scale: spec.Scale}, nil
	case "identity":
		return identityScaler{n: n}, nil
	default:
		return nil, fmt.Errorf("unsupported scaler kind %q", spec.Kind)
	}
}

func checkParams(name string, vals []float64, n int, nonZero bool) error {
	if len(vals) != n {
		return fmt.Errorf("scaler %s has %d entries, want %d", name, len(vals), n)
	}
	for i, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("scaler %s[%d] is not finite", name, i)
		}
		if nonZero && v == 0 {
			return fmt.Errorf("scaler %s[%d] is zero", name, i)
		}
	}
	return nil
}
