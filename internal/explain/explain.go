// Package explain attributes a prediction to its input features with Tree SHAP.
package explain

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/Skufu/il17a-response/internal/intake"
	"github.com/Skufu/il17a-response/internal/model"
)

const DefaultTimeout = 5 * time.Second

// ExplanationError wraps any failure of the attribution computation,
// including running out of time.
type ExplanationError struct {
	Err error
}

func (e *ExplanationError) Error() string { return "explanation failed: " + e.Err.Error() }

func (e *ExplanationError) Unwrap() error { return e.Err }

type Contribution struct {
	Feature      string  `json:"feature"`
	Value        float64 `json:"value"`
	Contribution float64 `json:"contribution"`
}

// Result holds responder-class attributions in the order of the input record.
// Baseline plus the contributions approximates Output; Residual is the gap.
type Result struct {
	Baseline      float64        `json:"baseline"`
	Contributions []Contribution `json:"contributions"`
	Output        float64        `json:"output"`
	Residual      float64        `json:"residual"`
}

func (r Result) Sum() float64 {
	total := r.Baseline
	for _, c := range r.Contributions {
		total += c.Contribution
	}
	return total
}

type Options struct {
	// Timeout bounds a single Explain call. Zero means DefaultTimeout, negative
	// disables the bound.
	Timeout time.Duration
}

// Service explains predictions of one loaded pipeline. It scales inputs with
// that pipeline's own scaler, so attributions always describe the classifier
// input the prediction used.
type Service struct {
	pipeline *model.Pipeline
	timeout  time.Duration
}

func New(p *model.Pipeline, opts Options) *Service {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Service{pipeline: p, timeout: timeout}
}

// Explain is considerably more expensive than a prediction and should only be
// called when an explanation was asked for.
func (s *Service) Explain(ctx context.Context, rec intake.Record) (Result, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	names := s.pipeline.FeatureNames()
	x, err := rec.Vector(names)
	if err != nil {
		return Result{}, &ExplanationError{Err: err}
	}
	scaled, err := s.pipeline.Scale(x)
	if err != nil {
		return Result{}, &ExplanationError{Err: fmt.Errorf("scale: %w", err)}
	}

	raw, err := attribute(ctx, s.pipeline.Classifier(), scaled)
	if err != nil {
		return Result{}, &ExplanationError{Err: err}
	}
	pos := s.pipeline.PositiveClass()
	norm, err := Normalize(raw, pos, len(names))
	if err != nil {
		return Result{}, &ExplanationError{Err: err}
	}

	proba, err := s.pipeline.Classifier().PredictProba(scaled)
	if err != nil {
		return Result{}, &ExplanationError{Err: err}
	}

	res := Result{
		Baseline:      norm.Baseline,
		Output:        proba[pos],
		Contributions: make([]Contribution, 0, rec.Len()),
	}
	for _, f := range rec.Fields() {
		i := slices.Index(names, f.Name)
		if i < 0 {
			return Result{}, &ExplanationError{Err: fmt.Errorf("model has no feature %q", f.Name)}
		}
		res.Contributions = append(res.Contributions, Contribution{
			Feature:      f.Name,
			Value:        f.Value,
			Contribution: norm.Contributions[i],
		})
	}
	res.Residual = res.Output - res.Sum()

	if !finite(res.Baseline) || !finite(res.Residual) {
		return Result{}, &ExplanationError{Err: fmt.Errorf("attribution produced non-finite values")}
	}
	for _, c := range res.Contributions {
		if !finite(c.Contribution) {
			return Result{}, &ExplanationError{Err: fmt.Errorf("attribution for %s is not finite", c.Feature)}
		}
	}
	return res, nil
}

// attribute runs Tree SHAP on every tree for every class and averages the
// trees, giving a stacked [feature][class] matrix.
func attribute(ctx context.Context, forest *model.Forest, x []float64) (RawAttribution, error) {
	values := make([][]float64, forest.NFeature)
	for i := range values {
		values[i] = make([]float64, forest.NClasses)
	}
	expected := make([]float64, forest.NClasses)
	phi := make([]float64, forest.NFeature)

	for _, tree := range forest.Trees {
		if err := ctx.Err(); err != nil {
			return RawAttribution{}, err
		}
		for c := 0; c < forest.NClasses; c++ {
			clear(phi)
			expected[c] += shapTree(tree, c, x, phi)
			for i, v := range phi {
				values[i][c] += v
			}
		}
	}

	n := float64(len(forest.Trees))
	for c := range expected {
		expected[c] /= n
	}
	for i := range values {
		for c := range values[i] {
			values[i][c] /= n
		}
	}
	return RawAttribution{Layout: Stacked, Values: values, Expected: expected}, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
