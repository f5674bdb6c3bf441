// Package predict turns a validated feature record into a response probability.
package predict

import (
	"context"
	"fmt"
	"math"

	"github.com/Skufu/il17a-response/internal/intake"
	"github.com/Skufu/il17a-response/internal/model"
)

// Threshold is the probability above which a patient is called a responder.
const Threshold = 0.5

type Verdict string

const (
	Responder    Verdict = "responder"
	NonResponder Verdict = "non_responder"
)

// VerdictFor applies the strict > Threshold rule.
func VerdictFor(probability float64) Verdict {
	if probability > Threshold {
		return Responder
	}
	return NonResponder
}

type Result struct {
	Probability  float64 `json:"probability"`
	Verdict      Verdict `json:"verdict"`
	ModelVersion string  `json:"modelVersion"`
}

// Percent is the probability on a 0-100 scale, for display only.
func (r Result) Percent() float64 { return r.Probability * 100 }

// InferenceError carries the pipeline failure as-is. The usual cause is a
// feature name or order mismatch between the request and the fitted model.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string { return "inference failed: " + e.Err.Error() }

func (e *InferenceError) Unwrap() error { return e.Err }

// Pipeline is the part of *model.Pipeline the service needs.
type Pipeline interface {
	FeatureNames() []string
	PositiveClass() int
	Version() string
	PredictProba(x []float64) ([]float64, error)
}

// Service predicts with one loaded pipeline and is safe for concurrent use.
type Service struct {
	pipeline Pipeline
}

// New wraps p; p must not change after loading.
func New(p Pipeline) *Service {
	return &Service{pipeline: p}
}

var _ Pipeline = (*model.Pipeline)(nil)

// Predict runs the pipeline once. There are no retries: the same input would
// fail the same way.
func (s *Service) Predict(ctx context.Context, rec intake.Record) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, &InferenceError{Err: err}
	}
	x, err := rec.Vector(s.pipeline.FeatureNames())
	if err != nil {
		return Result{}, &InferenceError{Err: err}
	}
	proba, err := s.pipeline.PredictProba(x)
	if err != nil {
		return Result{}, &InferenceError{Err: err}
	}
	pos := s.pipeline.PositiveClass()
	if pos < 0 || pos >= len(proba) {
		return Result{}, &InferenceError{Err: fmt.Errorf("classifier returned %d class probabilities, responder index %d", len(proba), pos)}
	}
	p := proba[pos]
	if math.IsNaN(p) || p < 0 || p > 1 {
		return Result{}, &InferenceError{Err: fmt.Errorf("classifier returned invalid probability %v", p)}
	}
	return Result{
		Probability:  p,
		Verdict:      VerdictFor(p),
		ModelVersion: s.pipeline.Version(),
	}, nil
}
