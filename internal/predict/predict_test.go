package predict

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skufu/il17a-response/internal/features"
	"github.com/Skufu/il17a-response/internal/intake"
	"github.com/Skufu/il17a-response/internal/model/modeltest"
)

func collect(t *testing.T, overrides map[string]any) intake.Record {
	t.Helper()
	in := intake.Values{}
	for name, v := range features.Default().Defaults() {
		in[name] = v
	}
	for name, v := range overrides {
		in[name] = v
	}
	rec, err := intake.Collect(features.Default(), in)
	require.NoError(t, err)
	return rec
}

type brokenPipeline struct {
	err   error
	proba []float64
}

func (b brokenPipeline) FeatureNames() []string { return features.Default().Names() }
func (b brokenPipeline) PositiveClass() int     { return 1 }
func (b brokenPipeline) Version() string        { return "broken" }
func (b brokenPipeline) PredictProba([]float64) ([]float64, error) {
	return b.proba, b.err
}

func TestPredictDefaults(t *testing.T) {
	svc := New(modeltest.Pipeline(t))

	res, err := svc.Predict(context.Background(), collect(t, nil))
	require.NoError(t, err)
	assert.InDelta(t, modeltest.DefaultProbability, res.Probability, 1e-12)
	assert.Equal(t, Responder, res.Verdict)
	assert.Equal(t, modeltest.Version, res.ModelVersion)
	assert.InDelta(t, modeltest.DefaultProbability*100, res.Percent(), 1e-9)
}

func TestPredictNonResponder(t *testing.T) {
	svc := New(modeltest.Pipeline(t))

	rec := collect(t, map[string]any{
		"BMI": 40.0, "Baseline_PASI": 30.0, "Hemoglobin": 100.0, "ALP": 200.0, "Biologics_History": 1,
	})
	res, err := svc.Predict(context.Background(), rec)
	require.NoError(t, err)
	assert.InDelta(t, 0.85/3, res.Probability, 1e-12)
	assert.Equal(t, NonResponder, res.Verdict)
}

func TestPredictProbabilityBounds(t *testing.T) {
	svc := New(modeltest.Pipeline(t))
	grid := []map[string]any{
		{"BMI": 10.0, "SII": 0.0},
		{"BMI": 50.0, "SII": 5000.0, "IBil": 50.0},
		{"Hemoglobin": 50.0, "ALP": 10.0, "Baseline_PASI": 0.0},
		{"Hemoglobin": 200.0, "ALP": 300.0, "Baseline_PASI": 72.0, "Biologics_History": 1},
	}
	for _, overrides := range grid {
		res, err := svc.Predict(context.Background(), collect(t, overrides))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, res.Probability, 0.0)
		assert.LessOrEqual(t, res.Probability, 1.0)
		assert.Equal(t, res.Probability > 0.5, res.Verdict == Responder)
	}
}

func TestVerdictThresholdIsStrict(t *testing.T) {
	assert.Equal(t, NonResponder, VerdictFor(0.5))
	assert.Equal(t, Responder, VerdictFor(0.5000001))
	assert.Equal(t, NonResponder, VerdictFor(0))
	assert.Equal(t, Responder, VerdictFor(1))
}

// Values travel with their names, so field order in the record is irrelevant.
// Feeding the same values by position instead changes the answer, which is
// the failure the name mapping exists to prevent.
func TestPredictIndependentOfFieldOrder(t *testing.T) {
	pipeline := modeltest.Pipeline(t)
	svc := New(pipeline)
	rec := collect(t, nil)
	permuted, err := rec.Permute([]int{6, 5, 4, 3, 2, 1, 0})
	require.NoError(t, err)

	want, err := svc.Predict(context.Background(), rec)
	require.NoError(t, err)
	got, err := svc.Predict(context.Background(), permuted)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	positional := make([]float64, 0, permuted.Len())
	for _, f := range permuted.Fields() {
		positional = append(positional, f.Value)
	}
	proba, err := pipeline.PredictProba(positional)
	require.NoError(t, err)
	assert.InDelta(t, 1.6/3, proba[1], 1e-12)
	assert.NotEqual(t, want.Probability, proba[1])
}

func TestPredictWrapsPipelineErrors(t *testing.T) {
	cause := errors.New("feature names should match those that were passed during fit")
	svc := New(brokenPipeline{err: cause})

	_, err := svc.Predict(context.Background(), collect(t, nil))
	var inf *InferenceError
	require.True(t, errors.As(err, &inf))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), cause.Error())
}

func TestPredictRejectsBadOutput(t *testing.T) {
	for name, proba := range map[string][]float64{
		"too few classes": {1},
		"out of range":    {-0.5, 1.5},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := New(brokenPipeline{proba: proba}).Predict(context.Background(), collect(t, nil))
			var inf *InferenceError
			assert.True(t, errors.As(err, &inf))
		})
	}
}

func TestPredictRecordMismatch(t *testing.T) {
	svc := New(modeltest.Pipeline(t))
	rec := intake.NewRecord(intake.Field{Name: "BMI", Value: 24})

	_, err := svc.Predict(context.Background(), rec)
	var inf *InferenceError
	require.True(t, errors.As(err, &inf))
	assert.Contains(t, err.Error(), "model expects 7")
}
