package model_test

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skufu/il17a-response/internal/features"
	"github.com/Skufu/il17a-response/internal/model"
	"github.com/Skufu/il17a-response/internal/model/modeltest"
)

func defaultVector() []float64 {
	return []float64{24.0, 0, 15.0, 130.0, 70.0, 10.0, 500.0}
}

func TestLoadFixture(t *testing.T) {
	p, err := model.Load(modeltest.WriteArtifact(t), features.Default().Names())
	require.NoError(t, err)

	assert.Equal(t, modeltest.Version, p.Version())
	assert.Equal(t, features.Default().Names(), p.FeatureNames())
	assert.Equal(t, 1, p.PositiveClass())
	assert.Equal(t, "standard", p.ScalerKind())
	assert.Len(t, p.Classifier().Trees, 3)
}

func TestLoadMissingArtifact(t *testing.T) {
	_, err := model.Load(filepath.Join(t.TempDir(), "absent.json"), nil)

	var startup *model.StartupError
	require.True(t, errors.As(err, &startup))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestLoadRejectsFeatureOrderMismatch(t *testing.T) {
	names := features.Default().Names()
	names[0], names[1] = names[1], names[0]

	_, err := model.Load(modeltest.WriteArtifact(t), names)
	var startup *model.StartupError
	require.True(t, errors.As(err, &startup))
	assert.Contains(t, err.Error(), "feature order mismatch")
}

func TestLoadRejectsCorruptArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"format_version": 1`), 0o600))

	_, err := model.Load(path, nil)
	var startup *model.StartupError
	assert.True(t, errors.As(err, &startup))
}

func TestPredictProbaDefaults(t *testing.T) {
	p := modeltest.Pipeline(t)

	proba, err := p.PredictProba(defaultVector())
	require.NoError(t, err)
	require.Len(t, proba, 2)
	assert.InDelta(t, modeltest.DefaultProbability, proba[1], 1e-12)
	assert.InDelta(t, 1.0, proba[0]+proba[1], 1e-12)
}

func TestPredictProbaWrongWidth(t *testing.T) {
	p := modeltest.Pipeline(t)

	_, err := p.PredictProba([]float64{1, 2, 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expects 7 features")
}

func TestScaleStandard(t *testing.T) {
	p := modeltest.Pipeline(t)

	scaled, err := p.Scale(defaultVector())
	require.NoError(t, err)
	assert.InDelta(t, -0.25, scaled[0], 1e-12)
	assert.InDelta(t, 0.125, scaled[2], 1e-12)
	assert.InDelta(t, -0.2, scaled[6], 1e-12)
}

func mutateFixture(t *testing.T, mutate func(doc map[string]any)) []byte {
	t.Helper()
	var doc map[string]any
	require.NoError(t, json.Unmarshal(modeltest.ArtifactJSON, &doc))
	mutate(doc)
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	return raw
}

func firstTree(doc map[string]any) map[string]any {
	return doc["classifier"].(map[string]any)["trees"].([]any)[0].(map[string]any)
}

func TestParseRejectsInvalidArtifacts(t *testing.T) {
	cases := map[string]func(doc map[string]any){
		"schema: missing scaler": func(doc map[string]any) { delete(doc, "scaler") },
		"schema: wrong version":  func(doc map[string]any) { doc["format_version"] = 2 },
		"no responder class":     func(doc map[string]any) { doc["classes"] = []any{0, 2} },
		"zero scale": func(doc map[string]any) {
			doc["scaler"].(map[string]any)["scale"].([]any)[3] = 0
		},
		"short mean": func(doc map[string]any) {
			doc["scaler"].(map[string]any)["mean"] = []any{1, 2}
		},
		"backward child": func(doc map[string]any) {
			firstTree(doc)["children_left"].([]any)[1] = 0
		},
		"feature out of range": func(doc map[string]any) {
			firstTree(doc)["feature"].([]any)[0] = 7
		},
		"ragged arrays": func(doc map[string]any) {
			tree := firstTree(doc)
			tree["cover"] = tree["cover"].([]any)[:2]
		},
		"empty leaf": func(doc map[string]any) {
			firstTree(doc)["value"].([]any)[2] = []any{0, 0}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := model.Parse(mutateFixture(t, mutate))
			assert.Error(t, err)
		})
	}
}

func TestParseNormalizesCounts(t *testing.T) {
	raw := mutateFixture(t, func(doc map[string]any) {
		firstTree(doc)["value"].([]any)[2] = []any{10, 30}
	})
	p, err := model.Parse(raw)
	require.NoError(t, err)

	leaf := p.Classifier().Trees[0].Value[2]
	assert.InDelta(t, 0.25, leaf[0], 1e-12)
	assert.InDelta(t, 0.75, leaf[1], 1e-12)
}

func TestTreeDepthAndLeaf(t *testing.T) {
	p := modeltest.Pipeline(t)
	tree := p.Classifier().Trees[1]

	assert.Equal(t, 2, tree.MaxDepth())
	scaled, err := p.Scale(defaultVector())
	require.NoError(t, err)
	assert.Equal(t, 6, tree.Leaf(scaled))
}
