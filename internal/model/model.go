// Package model loads the exported scaler + random forest pipeline and runs it.
package model

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// StartupError means no usable model could be loaded. The service must not
// accept requests without one.
type StartupError struct {
	Path string
	Err  error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("model unavailable (%s): %v", e.Path, e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }

type artifact struct {
	FormatVersion int            `json:"format_version"`
	ModelVersion  string         `json:"model_version"`
	FeatureNames  []string       `json:"feature_names"`
	Classes       []int          `json:"classes"`
	Scaler        scalerSpec     `json:"scaler"`
	Classifier    classifierSpec `json:"classifier"`
}

type scalerSpec struct {
	Kind  string    `json:"kind"`
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
	Min   []float64 `json:"min"`
}

type classifierSpec struct {
	Kind  string     `json:"kind"`
	Trees []treeSpec `json:"trees"`
}

type treeSpec struct {
	ChildrenLeft  []int       `json:"children_left"`
	ChildrenRight []int       `json:"children_right"`
	Feature       []int       `json:"feature"`
	Threshold     []float64   `json:"threshold"`
	Value         [][]float64 `json:"value"`
	Cover         []float64   `json:"cover"`
}

//go:embed artifact.schema.json
var artifactSchemaJSON string

var (
	artifactSchemaOnce sync.Once
	artifactSchema     *jsonschema.Schema
	artifactSchemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	artifactSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("artifact.schema.json", strings.NewReader(artifactSchemaJSON)); err != nil {
			artifactSchemaErr = err
			return
		}
		artifactSchema, artifactSchemaErr = compiler.Compile("artifact.schema.json")
	})
	return artifactSchema, artifactSchemaErr
}

// Load reads the artifact at path. When expected is non-empty the artifact's
// feature order must equal it exactly. Every failure is a *StartupError.
func Load(path string, expected []string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &StartupError{Path: path, Err: err}
	}
	p, err := Parse(data)
	if err != nil {
		return nil, &StartupError{Path: path, Err: err}
	}
	if len(expected) > 0 && !slices.Equal(p.names, expected) {
		return nil, &StartupError{Path: path, Err: fmt.Errorf(
			"feature order mismatch: model was fitted on %v, schema declares %v", p.names, expected)}
	}
	return p, nil
}

// Parse validates and builds a pipeline from raw artifact JSON.
func Parse(data []byte) (*Pipeline, error) {
	schema, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("compile artifact schema: %w", err)
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("invalid artifact: %w", err)
	}

	var a artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	return build(a)
}

func build(a artifact) (*Pipeline, error) {
	positive := slices.Index(a.Classes, 1)
	if positive < 0 {
		return nil, fmt.Errorf("classes %v do not include the responder class 1", a.Classes)
	}
	n := len(a.FeatureNames)

	scaler, err := buildScaler(a.Scaler, n)
	if err != nil {
		return nil, err
	}
	if a.Classifier.Kind == "decision_tree" && len(a.Classifier.Trees) != 1 {
		return nil, fmt.Errorf("decision_tree classifier must have exactly one tree, got %d", len(a.Classifier.Trees))
	}

	forest := &Forest{NClasses: len(a.Classes), NFeature: n}
	for i, spec := range a.Classifier.Trees {
		t, err := buildTree(spec, n, len(a.Classes))
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		forest.Trees = append(forest.Trees, t)
	}

	version := a.ModelVersion
	if version == "" {
		version = "unversioned"
	}
	return &Pipeline{
		version:  version,
		names:    slices.Clone(a.FeatureNames),
		classes:  slices.Clone(a.Classes),
		positive: positive,
		scaler:   scaler,
		forest:   forest,
	}, nil
}

// Pipeline is the loaded model. It is immutable after Load and safe for
// concurrent use.
type Pipeline struct {
	version  string
	names    []string
	classes  []int
	positive int
	scaler   Scaler
	forest   *Forest
}

func (p *Pipeline) Version() string { return p.version }

// FeatureNames is the column order the classifier was fitted with.
func (p *Pipeline) FeatureNames() []string { return slices.Clone(p.names) }

// PositiveClass is the index of the responder class in probability vectors.
func (p *Pipeline) PositiveClass() int { return p.positive }

func (p *Pipeline) Classifier() *Forest { return p.forest }

func (p *Pipeline) ScalerKind() string { return p.scaler.Kind() }

// Scale applies the bundled scaler.
func (p *Pipeline) Scale(x []float64) ([]float64, error) {
	return p.scaler.Transform(x)
}

// PredictProba runs the whole pipeline on one raw feature vector.
func (p *Pipeline) PredictProba(x []float64) ([]float64, error) {
	scaled, err := p.Scale(x)
	if err != nil {
		return nil, fmt.Errorf("scale: %w", err)
	}
	proba, err := p.forest.PredictProba(scaled)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	return proba, nil
}
