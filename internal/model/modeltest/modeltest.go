// Package modeltest provides a small fitted pipeline for tests.
//
// The fixture forest has three trees. For the schema default inputs it
// predicts a responder probability of 2.05/3 and its expected output is 1.54/3.
package modeltest

import (
	_ "embed"
	"os"
	"path/filepath"
	"testing"

	"github.com/Skufu/il17a-response/internal/model"
)

//go:embed rf_model.json
var ArtifactJSON []byte

const (
	DefaultProbability = 2.05 / 3
	ExpectedValue      = 1.54 / 3
	Version            = "rf-test-3trees"
)

// Pipeline parses the fixture artifact.
func Pipeline(t testing.TB) *model.Pipeline {
	t.Helper()
	p, err := model.Parse(ArtifactJSON)
	if err != nil {
		t.Fatalf("parse fixture artifact: %v", err)
	}
	return p
}

// WriteArtifact writes the fixture to a temp dir and returns its path.
func WriteArtifact(t testing.TB) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rf_model.json")
	if err := os.WriteFile(path, ArtifactJSON, 0o600); err != nil {
		t.Fatalf("write fixture artifact: %v", err)
	}
	return path
}
