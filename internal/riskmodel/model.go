// Package riskmodel loads and evaluates the frozen flood-risk model artifact.
//
// The artifact is a JSON export of the trained ensemble: a standard scaler
// followed by two probability estimators. Training happens offline; this
// package only scores feature rows.
package riskmodel

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"gonum.org/v1/gonum/floats"

	"github.com/lox/floodwatch/internal/models"
)

var (
	ErrInvalidArtifact = errors.New("invalid model artifact")
	ErrFeatureMismatch = errors.New("feature mismatch")
)

// Ensemble weights for the primary and secondary estimators.
const (
	PrimaryWeight   = 0.6
	SecondaryWeight = 0.4
)

type artifact struct {
	ModelVersion string          `json:"model_version"`
	FeatureNames []string        `json:"feature_names"`
	Scaler       scalerSpec      `json:"scaler"`
	Primary      estimatorSpec   `json:"primary"`
	Secondary    estimatorSpec   `json:"secondary"`
	Metrics      *ArtifactMetric `json:"metrics,omitempty"`
}

type scalerSpec struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// ArtifactMetric is the evaluation summary recorded at training time.
type ArtifactMetric struct {
	TrainingDate      string                     `json:"training_date"`
	TrainingSamples   int                        `json:"training_samples"`
	Accuracy          float64                    `json:"accuracy"`
	Precision         float64                    `json:"precision"`
	Recall            float64                    `json:"recall"`
	F1Score           float64                    `json:"f1_score"`
	FeatureImportance []models.FeatureImportance `json:"feature_importance"`
	DataSources       []string                   `json:"data_sources"`
}

// Model is a loaded, validated artifact. It is immutable and safe for
// concurrent use.
type Model struct {
	version   string
	features  []string
	mean      []float64
	scale     []float64
	primary   Estimator
	secondary Estimator
	metrics   *ArtifactMetric
}

// Load reads an artifact from disk.
func Load(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open model artifact: %w", err)
	}
	defer f.Close()

	m, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse decodes and validates an artifact.
func Parse(r io.Reader) (*Model, error) {
	var a artifact
	dec := json.NewDecoder(r)
	if err := dec.Decode(&a); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidArtifact, err)
	}

	if len(a.FeatureNames) == 0 {
		return nil, fmt.Errorf("%w: no feature names", ErrFeatureMismatch)
	}
	index := make(map[string]int, len(a.FeatureNames))
	for i, name := range a.FeatureNames {
		if _, dup := index[name]; dup {
			return nil, fmt.Errorf("%w: duplicate feature %q", ErrFeatureMismatch, name)
		}
		index[name] = i
	}

	n := len(a.FeatureNames)
	if len(a.Scaler.Mean) != n || len(a.Scaler.Scale) != n {
		return nil, fmt.Errorf("%w: scaler has %d means and %d scales for %d features",
			ErrInvalidArtifact, len(a.Scaler.Mean), len(a.Scaler.Scale), n)
	}
	for i, s := range a.Scaler.Scale {
		if s == 0 {
			return nil, fmt.Errorf("%w: zero scale for %q", ErrInvalidArtifact, a.FeatureNames[i])
		}
	}

	primary, err := a.Primary.build(index)
	if err != nil {
		return nil, fmt.Errorf("primary estimator: %w", err)
	}
	secondary, err := a.Secondary.build(index)
	if err != nil {
		return nil, fmt.Errorf("secondary estimator: %w", err)
	}

	version := a.ModelVersion
	if version == "" {
		version = "unversioned"
	}

	return &Model{
		version:   version,
		features:  a.FeatureNames,
		mean:      a.Scaler.Mean,
		scale:     a.Scaler.Scale,
		primary:   primary,
		secondary: secondary,
		metrics:   a.Metrics,
	}, nil
}

func (m *Model) Version() string { return m.version }

// FeatureNames returns the ordered feature names rows must follow.
func (m *Model) FeatureNames() []string {
	out := make([]string, len(m.features))
	copy(out, m.features)
	return out
}

// Metrics returns the training summary, or nil when the artifact has none.
func (m *Model) Metrics() *ArtifactMetric { return m.metrics }

// Score standardises each row and returns the primary and secondary
// probabilities.
func (m *Model) Score(rows [][]float64) (pa, pb []float64, err error) {
	pa = make([]float64, len(rows))
	pb = make([]float64, len(rows))
	buf := make([]float64, len(m.features))
	for i, row := range rows {
		if len(row) != len(m.features) {
			return nil, nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrFeatureMismatch, i, len(row), len(m.features))
		}
		copy(buf, row)
		floats.Sub(buf, m.mean)
		floats.Div(buf, m.scale)
		pa[i] = m.primary.Predict(buf)
		pb[i] = m.secondary.Predict(buf)
	}
	return pa, pb, nil
}

// Combine blends the two estimator outputs and clamps to [0,1].
func Combine(pa, pb float64) float64 {
	return Clamp(PrimaryWeight*pa + SecondaryWeight*pb)
}

func Clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
