package tone

import (
	"encoding/json"
	"fmt"
	"os"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/frgeek-official/fr-online-product-studio/internal/features"
)

// SchemaVersion is the model artifact format this build reads.
const SchemaVersion = 1

// Model maps a feature vector in features.Names order to raw, unclamped
// tone parameters. Implementations are safe for concurrent use.
type Model interface {
	Predict(featureVec []float64) (Parameters, error)
	// Version identifies the artifact for run reports.
	Version() string
}

// artifact is the on-disk JSON form exported by the offline training
// pipeline.
type artifact struct {
	SchemaVersion int        `json:"schema_version"`
	ModelVersion  string     `json:"model_version"`
	ModelType     string     `json:"model_type"`
	FeatureNames  []string   `json:"feature_names"`
	Targets       []string   `json:"targets"`
	Trees         []treeSpec `json:"trees,omitempty"`

	// Linear models only
	Weights   [][]float64 `json:"weights,omitempty"`
	Intercept []float64   `json:"intercept,omitempty"`
}

type treeSpec struct {
	Nodes []nodeSpec `json:"nodes"`
}

// nodeSpec is one node in the sklearn array layout: children always carry a
// higher index than their parent. A node with a leaf triple has no children.
type nodeSpec struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold"`
	Left      int       `json:"left"`
	Right     int       `json:"right"`
	Leaf      []float64 `json:"leaf,omitempty"`
}

var expectedTargets = []string{"brightness", "contrast", "gamma"}

// LoadModel reads and validates a model artifact. Any failure is wrapped in
// ModelUnavailableError so callers can distinguish model trouble from other
// configuration problems.
func LoadModel(path string) (Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ModelUnavailableError{Err: fmt.Errorf("read artifact: %w", err)}
	}

	var a artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, &ModelUnavailableError{Err: fmt.Errorf("parse artifact: %w", err)}
	}

	model, err := buildModel(&a)
	if err != nil {
		return nil, &ModelUnavailableError{Err: err}
	}
	return model, nil
}

func buildModel(a *artifact) (Model, error) {
	if a.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("artifact schema %d, want %d", a.SchemaVersion, SchemaVersion)
	}
	if err := checkNames(a.FeatureNames, features.Names, "feature"); err != nil {
		return nil, err
	}
	if err := checkNames(a.Targets, expectedTargets, "target"); err != nil {
		return nil, err
	}

	switch a.ModelType {
	case "random_forest":
		return buildForest(a)
	case "linear":
		return buildLinear(a)
	default:
		return nil, fmt.Errorf("unknown model type %q", a.ModelType)
	}
}

// checkNames enforces the exact ordering the model was trained against.
func checkNames(got, want []string, kind string) error {
	if len(got) != len(want) {
		return fmt.Errorf("artifact has %d %s names, want %d", len(got), kind, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			return fmt.Errorf("%s %d is %q, want %q", kind, i, got[i], want[i])
		}
	}
	return nil
}

// forestModel averages the leaf triples of a regression tree ensemble.
type forestModel struct {
	trees   []treeSpec
	version string
}

func buildForest(a *artifact) (*forestModel, error) {
	if len(a.Trees) == 0 {
		return nil, fmt.Errorf("random_forest artifact has no trees")
	}
	for ti, t := range a.Trees {
		if len(t.Nodes) == 0 {
			return nil, fmt.Errorf("tree %d has no nodes", ti)
		}
		for ni, n := range t.Nodes {
			if n.Leaf != nil {
				if len(n.Leaf) != len(expectedTargets) {
					return nil, fmt.Errorf("tree %d node %d leaf has %d values, want %d", ti, ni, len(n.Leaf), len(expectedTargets))
				}
				continue
			}
			if n.Feature < 0 || n.Feature >= len(features.Names) {
				return nil, fmt.Errorf("tree %d node %d splits on feature %d, have %d", ti, ni, n.Feature, len(features.Names))
			}
			if n.Left <= ni || n.Left >= len(t.Nodes) || n.Right <= ni || n.Right >= len(t.Nodes) {
				return nil, fmt.Errorf("tree %d node %d has out-of-order children %d/%d", ti, ni, n.Left, n.Right)
			}
		}
	}
	return &forestModel{trees: a.Trees, version: a.ModelVersion}, nil
}

func (m *forestModel) Predict(featureVec []float64) (Parameters, error) {
	if len(featureVec) != len(features.Names) {
		return Parameters{}, fmt.Errorf("feature vector has %d values, want %d", len(featureVec), len(features.Names))
	}

	sum := make([]float64, len(expectedTargets))
	for i := range m.trees {
		floats.Add(sum, walk(&m.trees[i], featureVec))
	}
	floats.Scale(1/float64(len(m.trees)), sum)

	return Parameters{Brightness: sum[0], Contrast: sum[1], Gamma: sum[2]}, nil
}

func (m *forestModel) Version() string { return m.version }

// walk descends one tree. Left on featureVec[feature] <= threshold, matching
// the training-side convention.
func walk(t *treeSpec, featureVec []float64) []float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Leaf != nil {
			return n.Leaf
		}
		if featureVec[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// linearModel computes W*x + b.
type linearModel struct {
	weights   *mat.Dense
	intercept []float64
	version   string
}

func buildLinear(a *artifact) (*linearModel, error) {
	if len(a.Weights) != len(expectedTargets) {
		return nil, fmt.Errorf("linear artifact has %d weight rows, want %d", len(a.Weights), len(expectedTargets))
	}
	flat := make([]float64, 0, len(expectedTargets)*len(features.Names))
	for i, row := range a.Weights {
		if len(row) != len(features.Names) {
			return nil, fmt.Errorf("weight row %d has %d values, want %d", i, len(row), len(features.Names))
		}
		flat = append(flat, row...)
	}
	if len(a.Intercept) != len(expectedTargets) {
		return nil, fmt.Errorf("linear artifact intercept has %d values, want %d", len(a.Intercept), len(expectedTargets))
	}

	return &linearModel{
		weights:   mat.NewDense(len(expectedTargets), len(features.Names), flat),
		intercept: a.Intercept,
		version:   a.ModelVersion,
	}, nil
}

func (m *linearModel) Predict(featureVec []float64) (Parameters, error) {
	if len(featureVec) != len(features.Names) {
		return Parameters{}, fmt.Errorf("feature vector has %d values, want %d", len(featureVec), len(features.Names))
	}

	x := mat.NewVecDense(len(featureVec), featureVec)
	out := mat.NewVecDense(len(expectedTargets), nil)
	out.MulVec(m.weights, x)

	return Parameters{
		Brightness: out.AtVec(0) + m.intercept[0],
		Contrast:   out.AtVec(1) + m.intercept[1],
		Gamma:      out.AtVec(2) + m.intercept[2],
	}, nil
}

func (m *linearModel) Version() string { return m.version }

// fixedModel always returns the same parameters. Used as the deterministic
// fixture in tests and golden runs.
type fixedModel struct {
	params Parameters
}

// FixedModel returns a Model that always predicts p.
func FixedModel(p Parameters) Model {
	return &fixedModel{params: p}
}

func (m *fixedModel) Predict([]float64) (Parameters, error) { return m.params, nil }

func (m *fixedModel) Version() string { return "fixed" }
