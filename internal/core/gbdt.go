package core

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
)

// Heart artifact layout: model.json (tree ensemble) plus the companion
// scaler.json fitted at training time.
const (
	gbdtModelFile  = "model.json"
	gbdtScalerFile = "scaler.json"
)

// gbdtTree is one regression tree in flattened node-array form.
// Feature[i] is the split feature of node i, or -1 for a leaf; leaves
// carry their output in Value[i].
type gbdtTree struct {
	Feature   []int     `json:"feature"`
	Threshold []float64 `json:"threshold"`
	Left      []int     `json:"left"`
	Right     []int     `json:"right"`
	Value     []float64 `json:"value"`
}

func (t *gbdtTree) validate(features int) error {
	n := len(t.Feature)
	if n == 0 {
		return fmt.Errorf("tree has no nodes")
	}
	if len(t.Threshold) != n || len(t.Left) != n || len(t.Right) != n || len(t.Value) != n {
		return fmt.Errorf("tree node arrays have inconsistent lengths")
	}
	for i, f := range t.Feature {
		if f >= features {
			return fmt.Errorf("node %d splits on feature %d, schema has %d", i, f, features)
		}
		if f >= 0 && (t.Left[i] < 0 || t.Left[i] >= n || t.Right[i] < 0 || t.Right[i] >= n) {
			return fmt.Errorf("node %d has child index out of range", i)
		}
	}

	// eval assumes the node arrays form a proper tree. A node reachable
	// twice means a cycle or shared subtree, and a cycle would never
	// terminate at inference, so reject the artifact here.
	visited := make([]bool, n)
	stack := []int{0}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[i] {
			return fmt.Errorf("node %d is reachable twice", i)
		}
		visited[i] = true
		if t.Feature[i] >= 0 {
			stack = append(stack, t.Left[i], t.Right[i])
		}
	}
	return nil
}

func (t *gbdtTree) eval(x []float64) float64 {
	i := 0
	for t.Feature[i] >= 0 {
		if x[t.Feature[i]] <= t.Threshold[i] {
			i = t.Left[i]
		} else {
			i = t.Right[i]
		}
	}
	return t.Value[i]
}

type gbdtArtifact struct {
	Version   string     `json:"version"`
	BaseScore float64    `json:"base_score"`
	Trees     []gbdtTree `json:"trees"`
}

type scalerArtifact struct {
	Version  string    `json:"version"`
	Features []string  `json:"features"`
	Mean     []float64 `json:"mean"`
	Scale    []float64 `json:"scale"`
}

// GbdtModel is the gradient-boosted heart disease classifier with its
// companion standardization scaler. Prediction standardizes the
// feature vector with the training-time scaler, sums the tree outputs
// on top of the base score, and squashes to P(heart disease).
type GbdtModel struct {
	model  gbdtArtifact
	scaler scalerArtifact
}

func LoadBoostedTrees(artifactDir string) (Model, error) {
	modelData, err := readArtifact(artifactDir, gbdtModelFile)
	if err != nil {
		return nil, err
	}
	var model gbdtArtifact
	if err := json.Unmarshal(modelData, &model); err != nil {
		return nil, fmt.Errorf("parse heart model: %w", err)
	}
	if len(model.Trees) == 0 {
		return nil, fmt.Errorf("heart model contains no trees")
	}

	scalerData, err := readArtifact(artifactDir, gbdtScalerFile)
	if err != nil {
		return nil, err
	}
	var scaler scalerArtifact
	if err := json.Unmarshal(scalerData, &scaler); err != nil {
		return nil, fmt.Errorf("parse heart scaler: %w", err)
	}
	if len(scaler.Mean) != len(scaler.Features) || len(scaler.Scale) != len(scaler.Features) {
		return nil, fmt.Errorf("heart scaler arrays do not match feature count %d", len(scaler.Features))
	}

	for i := range model.Trees {
		if err := model.Trees[i].validate(len(scaler.Features)); err != nil {
			return nil, fmt.Errorf("heart model tree %d: %w", i, err)
		}
	}

	return &GbdtModel{model: model, scaler: scaler}, nil
}

func (m *GbdtModel) Predict(ctx context.Context, tensor Tensor) (Output, error) {
	if tensor.Rank() != 1 || tensor.Shape[0] != len(m.scaler.Features) {
		return Output{}, fmt.Errorf("expected %d features, got shape %v", len(m.scaler.Features), tensor.Shape)
	}

	x := make([]float64, len(tensor.Data))
	for i, v := range tensor.Data {
		scale := m.scaler.Scale[i]
		if scale == 0 {
			scale = 1
		}
		x[i] = (float64(v) - m.scaler.Mean[i]) / scale
	}

	score := m.model.BaseScore
	for i := range m.model.Trees {
		score += m.model.Trees[i].eval(x)
	}

	p := sigmoid(score)
	if math.IsNaN(p) {
		return Output{}, fmt.Errorf("model produced NaN score")
	}
	return Output{Score: p, Confidence: math.Max(p, 1-p)}, nil
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

func (m *GbdtModel) InputSpec() InputSpec {
	return InputSpec{Features: len(m.scaler.Features)}
}

// FeatureNames returns the scaler's training schema in order.
func (m *GbdtModel) FeatureNames() []string { return m.scaler.Features }

func (m *GbdtModel) Version() string { return m.model.Version }

func (m *GbdtModel) Release() {}
