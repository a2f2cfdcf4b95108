package core

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
)

// PPG artifact layout: model.json (logistic regression) plus the
// companion pca.json dimensionality reduction fitted at training time.
const (
	linearModelFile = "model.json"
	pcaFile         = "pca.json"
)

type linearArtifact struct {
	Version   string    `json:"version"`
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
}

type pcaArtifact struct {
	Version    string      `json:"version"`
	Mean       []float64   `json:"mean"`
	Components [][]float64 `json:"components"`
}

// LinearModel is the classical PPG classifier: the resampled signal is
// centered and projected with the training-time PCA, then scored by
// logistic regression as P(myocardial infarction).
type LinearModel struct {
	model linearArtifact
	pca   pcaArtifact
}

func LoadLinearPCA(artifactDir string) (Model, error) {
	modelData, err := readArtifact(artifactDir, linearModelFile)
	if err != nil {
		return nil, err
	}
	var model linearArtifact
	if err := json.Unmarshal(modelData, &model); err != nil {
		return nil, fmt.Errorf("parse ppg model: %w", err)
	}

	pcaData, err := readArtifact(artifactDir, pcaFile)
	if err != nil {
		return nil, err
	}
	var pca pcaArtifact
	if err := json.Unmarshal(pcaData, &pca); err != nil {
		return nil, fmt.Errorf("parse ppg pca transform: %w", err)
	}

	if len(pca.Components) == 0 {
		return nil, fmt.Errorf("ppg pca transform has no components")
	}
	for i, row := range pca.Components {
		if len(row) != len(pca.Mean) {
			return nil, fmt.Errorf("ppg pca component %d has %d values, mean has %d", i, len(row), len(pca.Mean))
		}
	}
	if len(model.Coef) != len(pca.Components) {
		return nil, fmt.Errorf("ppg model expects %d components, pca provides %d",
			len(model.Coef), len(pca.Components))
	}

	return &LinearModel{model: model, pca: pca}, nil
}

func (m *LinearModel) Predict(ctx context.Context, tensor Tensor) (Output, error) {
	if tensor.Rank() != 1 || tensor.Shape[0] != len(m.pca.Mean) {
		return Output{}, fmt.Errorf("expected %d samples, got shape %v", len(m.pca.Mean), tensor.Shape)
	}

	centered := make([]float64, len(tensor.Data))
	for i, v := range tensor.Data {
		centered[i] = float64(v) - m.pca.Mean[i]
	}

	z := m.model.Intercept
	for j, component := range m.pca.Components {
		var proj float64
		for i, c := range component {
			proj += c * centered[i]
		}
		z += m.model.Coef[j] * proj
	}

	p := sigmoid(z)
	if math.IsNaN(p) {
		return Output{}, fmt.Errorf("model produced NaN score")
	}
	return Output{Score: p, Confidence: math.Max(p, 1-p)}, nil
}

func (m *LinearModel) InputSpec() InputSpec {
	return InputSpec{SeriesLen: len(m.pca.Mean)}
}

func (m *LinearModel) Version() string { return m.model.Version }

func (m *LinearModel) Release() {}
