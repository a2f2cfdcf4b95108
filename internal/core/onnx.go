package core

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	ort "github.com/yalue/onnxruntime_go"
)

// ECG artifact layout: model.onnx, manifest.json, class_names.txt.
const (
	onnxModelFile    = "model.onnx"
	onnxManifestFile = "manifest.json"
	classNamesFile   = "class_names.txt"
)

type onnxManifest struct {
	Version     string `json:"version"`
	ImageSize   int    `json:"image_size"`
	SeriesLen   int    `json:"series_len"`
	NormalClass int    `json:"normal_class"`
}

// OnnxModel wraps the deep-learning ECG classifier. The exported graph
// accepts either a waveform image batch (1, H, W, 3) or a 1-D sample
// batch (1, L, 1), as the trained network served both input forms, and
// emits one logit per class.
type OnnxModel struct {
	session  *ort.DynamicAdvancedSession
	classes  []string
	manifest onnxManifest
}

func LoadOnnxClassifier(artifactDir string) (Model, error) {
	manifestData, err := readArtifact(artifactDir, onnxManifestFile)
	if err != nil {
		return nil, err
	}
	var manifest onnxManifest
	if err := json.Unmarshal(manifestData, &manifest); err != nil {
		return nil, fmt.Errorf("parse ecg manifest: %w", err)
	}

	classes, err := loadClassNames(artifactDir)
	if err != nil {
		return nil, err
	}
	if manifest.NormalClass < 0 || manifest.NormalClass >= len(classes) {
		return nil, fmt.Errorf("ecg manifest normal_class %d out of range for %d classes",
			manifest.NormalClass, len(classes))
	}

	onnxBytes, err := readArtifact(artifactDir, onnxModelFile)
	if err != nil {
		return nil, err
	}

	session, err := ort.NewDynamicAdvancedSessionWithONNXData(
		onnxBytes,
		[]string{"input"},
		[]string{"logits"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create onnx session: %w", err)
	}

	return &OnnxModel{session: session, classes: classes, manifest: manifest}, nil
}

func loadClassNames(artifactDir string) ([]string, error) {
	data, err := readArtifact(artifactDir, classNamesFile)
	if err != nil {
		return nil, err
	}

	var names []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("class names file is empty")
	}
	return names, nil
}

func (m *OnnxModel) Predict(ctx context.Context, tensor Tensor) (Output, error) {
	var shape ort.Shape
	switch tensor.Rank() {
	case 3:
		shape = ort.NewShape(1, int64(tensor.Shape[0]), int64(tensor.Shape[1]), int64(tensor.Shape[2]))
	case 1:
		shape = ort.NewShape(1, int64(tensor.Shape[0]), 1)
	default:
		return Output{}, fmt.Errorf("unsupported tensor rank %d for ecg model", tensor.Rank())
	}

	inT, err := ort.NewTensor(shape, tensor.Data)
	if err != nil {
		return Output{}, err
	}
	defer inT.Destroy()

	outT, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(len(m.classes))))
	if err != nil {
		return Output{}, err
	}
	defer outT.Destroy()

	if err := m.session.Run([]ort.Value{inT}, []ort.Value{outT}); err != nil {
		return Output{}, fmt.Errorf("session run error: %w", err)
	}

	logits := outT.GetData()
	probs, err := softmax(logits)
	if err != nil {
		return Output{}, err
	}

	return Output{Classes: m.classes, Probs: probs, Normal: m.manifest.NormalClass}, nil
}

// softmax converts one row of logits to probabilities, shifted by the
// max logit for numerical stability.
func softmax(logits []float32) ([]float64, error) {
	if len(logits) == 0 {
		return nil, fmt.Errorf("model produced no output values")
	}

	maxLogit := float64(logits[0])
	for _, v := range logits[1:] {
		if float64(v) > maxLogit {
			maxLogit = float64(v)
		}
	}

	probs := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		if math.IsNaN(float64(v)) {
			return nil, fmt.Errorf("model produced NaN output")
		}
		probs[i] = math.Exp(float64(v) - maxLogit)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs, nil
}

func (m *OnnxModel) InputSpec() InputSpec {
	return InputSpec{ImageSize: m.manifest.ImageSize, SeriesLen: m.manifest.SeriesLen}
}

func (m *OnnxModel) Version() string { return m.manifest.Version }

func (m *OnnxModel) Release() {
	m.session.Destroy()
}
