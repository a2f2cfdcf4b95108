package core

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// ModelType represents the backend family serving a modality.
type ModelType string

const (
	OnnxClassifier ModelType = "onnx_classifier"
	BoostedTrees   ModelType = "boosted_trees"
	LinearPCA      ModelType = "linear_pca"
)

// InputSpec is the input shape a loaded artifact declares it was
// trained on. Fields are zero when the backend does not accept that
// input form.
type InputSpec struct {
	ImageSize int // square image side
	SeriesLen int // 1-D sequence length
	Features  int // tabular feature count
}

// Output is the backend-native result of one forward pass. Classifier
// backends populate Classes/Probs (with Normal marking the no-risk
// class index); probability models populate Score and Confidence.
type Output struct {
	Classes []string
	Probs   []float64
	Normal  int

	Score      float64
	Confidence float64
}

// Model is the uniform capability interface over the three backend
// shapes. Implementations are read-only after load and safe for
// concurrent use.
type Model interface {
	Predict(ctx context.Context, tensor Tensor) (Output, error)

	InputSpec() InputSpec

	Version() string

	Release()
}

type ModelLoader func(artifactDir string) (Model, error)

// NewModelLoaders wires one loader per modality using the fixed
// artifact naming conventions of the artifact directory.
func NewModelLoaders() map[Modality]ModelLoader {
	return map[Modality]ModelLoader{
		ModalityECG:   LoadOnnxClassifier,
		ModalityHeart: LoadBoostedTrees,
		ModalityPPG:   LoadLinearPCA,
	}
}

// resolveArtifact picks the first existing candidate file in dir. The
// candidate order is the declared resolution strategy for the backend;
// the chosen file is logged once at load time and fixed for the
// process lifetime.
func resolveArtifact(dir string, candidates ...string) (string, error) {
	for _, name := range candidates {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			slog.Info("resolved model artifact", "path", path)
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: none of %v present in %s", ErrArtifactNotFound, candidates, dir)
}

func readArtifact(dir, name string) ([]byte, error) {
	path, err := resolveArtifact(dir, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", path, err)
	}
	return data, nil
}
