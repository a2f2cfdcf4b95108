package core

import (
	"context"
	"errors"
	"log/slog"
	"math"
)

// binaryLabels are the per-modality label pairs for probability-output
// backends, indexed {below 0.5, at or above 0.5}.
var binaryLabels = map[Modality][2]string{
	ModalityHeart: {"Normal", "Abnormal"},
	ModalityPPG:   {"Normal", "MI"},
}

// Pipeline is the per-modality inference adapter: it preprocesses an
// input, borrows the model handle from the registry, and normalizes
// the backend-native output into a ModalityPrediction.
type Pipeline struct {
	registry *Registry
	pre      *Preprocessor
	cfg      Config
}

func NewPipeline(cfg Config, registry *Registry) *Pipeline {
	return &Pipeline{registry: registry, pre: NewPreprocessor(cfg), cfg: cfg}
}

func (p *Pipeline) Predict(ctx context.Context, input ModalityInput) (ModalityPrediction, error) {
	tensor, err := p.pre.Preprocess(input)
	if err != nil {
		return ModalityPrediction{}, err
	}

	handle, err := p.registry.Get(input.Modality)
	if err != nil {
		return ModalityPrediction{}, err
	}

	out, err := handle.Model.Predict(ctx, tensor)
	if err != nil {
		return ModalityPrediction{}, &InferenceError{Modality: input.Modality, Err: err}
	}

	return p.normalize(input.Modality, handle, out)
}

// normalize maps each backend's native output format onto the common
// prediction shape. For classifiers the raw score is the probability
// of any at-risk class, the label is the argmax class, and the
// confidence is the top class probability. For probability models the
// score stands as-is with the fixed binary label for the modality.
func (p *Pipeline) normalize(modality Modality, handle *ModelHandle, out Output) (ModalityPrediction, error) {
	pred := ModalityPrediction{Modality: modality, ModelVersion: handle.Version}

	if len(out.Probs) > 0 {
		top, topProb := 0, out.Probs[0]
		for i, v := range out.Probs {
			if math.IsNaN(v) {
				return ModalityPrediction{}, &InferenceError{Modality: modality, Err: errors.New("NaN class probability")}
			}
			if v > topProb {
				top, topProb = i, v
			}
		}
		pred.Label = out.Classes[top]
		pred.Confidence = clamp01(topProb)
		pred.RawScore = clamp01(1 - out.Probs[out.Normal])
		return pred, nil
	}

	if math.IsNaN(out.Score) {
		return ModalityPrediction{}, &InferenceError{Modality: modality, Err: errors.New("NaN score")}
	}
	pred.RawScore = clamp01(out.Score)

	labels, ok := binaryLabels[modality]
	if !ok {
		labels = [2]string{"Normal", "Abnormal"}
	}
	if pred.RawScore >= 0.5 {
		pred.Label = labels[1]
	} else {
		pred.Label = labels[0]
	}

	pred.Confidence = clamp01(out.Confidence)
	if pred.Confidence == 0 {
		pred.Confidence = p.cfg.DefaultConfidence
	}
	return pred, nil
}

// PredictEach runs every input through its modality pipeline.
// Modality-level failures never abort the batch: the failed modality
// is omitted from the result and its error collected, so fusion sees
// it as explicitly absent.
func (p *Pipeline) PredictEach(ctx context.Context, inputs []ModalityInput) (map[Modality]ModalityPrediction, []error) {
	preds := make(map[Modality]ModalityPrediction, len(inputs))
	var errs []error

	for _, input := range inputs {
		pred, err := p.Predict(ctx, input)
		if err != nil {
			slog.Error("modality prediction failed", "modality", input.Modality, "error", err)
			errs = append(errs, err)
			continue
		}
		preds[input.Modality] = pred
	}
	return preds, errs
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
