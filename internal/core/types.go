package core

import "fmt"

// Modality identifies one physiological input channel.
type Modality string

const (
	ModalityECG   Modality = "ecg"
	ModalityHeart Modality = "heart"
	ModalityPPG   Modality = "ppg"
)

// AllModalities returns the full modality set in stable order.
func AllModalities() []Modality {
	return []Modality{ModalityECG, ModalityHeart, ModalityPPG}
}

func ParseModality(s string) (Modality, error) {
	switch Modality(s) {
	case ModalityECG, ModalityHeart, ModalityPPG:
		return Modality(s), nil
	}
	return "", fmt.Errorf("unknown modality %q", s)
}

// ModalityInput is the tagged union handed over by the upload intake.
// Exactly one payload field must be set, matching the modality:
// Image holds encoded ECG waveform image bytes, Series holds an ordered
// ECG or PPG sample sequence, Fields holds named cardiac risk factors.
type ModalityInput struct {
	Modality Modality
	FileName string

	Image  []byte
	Series []float64
	Fields map[string]float64
}

func (in ModalityInput) Validate() error {
	set := 0
	if len(in.Image) > 0 {
		set++
	}
	if len(in.Series) > 0 {
		set++
	}
	if len(in.Fields) > 0 {
		set++
	}
	if set == 0 {
		return NewFormatError("empty input payload for modality %q", in.Modality)
	}
	if set > 1 {
		return NewFormatError("multiple input payloads set for modality %q", in.Modality)
	}

	switch in.Modality {
	case ModalityECG:
		if in.Fields != nil {
			return NewFormatError("ecg input must be an image or a sample series")
		}
	case ModalityHeart:
		if in.Fields == nil {
			return NewFormatError("heart input must be named risk factor fields")
		}
	case ModalityPPG:
		if in.Series == nil {
			return NewFormatError("ppg input must be a sample series")
		}
	default:
		return NewFormatError("unknown modality %q", in.Modality)
	}
	return nil
}

// Tensor is a model-ready numeric array with its declared shape. The
// shape always matches the configured target shape for the modality;
// preprocessing fails rather than producing anything else.
type Tensor struct {
	Modality Modality
	Shape    []int
	Data     []float32
}

func (t Tensor) Rank() int { return len(t.Shape) }

func (t Tensor) Elems() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// ModalityPrediction is the normalized output of one model backend.
// RawScore and Confidence are always in [0, 1]; RawScore is the
// probability of the at-risk outcome for this modality.
type ModalityPrediction struct {
	Modality     Modality `json:"modality"`
	RawScore     float64  `json:"raw_score"`
	Label        string   `json:"label"`
	Confidence   float64  `json:"confidence"`
	ModelVersion string   `json:"model_version"`
}

// FusionResult is the combined verdict over the available modality
// predictions. Degraded is true iff Contributing is a strict subset of
// the requested modality set; absent modalities are simply missing from
// PerModality, never filled with fabricated scores.
type FusionResult struct {
	PerModality  map[Modality]ModalityPrediction `json:"per_modality"`
	OverallScore float64                         `json:"overall_score"`
	OverallLabel string                          `json:"overall_label"`
	Contributing []Modality                      `json:"contributing_modalities"`
	Degraded     bool                            `json:"degraded"`
}
