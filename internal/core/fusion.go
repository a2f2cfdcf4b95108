package core

import "sort"

// defaultFusionWeight is applied to any contributing modality that has
// no configured weight, before renormalization.
const defaultFusionWeight = 0.2

// Fuser combines per-modality predictions into an overall risk
// assessment. Weights are renormalized over the modalities actually
// present, so missing inputs never drag the overall score toward zero.
type Fuser struct {
	weights map[Modality]float64
	bands   RiskBands
}

func NewFuser(cfg Config) *Fuser {
	weights := make(map[Modality]float64, len(cfg.Weights))
	for m, w := range cfg.Weights {
		weights[m] = w
	}
	return &Fuser{weights: weights, bands: cfg.Bands}
}

// Fuse produces the weighted overall result from the available
// predictions. requested lists every modality the caller intended to
// assess; the result is degraded when any of those is missing from
// preds. Returns ErrNoModalityAvailable when preds is empty.
func (f *Fuser) Fuse(preds map[Modality]ModalityPrediction, requested []Modality) (FusionResult, error) {
	if len(preds) == 0 {
		return FusionResult{}, ErrNoModalityAvailable
	}

	result := FusionResult{PerModality: make(map[Modality]ModalityPrediction, len(preds))}

	var weighted, total float64
	for modality, pred := range preds {
		w, ok := f.weights[modality]
		if !ok {
			w = defaultFusionWeight
		}
		weighted += w * pred.RawScore
		total += w
		result.PerModality[modality] = pred
		result.Contributing = append(result.Contributing, modality)
	}
	sort.Slice(result.Contributing, func(i, j int) bool {
		return result.Contributing[i] < result.Contributing[j]
	})

	if total > 0 {
		result.OverallScore = weighted / total
	} else {
		// A policy may zero every contributing weight; average
		// unweighted so the score stays defined and in [0, 1].
		var sum float64
		for _, pred := range preds {
			sum += pred.RawScore
		}
		result.OverallScore = sum / float64(len(preds))
	}
	result.OverallLabel = f.bands.Label(result.OverallScore)

	for _, modality := range requested {
		if _, ok := preds[modality]; !ok {
			result.Degraded = true
			break
		}
	}
	return result, nil
}
