package core

import "fmt"

// ShapeConfig declares the fixed tensor shape each model was trained
// on. The registry refuses artifacts that disagree with these values.
type ShapeConfig struct {
	ECGImageSize int // square image side in pixels
	ECGSeriesLen int // resampled ECG sample count
	PPGSeriesLen int // resampled PPG sample count
}

// RiskBands maps an overall score to a risk label. Thresholds are
// ascending upper bounds; a score below Thresholds[i] falls in band i,
// anything else in the last band. A score exactly on a threshold
// resolves to the higher-severity band.
type RiskBands struct {
	Thresholds []float64
	Labels     []string
}

func (b RiskBands) Tier(score float64) int {
	for i, t := range b.Thresholds {
		if score < t {
			return i
		}
	}
	return len(b.Labels) - 1
}

func (b RiskBands) Label(score float64) string {
	return b.Labels[b.Tier(score)]
}

// Guidance is the fixed advisory text attached to a report for one
// risk tier.
type Guidance struct {
	Precautions  []string `json:"precautions" yaml:"precautions"`
	Measurements []string `json:"measurements" yaml:"measurements"`
	Consult      []string `json:"consult" yaml:"consult"`
	Diet         []string `json:"diet" yaml:"diet"`
	Habits       []string `json:"habits" yaml:"habits"`
}

// Config is the single configuration object the engine consumes at
// startup. The core never reads environment variables or files for
// configuration itself.
type Config struct {
	ArtifactDir   string
	Shapes        ShapeConfig
	HeartFeatures []string

	Weights map[Modality]float64
	Bands   RiskBands

	// Guidance is indexed by risk tier, one entry per band label.
	// Advice is general text attached to every report.
	Guidance []Guidance
	Advice   []string

	// DefaultConfidence is reported for models that do not natively
	// report one.
	DefaultConfidence float64
}

func (c Config) Validate() error {
	if c.Shapes.ECGImageSize <= 0 || c.Shapes.ECGSeriesLen <= 0 || c.Shapes.PPGSeriesLen <= 0 {
		return fmt.Errorf("tensor shapes must be positive")
	}
	if len(c.HeartFeatures) == 0 {
		return fmt.Errorf("heart feature schema is empty")
	}
	if len(c.Bands.Labels) != len(c.Bands.Thresholds)+1 {
		return fmt.Errorf("risk bands need one more label than thresholds, got %d labels for %d thresholds",
			len(c.Bands.Labels), len(c.Bands.Thresholds))
	}
	for i := 1; i < len(c.Bands.Thresholds); i++ {
		if c.Bands.Thresholds[i] <= c.Bands.Thresholds[i-1] {
			return fmt.Errorf("risk band thresholds must be strictly ascending")
		}
	}
	if len(c.Guidance) > 0 && len(c.Guidance) != len(c.Bands.Labels) {
		return fmt.Errorf("guidance entries must match band count")
	}
	for m, w := range c.Weights {
		if w < 0 {
			return fmt.Errorf("fusion weight for %s is negative", m)
		}
	}
	if c.DefaultConfidence < 0 || c.DefaultConfidence > 1 {
		return fmt.Errorf("default confidence must be in [0, 1]")
	}
	return nil
}
