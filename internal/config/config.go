package config

import (
	"fmt"
	"os"

	"cardio-backend/internal/core"

	"gopkg.in/yaml.v2"
)

// DefaultEngineConfig returns the production scoring configuration:
// tensor shapes, the heart risk-factor schema, fusion weights, risk
// bands, and the tiered guidance text.
func DefaultEngineConfig(artifactDir string) core.Config {
	return core.Config{
		ArtifactDir: artifactDir,
		Shapes: core.ShapeConfig{
			ECGImageSize: 380,
			ECGSeriesLen: 187,
			PPGSeriesLen: 1000,
		},
		HeartFeatures: []string{
			"Sex",
			"GeneralHealth",
			"PhysicalHealthDays",
			"MentalHealthDays",
			"PhysicalActivities",
			"SleepHours",
			"HadStroke",
			"HadDiabetes",
			"SmokerStatus",
			"AgeCategory",
			"BMI",
			"AlcoholDrinkers",
		},
		Weights: map[core.Modality]float64{
			core.ModalityECG:   0.45,
			core.ModalityHeart: 0.30,
			core.ModalityPPG:   0.25,
		},
		Bands: core.RiskBands{
			Thresholds: []float64{0.2, 0.5, 0.8},
			Labels:     []string{"Low risk", "Moderate risk", "Elevated risk", "High risk"},
		},
		Guidance:          defaultGuidance(),
		Advice:            defaultAdvice(),
		DefaultConfidence: 0.5,
	}
}

func defaultGuidance() []core.Guidance {
	diet := []string{
		"Emphasize vegetables, fruits, legumes, nuts, whole grains.",
		"Prefer olive oil; limit processed foods, trans fats, and high sodium.",
		"Fish 2x/week; consider plant-based proteins routinely.",
	}
	habits := []string{
		"No smoking or vaping; avoid secondhand smoke.",
		"Regular physical activity; incorporate strength training 2x/week.",
		"Sleep hygiene: consistent schedule, dark/cool room, limit screens before bed.",
	}

	return []core.Guidance{
		{
			Precautions: []string{
				"Maintain routine annual checkups and blood pressure/lipid screening.",
				"Continue 150 minutes/week of moderate aerobic exercise.",
				"Avoid tobacco exposure and maintain healthy BMI.",
			},
			Measurements: []string{
				"Home BP: weekly if history of hypertension, otherwise monthly.",
				"Weight and waist circumference monthly.",
			},
			Consult: []string{
				"Primary care physician for preventive care as needed.",
			},
			Diet:   diet,
			Habits: habits,
		},
		{
			Precautions: []string{
				"Increase physical activity; aim for 150-300 minutes/week.",
				"Adopt Mediterranean-style diet; limit sodium to <2g/day.",
				"Target sleep 7-9 hours; manage stress with mindfulness.",
			},
			Measurements: []string{
				"Check BP twice weekly for 2 weeks; track average.",
				"Fasting lipids and HbA1c at next visit if not done in 12 months.",
			},
			Consult: []string{
				"Primary care for risk review; consider statin eligibility per guidelines.",
			},
			Diet:   diet,
			Habits: habits,
		},
		{
			Precautions: []string{
				"Prioritize BP, glucose, and lipid control; adhere to medications if prescribed.",
				"Reduce refined carbs and saturated fats; increase fiber and omega-3 sources.",
				"Avoid smoking/vaping; limit alcohol to recommended amounts.",
			},
			Measurements: []string{
				"Home BP daily for 1-2 weeks; bring log to clinic.",
				"Consider ambulatory BP monitoring if variability is high.",
			},
			Consult: []string{
				"Schedule a clinician visit for cardiovascular risk optimization.",
				"Discuss need for echocardiogram or stress testing based on symptoms and history.",
			},
			Diet:   diet,
			Habits: habits,
		},
		{
			Precautions: []string{
				"Seek prompt clinical assessment, especially if chest pain, dyspnea, or syncope.",
				"Avoid strenuous exertion until cleared by clinician.",
				"Strict adherence to cardio-protective medications if prescribed.",
			},
			Measurements: []string{
				"Immediate BP/HR assessment; track vitals if advised.",
				"If acute symptoms, urgent evaluation including ECG and troponin per clinician.",
			},
			Consult: []string{
				"Cardiologist consultation recommended.",
				"Emergency care if acute concerning symptoms occur.",
			},
			Diet:   diet,
			Habits: habits,
		},
	}
}

func defaultAdvice() []string {
	return []string{
		"This assessment is a screening aid, not a diagnosis.",
		"Please consult a qualified clinician for medical advice.",
		"If chest pain or severe symptoms occur, seek urgent care.",
	}
}

// riskPolicy is the YAML override format for fusion weights and risk
// bands. Fields left empty keep the built-in defaults.
type riskPolicy struct {
	Weights    map[string]float64 `yaml:"weights"`
	Thresholds []float64          `yaml:"thresholds"`
	Labels     []string           `yaml:"labels"`
	Guidance   []core.Guidance    `yaml:"guidance"`
	Advice     []string           `yaml:"advice"`
}

// LoadRiskPolicy overlays a YAML policy file onto cfg.
func LoadRiskPolicy(cfg core.Config, path string) (core.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.Config{}, fmt.Errorf("error reading risk policy %s: %w", path, err)
	}

	var policy riskPolicy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return core.Config{}, fmt.Errorf("error parsing risk policy %s: %w", path, err)
	}

	if len(policy.Weights) > 0 {
		weights := make(map[core.Modality]float64, len(policy.Weights))
		for name, w := range policy.Weights {
			modality, err := core.ParseModality(name)
			if err != nil {
				return core.Config{}, fmt.Errorf("invalid modality in risk policy: %w", err)
			}
			weights[modality] = w
		}
		cfg.Weights = weights
	}

	if len(policy.Thresholds) > 0 {
		cfg.Bands.Thresholds = policy.Thresholds
	}
	if len(policy.Labels) > 0 {
		cfg.Bands.Labels = policy.Labels
	}
	if len(policy.Guidance) > 0 {
		cfg.Guidance = policy.Guidance
	}
	if len(policy.Advice) > 0 {
		cfg.Advice = policy.Advice
	}

	if err := cfg.Validate(); err != nil {
		return core.Config{}, fmt.Errorf("invalid config after applying risk policy %s: %w", path, err)
	}

	return cfg, nil
}
