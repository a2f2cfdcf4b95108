package api

import (
	"time"

	"github.com/google/uuid"
)

type Submission struct {
	Id uuid.UUID `json:"id"`

	Modality string `json:"modality"`
	Status   string `json:"status"`
	FileName string `json:"file_name,omitempty"`

	Label        string  `json:"label,omitempty"`
	Score        float64 `json:"score,omitempty"`
	Confidence   float64 `json:"confidence,omitempty"`
	ModelVersion string  `json:"model_version,omitempty"`
	Error        string  `json:"error,omitempty"`

	CreationTime   time.Time  `json:"creation_time"`
	CompletionTime *time.Time `json:"completion_time,omitempty"`
}

type CreateSubmissionResponse struct {
	SubmissionId uuid.UUID `json:"submission_id"`
}

type ListSubmissionsResponse struct {
	Submissions []Submission `json:"submissions"`
}

type SearchSubmissionsParams struct {
	Query string `schema:"query"`
}

type ModalityResult struct {
	Modality     string  `json:"modality"`
	RawScore     float64 `json:"raw_score"`
	Label        string  `json:"label"`
	Confidence   float64 `json:"confidence"`
	ModelVersion string  `json:"model_version,omitempty"`
}

type GuidanceSection struct {
	Precautions  []string `json:"precautions"`
	Measurements []string `json:"measurements"`
	Consult      []string `json:"consult"`
	Diet         []string `json:"diet"`
	Habits       []string `json:"habits"`
}

type FusionReport struct {
	Id uuid.UUID `json:"id"`

	OverallScore float64 `json:"overall_score"`
	OverallLabel string  `json:"overall_label"`
	Degraded     bool    `json:"degraded"`

	Modalities   []ModalityResult `json:"modalities"`
	Contributing []string         `json:"contributing_modalities"`

	Guidance GuidanceSection `json:"guidance"`
	Advice   []string        `json:"advice,omitempty"`

	CreationTime time.Time `json:"creation_time"`
}

type ListReportsResponse struct {
	Reports []FusionReport `json:"reports"`
}
