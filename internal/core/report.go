package core

import (
	"time"

	"github.com/google/uuid"
)

// ReportMetadata carries the identifying context for a report. The
// submission id correlates the report with the inputs that produced
// it; input refs record, per modality, which uploaded file fed the
// assessment.
type ReportMetadata struct {
	SubmissionID uuid.UUID           `json:"submission_id"`
	InputRefs    map[Modality]string `json:"input_refs,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
}

// Report is the assembled patient-facing assessment.
type Report struct {
	Id           uuid.UUID           `json:"id"`
	SubmissionID uuid.UUID           `json:"submission_id"`
	CreatedAt    time.Time           `json:"created_at"`
	Fusion       FusionResult        `json:"fusion"`
	Inputs       map[Modality]string `json:"inputs,omitempty"`
	Guidance     Guidance            `json:"guidance"`
	Advice       []string            `json:"advice,omitempty"`
}

// reportNamespace seeds deterministic report ids so assembling the
// same fusion result for the same submission always yields the same
// report id.
var reportNamespace = uuid.MustParse("8f3c1b4e-5a56-4f62-9d5e-02f1e0c7a9d1")

// Assembler turns a fusion result into a full report by attaching the
// tiered guidance and the general advice text.
type Assembler struct {
	bands    RiskBands
	guidance []Guidance
	advice   []string
}

func NewAssembler(cfg Config) *Assembler {
	return &Assembler{bands: cfg.Bands, guidance: cfg.Guidance, advice: cfg.Advice}
}

// Assemble builds the report for a fusion result. The report id is
// derived from the submission id and creation time, so repeated
// assembly of the same outcome is idempotent.
func (a *Assembler) Assemble(fusion FusionResult, meta ReportMetadata) (Report, error) {
	if meta.SubmissionID == uuid.Nil {
		return Report{}, ErrMissingCorrelationID
	}

	tier := a.bands.Tier(fusion.OverallScore)
	var guidance Guidance
	if tier < len(a.guidance) {
		guidance = a.guidance[tier]
	}

	seed := meta.SubmissionID.String() + "|" + meta.CreatedAt.UTC().Format(time.RFC3339Nano)
	return Report{
		Id:           uuid.NewSHA1(reportNamespace, []byte(seed)),
		SubmissionID: meta.SubmissionID,
		CreatedAt:    meta.CreatedAt,
		Fusion:       fusion,
		Inputs:       meta.InputRefs,
		Guidance:     guidance,
		Advice:       a.advice,
	}, nil
}
