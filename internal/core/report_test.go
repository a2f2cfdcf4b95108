package core

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assemblerTestConfig() Config {
	cfg := fusionTestConfig()
	cfg.Guidance = []Guidance{
		{Precautions: []string{"low tier"}},
		{Precautions: []string{"moderate tier"}},
		{Precautions: []string{"elevated tier"}},
		{Precautions: []string{"high tier"}},
	}
	cfg.Advice = []string{"screening aid, not a diagnosis"}
	return cfg
}

func TestAssemble_SelectsGuidanceByTier(t *testing.T) {
	assembler := NewAssembler(assemblerTestConfig())

	meta := ReportMetadata{
		SubmissionID: uuid.New(),
		CreatedAt:    time.Now().UTC(),
	}

	report, err := assembler.Assemble(FusionResult{OverallScore: 0.65, OverallLabel: "Elevated risk"}, meta)
	require.NoError(t, err)

	assert.Equal(t, []string{"elevated tier"}, report.Guidance.Precautions)
	assert.Equal(t, []string{"screening aid, not a diagnosis"}, report.Advice)
	assert.Equal(t, meta.SubmissionID, report.SubmissionID)
}

func TestAssemble_Idempotent(t *testing.T) {
	assembler := NewAssembler(assemblerTestConfig())

	meta := ReportMetadata{
		SubmissionID: uuid.New(),
		CreatedAt:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	fusion := FusionResult{OverallScore: 0.1, OverallLabel: "Low risk"}

	first, err := assembler.Assemble(fusion, meta)
	require.NoError(t, err)
	second, err := assembler.Assemble(fusion, meta)
	require.NoError(t, err)

	assert.Equal(t, first.Id, second.Id)
}

func TestAssemble_DistinctSubmissionsGetDistinctIds(t *testing.T) {
	assembler := NewAssembler(assemblerTestConfig())

	createdAt := time.Now().UTC()
	fusion := FusionResult{OverallScore: 0.1, OverallLabel: "Low risk"}

	first, err := assembler.Assemble(fusion, ReportMetadata{SubmissionID: uuid.New(), CreatedAt: createdAt})
	require.NoError(t, err)
	second, err := assembler.Assemble(fusion, ReportMetadata{SubmissionID: uuid.New(), CreatedAt: createdAt})
	require.NoError(t, err)

	assert.NotEqual(t, first.Id, second.Id)
}

func TestAssemble_MissingCorrelationId(t *testing.T) {
	assembler := NewAssembler(assemblerTestConfig())

	_, err := assembler.Assemble(FusionResult{}, ReportMetadata{CreatedAt: time.Now().UTC()})
	assert.ErrorIs(t, err, ErrMissingCorrelationID)
}
