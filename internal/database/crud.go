package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func UpdateSubmissionStatus(ctx context.Context, txn *gorm.DB, submissionId uuid.UUID, status string) error {
	updates := map[string]any{"status": status}
	if status == JobCompleted || status == JobFailed {
		updates["completion_time"] = time.Now().UTC()
	}

	if err := txn.WithContext(ctx).Model(&Submission{Id: submissionId}).Updates(updates).Error; err != nil {
		slog.Error("error updating submission status", "submission_id", submissionId, "status", status, "error", err)
		return err
	}
	return nil
}

// UpdateSubmissionResult records a completed prediction on the
// submission row.
func UpdateSubmissionResult(ctx context.Context, txn *gorm.DB, submissionId uuid.UUID, label string, score, confidence float64, modelVersion string) error {
	updates := map[string]any{
		"status":          JobCompleted,
		"label":           label,
		"score":           score,
		"confidence":      confidence,
		"model_version":   modelVersion,
		"completion_time": time.Now().UTC(),
	}

	if err := txn.WithContext(ctx).Model(&Submission{Id: submissionId}).Updates(updates).Error; err != nil {
		slog.Error("error saving submission result", "submission_id", submissionId, "error", err)
		return fmt.Errorf("error saving submission result: %w", err)
	}
	return nil
}

func MarkSubmissionFailed(ctx context.Context, txn *gorm.DB, submissionId uuid.UUID, errorMessage string) error {
	updates := map[string]any{
		"status":          JobFailed,
		"error":           errorMessage,
		"completion_time": time.Now().UTC(),
	}

	if err := txn.WithContext(ctx).Model(&Submission{Id: submissionId}).Updates(updates).Error; err != nil {
		slog.Error("error marking submission failed", "submission_id", submissionId, "error", err)
		return fmt.Errorf("error marking submission failed: %w", err)
	}
	return nil
}

// LatestSubmissionPerModality returns, for each modality with at least
// one completed submission, the most recently completed one.
func LatestSubmissionPerModality(ctx context.Context, db *gorm.DB) (map[string]Submission, error) {
	var rows []Submission
	if err := db.WithContext(ctx).
		Where("status = ?", JobCompleted).
		Order("completion_time DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("error querying completed submissions: %w", err)
	}

	latest := make(map[string]Submission)
	for _, row := range rows {
		if _, ok := latest[row.Modality]; !ok {
			latest[row.Modality] = row
		}
	}
	return latest, nil
}

func GetSubmission(ctx context.Context, db *gorm.DB, submissionId uuid.UUID) (Submission, error) {
	var submission Submission
	if err := db.WithContext(ctx).First(&submission, "id = ?", submissionId).Error; err != nil {
		return Submission{}, err
	}
	return submission, nil
}
