package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"cardio-backend/internal/database"
	"cardio-backend/internal/messaging"
	"cardio-backend/internal/storage"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TaskProcessor consumes score tasks from the queue, runs the matching
// modality model on the stored payload, and writes the prediction back
// to the submission row.
type TaskProcessor struct {
	db        *gorm.DB
	storage   storage.Provider
	receiver  messaging.Receiver
	pipeline  *Pipeline
	registry  *Registry
	artifacts *ArtifactSync

	uploadBucket string
}

func NewTaskProcessor(db *gorm.DB, store storage.Provider, receiver messaging.Receiver, pipeline *Pipeline, registry *Registry, artifacts *ArtifactSync, uploadBucket string) *TaskProcessor {
	return &TaskProcessor{
		db:           db,
		storage:      store,
		receiver:     receiver,
		pipeline:     pipeline,
		registry:     registry,
		artifacts:    artifacts,
		uploadBucket: uploadBucket,
	}
}

func (proc *TaskProcessor) Start() {
	slog.Info("starting task processor")

	for task := range proc.receiver.Tasks() {
		proc.ProcessTask(task)
	}
}

func (proc *TaskProcessor) Stop() {
	slog.Info("stopping task processor")

	proc.receiver.Close()
	proc.registry.Close()
}

func (proc *TaskProcessor) ProcessTask(task messaging.Task) {
	ctx := context.Background()

	var err error
	switch task.Type() {

	case messaging.ScoreQueue:
		var payload messaging.ScoreTaskPayload
		if err = json.Unmarshal(task.Payload(), &payload); err != nil {
			slog.Error("error unmarshalling score task", "error", err)
			if err := task.Reject(); err != nil { // Discard malformed message
				slog.Error("error rejecting message from queue", "error", err)
			}
			return
		}
		err = proc.processScoreTask(ctx, payload)

	default:
		slog.Error("received unknown task type", "queue", task.Type())
		if err := task.Reject(); err != nil { // reject unknown message type
			slog.Error("error rejecting message from queue", "error", err)
		}
		return
	}

	if err != nil {
		slog.Error("error processing task", "queue", task.Type(), "error", err)
		if err := task.Nack(); err != nil {
			slog.Error("error reporting processing failure on message from queue", "error", err)
		}
	} else {
		slog.Info("successfully processed task", "queue", task.Type())
		if err := task.Ack(); err != nil {
			slog.Error("error acknowledging message from queue", "error", err)
		}
	}
}

func (proc *TaskProcessor) processScoreTask(ctx context.Context, payload messaging.ScoreTaskPayload) error {
	slog.Info("processing score task", "submission_id", payload.SubmissionId, "modality", payload.Modality)

	submission, err := database.GetSubmission(ctx, proc.db, payload.SubmissionId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			slog.Error("submission not found, discarding task", "submission_id", payload.SubmissionId)
			return nil
		}
		return fmt.Errorf("error getting submission: %w", err)
	}

	if submission.Status == database.JobCompleted {
		slog.Info("submission already scored, skipping", "submission_id", payload.SubmissionId)
		return nil
	}

	modality, err := ParseModality(submission.Modality)
	if err != nil {
		proc.fail(ctx, submission.Id, err)
		return nil
	}

	if err := database.UpdateSubmissionStatus(ctx, proc.db, submission.Id, database.JobRunning); err != nil {
		slog.Error("error marking submission as running", "submission_id", submission.Id, "error", err)
	}

	if proc.artifacts != nil {
		if err := proc.artifacts.EnsureLocal(ctx, modality); err != nil {
			proc.fail(ctx, submission.Id, err)
			return fmt.Errorf("error syncing model artifacts: %w", err)
		}
	}

	data, err := proc.storage.GetObject(ctx, proc.uploadBucket, submission.ObjectKey)
	if err != nil {
		proc.fail(ctx, submission.Id, err)
		return fmt.Errorf("error fetching submission payload: %w", err)
	}

	input, err := InputFromUpload(modality, submission.FileName, data)
	if err != nil {
		// Malformed payloads are a terminal state for the submission,
		// not a reason to redeliver the task.
		proc.fail(ctx, submission.Id, err)
		return nil
	}

	pred, err := proc.pipeline.Predict(ctx, input)
	if err != nil {
		proc.fail(ctx, submission.Id, err)

		var formatErr *FormatError
		var shapeErr *ShapeError
		if errors.As(err, &formatErr) || errors.As(err, &shapeErr) {
			return nil
		}
		return fmt.Errorf("error scoring submission: %w", err)
	}

	if err := database.UpdateSubmissionResult(ctx, proc.db, submission.Id, pred.Label, pred.RawScore, pred.Confidence, pred.ModelVersion); err != nil {
		return err
	}

	slog.Info("score task completed", "submission_id", submission.Id, "modality", modality, "label", pred.Label, "score", pred.RawScore)

	return nil
}

func (proc *TaskProcessor) fail(ctx context.Context, submissionId uuid.UUID, cause error) {
	slog.Error("submission scoring failed", "submission_id", submissionId, "error", cause)
	if err := database.MarkSubmissionFailed(ctx, proc.db, submissionId, cause.Error()); err != nil {
		slog.Error("error recording submission failure", "submission_id", submissionId, "error", err)
	}
}
