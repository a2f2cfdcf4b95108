package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	ScoreQueue      = "score_queue"
	RetryDelay      = 5 * time.Second
	MaxConnectRetry = 5
)

type Task interface {
	Type() string

	Payload() []byte

	Ack() error

	Nack() error

	Reject() error
}

// ScoreTaskPayload identifies a queued submission that a worker should
// score with the modality's model.
type ScoreTaskPayload struct {
	SubmissionId uuid.UUID
	Modality     string
}

type Publisher interface {
	PublishScoreTask(ctx context.Context, payload ScoreTaskPayload) error

	Close()
}

type Receiver interface {
	Tasks() <-chan Task

	Close()
}
