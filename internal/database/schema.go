package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	JobQueued    string = "QUEUED"
	JobRunning   string = "RUNNING"
	JobCompleted string = "COMPLETED"
	JobFailed    string = "FAILED"
)

// Submission is one uploaded modality input and, once scored, its
// prediction. The raw payload lives in object storage under ObjectKey.
type Submission struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Modality string `gorm:"size:20;not null;index"`
	Status   string `gorm:"size:20;not null"`

	FileName  string
	ObjectKey string `gorm:"not null"`

	Label        sql.NullString
	Score        sql.NullFloat64
	Confidence   sql.NullFloat64
	ModelVersion sql.NullString
	Error        sql.NullString

	CreationTime   time.Time
	CompletionTime sql.NullTime
}

// FusionReport is a persisted fusion outcome. Payload holds the full
// assembled report JSON so the API can return it verbatim.
type FusionReport struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	OverallLabel string  `gorm:"size:40;not null"`
	OverallScore float64 `gorm:"not null"`
	Degraded     bool    `gorm:"default:false"`

	Payload datatypes.JSON

	CreationTime time.Time
}
