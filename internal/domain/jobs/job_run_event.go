package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type JobEventKind string

const (
	JobEventProgress  JobEventKind = "progress"
	JobEventDecision  JobEventKind = "decision"
	JobEventFailed    JobEventKind = "failed"
	JobEventCanceled  JobEventKind = "canceled"
	JobEventSucceeded JobEventKind = "succeeded"
)

// JobRunEvent is an append-only timeline entry for a run. Decision events
// record how a failure was resolved (degrade, skip or abandon) and carry the
// origin and step index in Data.
type JobRunEvent struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	JobID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"job_id"`
	JobType   string         `gorm:"column:job_type;not null" json:"job_type"`
	Kind      string         `gorm:"column:kind;not null;index" json:"kind"`
	Status    string         `gorm:"column:status;not null" json:"status"`
	Stage     string         `gorm:"column:stage;not null" json:"stage"`
	Progress  int            `gorm:"column:progress;not null;default:0" json:"progress"`
	Message   string         `gorm:"column:message;type:text" json:"message,omitempty"`
	Data      datatypes.JSON `gorm:"column:data;type:jsonb" json:"data,omitempty"`
	CreatedAt time.Time      `gorm:"not null;autoCreateTime;index" json:"created_at"`
}

func (JobRunEvent) TableName() string { return "job_run_event" }
