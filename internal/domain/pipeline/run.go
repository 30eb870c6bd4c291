package pipeline

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// PipelineRun is one orchestrated execution of the daily graph for a date.
type PipelineRun struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Day        string         `gorm:"column:day;not null;index" json:"day"`
	Trigger    string         `gorm:"column:trigger;not null" json:"trigger"`
	Status     string         `gorm:"column:status;not null;index" json:"status"`
	FailedTask string         `gorm:"column:failed_task" json:"failed_task,omitempty"`
	Error      string         `gorm:"column:error" json:"error,omitempty"`
	Tasks      datatypes.JSON `gorm:"column:tasks" json:"tasks,omitempty"`
	StartedAt  time.Time      `gorm:"column:started_at;not null;index" json:"started_at"`
	FinishedAt *time.Time     `gorm:"column:finished_at" json:"finished_at,omitempty"`
	CreatedAt  time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (PipelineRun) TableName() string { return "pipeline_run" }

// TaskRun records a single task-instance outcome (one per fan-out branch).
type TaskRun struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	RunID       uuid.UUID      `gorm:"type:uuid;column:run_id;not null;uniqueIndex:idx_task_run_instance,priority:1" json:"run_id"`
	Task        string         `gorm:"column:task;not null;uniqueIndex:idx_task_run_instance,priority:2" json:"task"`
	Instance    string         `gorm:"column:instance;not null;default:'';uniqueIndex:idx_task_run_instance,priority:3" json:"instance"`
	Fingerprint string         `gorm:"column:fingerprint;index" json:"fingerprint,omitempty"`
	Status      string         `gorm:"column:status;not null;index" json:"status"`
	Attempts    int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	Cached      bool           `gorm:"column:cached;not null;default:false" json:"cached"`
	Error       string         `gorm:"column:error" json:"error,omitempty"`
	Output      datatypes.JSON `gorm:"column:output" json:"output,omitempty"`
	StartedAt   time.Time      `gorm:"column:started_at;not null" json:"started_at"`
	FinishedAt  time.Time      `gorm:"column:finished_at;not null" json:"finished_at"`
	CreatedAt   time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
}

func (TaskRun) TableName() string { return "task_run" }
