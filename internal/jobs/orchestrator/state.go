package orchestrator

import (
	"fmt"
	"time"

	"github.com/yungbote/marketlake/internal/domain/pipeline"
)

type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
	// TaskSkipped marks a step whose dependency failed.
	TaskSkipped TaskStatus = "skipped"
)

// TaskState is the record of one task instance inside a run.
type TaskState struct {
	Task        string              `json:"task"`
	Instance    string              `json:"instance,omitempty"`
	Fingerprint string              `json:"fingerprint,omitempty"`
	Status      TaskStatus          `json:"status"`
	Attempts    int                 `json:"attempts"`
	Cached      bool                `json:"cached,omitempty"`
	StartedAt   *time.Time          `json:"started_at,omitempty"`
	FinishedAt  *time.Time          `json:"finished_at,omitempty"`
	LastError   string              `json:"last_error,omitempty"`
	Output      *pipeline.JobOutput `json:"output,omitempty"`
}

// Key identifies the instance within its run.
func (s *TaskState) Key() string {
	if s.Instance == "" {
		return s.Task
	}
	return s.Task + "/" + s.Instance
}

var allowed = map[TaskStatus][]TaskStatus{
	TaskPending: {TaskRunning, TaskSkipped},
	TaskRunning: {TaskSucceeded, TaskFailed},
	TaskFailed:  {TaskRunning},
}

// transition moves s to next, rejecting edges outside
// Pending -> Running -> {Succeeded, Failed} and Failed -> Running.
func (s *TaskState) transition(next TaskStatus, now time.Time) error {
	ok := false
	for _, to := range allowed[s.Status] {
		if to == next {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("task %s: illegal transition %s -> %s", s.Key(), s.Status, next)
	}
	s.Status = next
	switch next {
	case TaskRunning:
		s.Attempts++
		if s.StartedAt == nil {
			s.StartedAt = ptrTime(now)
		}
		s.FinishedAt = nil
	case TaskSucceeded, TaskFailed, TaskSkipped:
		s.FinishedAt = ptrTime(now)
	}
	return nil
}

func ptrTime(t time.Time) *time.Time { return &t }

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
