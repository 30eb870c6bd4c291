package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/marketlake/internal/data/repos"
	"github.com/yungbote/marketlake/internal/domain/pipeline"
	"github.com/yungbote/marketlake/internal/jobs/orchestrator"
	"github.com/yungbote/marketlake/internal/platform/dbctx"
	"github.com/yungbote/marketlake/internal/platform/logger"
)

// TaskRecorder persists every task state the orchestrator reports.
// Persistence is best effort; a failed write never fails the task.
type TaskRecorder struct {
	log  *logger.Logger
	repo repos.TaskRunRepo
}

func NewTaskRecorder(baseLog *logger.Logger, repo repos.TaskRunRepo) *TaskRecorder {
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	return &TaskRecorder{log: baseLog.With("service", "TaskRecorder"), repo: repo}
}

func (r *TaskRecorder) RecordTask(ctx context.Context, runID string, st orchestrator.TaskState) {
	if r == nil || r.repo == nil {
		return
	}
	id, err := uuid.Parse(runID)
	if err != nil {
		r.log.Debug("skip task record for non-uuid run", "run_id", runID, "task", st.Key())
		return
	}
	row := &pipeline.TaskRun{
		RunID:       id,
		Task:        st.Task,
		Instance:    st.Instance,
		Fingerprint: st.Fingerprint,
		Status:      string(st.Status),
		Attempts:    st.Attempts,
		Cached:      st.Cached,
		Error:       st.LastError,
	}
	now := time.Now().UTC()
	row.StartedAt, row.FinishedAt = now, now
	if st.StartedAt != nil {
		row.StartedAt = *st.StartedAt
	}
	if st.FinishedAt != nil {
		row.FinishedAt = *st.FinishedAt
	}
	if st.Output != nil {
		if raw, err := json.Marshal(st.Output); err == nil {
			row.Output = datatypes.JSON(raw)
		}
	}
	if err := r.repo.Upsert(dbctx.Context{Ctx: context.WithoutCancel(ctx)}, row); err != nil {
		r.log.Warn("persist task run failed", "run_id", runID, "task", st.Key(), "error", err)
	}
}
