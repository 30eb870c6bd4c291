package runs

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/marketlake/internal/domain/pipeline"
	"github.com/yungbote/marketlake/internal/platform/dbctx"
	"github.com/yungbote/marketlake/internal/platform/logger"
)

type TaskRunRepo interface {
	// Upsert keeps one row per (run, task, instance); later attempts
	// overwrite earlier ones.
	Upsert(dbc dbctx.Context, tr *pipeline.TaskRun) error
	ListByRun(dbc dbctx.Context, runID uuid.UUID) ([]*pipeline.TaskRun, error)
}

type taskRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTaskRunRepo(db *gorm.DB, baseLog *logger.Logger) TaskRunRepo {
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	return &taskRunRepo{db: db, log: baseLog.With("repo", "TaskRunRepo")}
}

func (r *taskRunRepo) Upsert(dbc dbctx.Context, tr *pipeline.TaskRun) error {
	if tr == nil {
		return nil
	}
	if tr.ID == uuid.Nil {
		tr.ID = uuid.New()
	}
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "run_id"}, {Name: "task"}, {Name: "instance"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"fingerprint", "status", "attempts", "cached", "error", "output", "started_at", "finished_at",
			}),
		}).
		Create(tr).Error
}

func (r *taskRunRepo) ListByRun(dbc dbctx.Context, runID uuid.UUID) ([]*pipeline.TaskRun, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*pipeline.TaskRun
	if runID == uuid.Nil {
		return out, nil
	}
	err := transaction.WithContext(dbc.Ctx).
		Where("run_id = ?", runID).
		Order("started_at ASC, task ASC, instance ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
