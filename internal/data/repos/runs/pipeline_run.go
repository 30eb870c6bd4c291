package runs

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/marketlake/internal/domain/pipeline"
	"github.com/yungbote/marketlake/internal/platform/dbctx"
	"github.com/yungbote/marketlake/internal/platform/logger"
)

type PipelineRunRepo interface {
	Create(dbc dbctx.Context, run *pipeline.PipelineRun) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*pipeline.PipelineRun, error)
	LatestByDay(dbc dbctx.Context, day string) (*pipeline.PipelineRun, error)
	ListRecent(dbc dbctx.Context, day string, limit int) ([]*pipeline.PipelineRun, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type pipelineRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPipelineRunRepo(db *gorm.DB, baseLog *logger.Logger) PipelineRunRepo {
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	return &pipelineRunRepo{db: db, log: baseLog.With("repo", "PipelineRunRepo")}
}

func (r *pipelineRunRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx)
	}
	return r.db.WithContext(dbc.Ctx)
}

func (r *pipelineRunRepo) Create(dbc dbctx.Context, run *pipeline.PipelineRun) error {
	if run == nil {
		return nil
	}
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	return r.tx(dbc).Create(run).Error
}

func (r *pipelineRunRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*pipeline.PipelineRun, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var run pipeline.PipelineRun
	if err := r.tx(dbc).Where("id = ?", id).Limit(1).Find(&run).Error; err != nil {
		return nil, err
	}
	if run.ID == uuid.Nil {
		return nil, nil
	}
	return &run, nil
}

func (r *pipelineRunRepo) LatestByDay(dbc dbctx.Context, day string) (*pipeline.PipelineRun, error) {
	var run pipeline.PipelineRun
	err := r.tx(dbc).
		Where("day = ?", day).
		Order("started_at DESC").
		Limit(1).
		Find(&run).Error
	if err != nil {
		return nil, err
	}
	if run.ID == uuid.Nil {
		return nil, nil
	}
	return &run, nil
}

// ListRecent returns the newest runs first, optionally for one day.
func (r *pipelineRunRepo) ListRecent(dbc dbctx.Context, day string, limit int) ([]*pipeline.PipelineRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := r.tx(dbc).Order("started_at DESC").Limit(limit)
	if day != "" {
		q = q.Where("day = ?", day)
	}
	var out []*pipeline.PipelineRun
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *pipelineRunRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return r.tx(dbc).
		Model(&pipeline.PipelineRun{}).
		Where("id = ?", id).
		Updates(updates).Error
}
