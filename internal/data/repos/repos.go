package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/marketlake/internal/data/repos/runs"
	"github.com/yungbote/marketlake/internal/platform/logger"
)

type PipelineRunRepo = runs.PipelineRunRepo
type TaskRunRepo = runs.TaskRunRepo

// Repos groups every repository the app wires.
type Repos struct {
	PipelineRuns PipelineRunRepo
	TaskRuns     TaskRunRepo
}

func New(db *gorm.DB, log *logger.Logger) Repos {
	return Repos{
		PipelineRuns: runs.NewPipelineRunRepo(db, log),
		TaskRuns:     runs.NewTaskRunRepo(db, log),
	}
}
