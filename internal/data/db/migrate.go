package db

import (
	"gorm.io/gorm"

	"github.com/yungbote/marketlake/internal/domain/pipeline"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&pipeline.PipelineRun{},
		&pipeline.TaskRun{},
	)
}
