package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/marketlake/internal/data/db"
	"github.com/yungbote/marketlake/internal/domain/pipeline"
	"github.com/yungbote/marketlake/internal/platform/logger"
)

// DB returns a migrated database: Postgres when TEST_POSTGRES_DSN is set,
// otherwise a private in-memory sqlite database per test.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	var (
		svc *db.Service
		err error
	)
	if dsn := os.Getenv("TEST_POSTGRES_DSN"); dsn != "" {
		svc, err = db.NewPostgresServiceDSN(logger.Nop(), dsn)
	} else {
		svc, err = db.NewSQLiteService(logger.Nop(), "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	}
	if err != nil {
		tb.Fatalf("open test db: %v", err)
	}
	tb.Cleanup(func() { _ = svc.Close() })
	if err := db.AutoMigrateAll(svc.DB()); err != nil {
		tb.Fatalf("migrate test db: %v", err)
	}
	return svc.DB()
}

func Tx(tb testing.TB, gdb *gorm.DB) *gorm.DB {
	tb.Helper()
	tx := gdb.Begin()
	if tx.Error != nil {
		tb.Fatalf("begin tx: %v", tx.Error)
	}
	tb.Cleanup(func() {
		_ = tx.Rollback().Error
	})
	return tx
}

func SeedRun(tb testing.TB, ctx context.Context, tx *gorm.DB, day string, startedAt time.Time) *pipeline.PipelineRun {
	tb.Helper()
	run := &pipeline.PipelineRun{
		ID:        uuid.New(),
		Day:       day,
		Trigger:   "test",
		Status:    pipeline.RunStatusRunning,
		StartedAt: startedAt,
	}
	if err := tx.WithContext(ctx).Create(run).Error; err != nil {
		tb.Fatalf("seed run: %v", err)
	}
	return run
}
