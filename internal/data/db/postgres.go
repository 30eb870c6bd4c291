package db

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/marketlake/internal/platform/envutil"
	"github.com/yungbote/marketlake/internal/platform/logger"
)

// Service owns the run-history database handle.
type Service struct {
	db     *gorm.DB
	driver string
	log    *logger.Logger
}

// Open picks the driver from DATABASE_DRIVER: "postgres" connects with the
// POSTGRES_* variables, anything else opens SQLITE_PATH.
func Open(logg *logger.Logger) (*Service, error) {
	switch strings.ToLower(envutil.String("DATABASE_DRIVER", "sqlite")) {
	case "postgres", "postgresql":
		return NewPostgresService(logg)
	default:
		return NewSQLiteService(logg, envutil.String("SQLITE_PATH", "marketlake.db"))
	}
}

func NewPostgresService(logg *logger.Logger) (*Service, error) {
	if logg == nil {
		logg = logger.Nop()
	}
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		envutil.String("POSTGRES_USER", "postgres"),
		envutil.String("POSTGRES_PASSWORD", ""),
		envutil.String("POSTGRES_HOST", "localhost"),
		envutil.String("POSTGRES_PORT", "5432"),
		envutil.String("POSTGRES_NAME", "marketlake"),
		envutil.String("POSTGRES_SSLMODE", "disable"),
	)
	return NewPostgresServiceDSN(logg, dsn)
}

func NewPostgresServiceDSN(logg *logger.Logger, dsn string) (*Service, error) {
	if logg == nil {
		logg = logger.Nop()
	}
	db, err := gorm.Open(postgres.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	return &Service{db: db, driver: "postgres", log: logg.With("service", "PostgresService")}, nil
}

// NewSQLiteService opens a local database file. ":memory:" is accepted for
// tests.
func NewSQLiteService(logg *logger.Logger, path string) (*Service, error) {
	if logg == nil {
		logg = logger.Nop()
	}
	db, err := gorm.Open(sqlite.Open(path), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %s: %w", path, err)
	}
	// one writer at a time; sqlite serializes anyway and this keeps
	// :memory: databases on a single connection
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	return &Service{db: db, driver: "sqlite", log: logg.With("service", "SQLiteService")}, nil
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger: gormLogger.New(
			log.New(os.Stdout, "\r\n", log.LstdFlags),
			gormLogger.Config{
				SlowThreshold:             1 * time.Second,
				LogLevel:                  gormLogger.Warn,
				IgnoreRecordNotFoundError: true,
				Colorful:                  false,
			},
		),
	}
}

func (s *Service) DB() *gorm.DB   { return s.db }
func (s *Service) Driver() string { return s.driver }

// Ping checks the run-history connection.
func (s *Service) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run history not open")
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Service) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
