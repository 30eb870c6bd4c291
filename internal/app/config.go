package app

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"

	"github.com/yungbote/marketlake/internal/clients/marketplace"
	redisx "github.com/yungbote/marketlake/internal/clients/redis"
	"github.com/yungbote/marketlake/internal/jobs/pipeline/daily"
	"github.com/yungbote/marketlake/internal/platform/envutil"
	"github.com/yungbote/marketlake/internal/platform/gcp"
	"github.com/yungbote/marketlake/internal/temporalx"
)

type Config struct {
	LogMode     string
	ServiceName string
	Version     string
	Environment string

	Port          string
	JobRunnerPort string
	MetricsAddr   string

	// JobRunnerURL sends light jobs to a remote job runner. Empty runs
	// them in-process.
	JobRunnerURL     string
	JobRunnerTimeout time.Duration

	ScheduleEnabled bool
	ScheduleCron    string

	Pipeline    daily.Config
	Storage     gcp.ObjectStorageConfig
	Redis       redisx.Config
	Temporal    temporalx.Config
	Marketplace marketplace.Config

	// DotenvLoaded reports whether a .env file was found.
	DotenvLoaded bool
}

// LoadConfig reads an optional .env file and then the process environment.
func LoadConfig() (Config, error) {
	loaded := godotenv.Load() == nil

	pipelineCfg, err := daily.LoadConfig()
	if err != nil {
		return Config{}, fmt.Errorf("load pipeline config: %w", err)
	}
	storageCfg, err := gcp.ResolveObjectStorageConfigFromEnv()
	if err != nil {
		return Config{}, err
	}

	return Config{
		LogMode:     envutil.String("LOG_MODE", "development"),
		ServiceName: envutil.String("SERVICE_NAME", "marketlake"),
		Version:     envutil.String("SERVICE_VERSION", "dev"),
		Environment: envutil.String("ENVIRONMENT", "local"),

		Port:          envutil.String("PORT", "8080"),
		JobRunnerPort: envutil.String("JOB_RUNNER_PORT", "8090"),
		MetricsAddr:   envutil.String("METRICS_ADDR", ""),

		JobRunnerURL:     envutil.String("JOB_RUNNER_URL", ""),
		JobRunnerTimeout: envutil.Duration("JOB_RUNNER_TIMEOUT", 10*time.Minute),

		ScheduleEnabled: envutil.Bool("SCHEDULE_ENABLED", true),
		ScheduleCron:    envutil.String("SCHEDULE_CRON", ""),

		Pipeline:    pipelineCfg,
		Storage:     storageCfg,
		Redis:       redisx.LoadConfig(),
		Temporal:    temporalx.LoadConfig(),
		Marketplace: marketplace.ConfigFromEnv(),

		DotenvLoaded: loaded,
	}, nil
}
