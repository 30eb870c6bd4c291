package app

import (
	"context"
	"fmt"
	"time"

	apihttp "github.com/yungbote/marketlake/internal/http"
	httpH "github.com/yungbote/marketlake/internal/http/handlers"
	jobrt "github.com/yungbote/marketlake/internal/jobs/runtime"
	"github.com/yungbote/marketlake/internal/observability"
	"github.com/yungbote/marketlake/internal/platform/logger"
	"github.com/yungbote/marketlake/internal/temporalx/temporalworker"
)

// JobRunner is the job process: it serves light jobs over HTTP and, when
// Temporal is configured, hosts the materialize worker for heavy ones.
type JobRunner struct {
	Log      *logger.Logger
	Cfg      Config
	Clients  Clients
	Registry *jobrt.Registry
	Server   *apihttp.Server

	worker       *temporalworker.Runner
	metrics      *observability.Metrics
	otelShutdown func(context.Context) error
}

func NewJobRunner() (*JobRunner, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	serviceName := cfg.ServiceName + "-jobrunner"

	j := &JobRunner{Log: log, Cfg: cfg}
	j.otelShutdown = observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})
	j.metrics = observability.Init(log)

	clients, err := wireClients(log, cfg)
	if err != nil {
		j.Close()
		return nil, err
	}
	j.Clients = clients

	reg, err := wireJobs(log, cfg, clients)
	if err != nil {
		j.Close()
		return nil, err
	}
	j.Registry = reg

	if clients.Temporal != nil {
		w, err := temporalworker.NewRunner(log, clients.Temporal, cfg.Temporal, reg)
		if err != nil {
			j.Close()
			return nil, err
		}
		j.worker = w
	}

	j.Server = apihttp.NewServer(apihttp.RouterConfig{
		ServiceName:   serviceName,
		Log:           log,
		Metrics:       j.metrics,
		HealthHandler: readinessChecks(clients),
		JobHandler:    httpH.NewJobHandler(reg, j.metrics),
	})
	return j, nil
}

func (j *JobRunner) Run(ctx context.Context) error {
	if j == nil || j.Server == nil {
		return fmt.Errorf("job runner not initialized")
	}
	j.metrics.StartServer(ctx, j.Log, j.Cfg.MetricsAddr)
	j.metrics.StartRedisCollector(ctx, j.Log, j.Clients.Redis)
	if j.worker != nil {
		if err := j.worker.Start(ctx); err != nil {
			return fmt.Errorf("start temporal worker: %w", err)
		}
	} else {
		j.Log.Warn("temporal not configured; serving HTTP jobs only")
	}
	j.Log.Info("job runner listening", "port", j.Cfg.JobRunnerPort, "jobs", len(j.Registry.Names()))
	return j.Server.Run(ctx, ":"+j.Cfg.JobRunnerPort)
}

func (j *JobRunner) Close() {
	if j == nil {
		return
	}
	j.Clients.Close()
	if j.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = j.otelShutdown(ctx)
		cancel()
	}
	if j.Log != nil {
		j.Log.Sync()
	}
}
