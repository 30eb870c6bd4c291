package app

import (
	"context"
	"fmt"

	redisx "github.com/yungbote/marketlake/internal/clients/redis"
	"github.com/yungbote/marketlake/internal/data/repos"
	"github.com/yungbote/marketlake/internal/dataset"
	"github.com/yungbote/marketlake/internal/etl"
	"github.com/yungbote/marketlake/internal/executor"
	"github.com/yungbote/marketlake/internal/jobs/orchestrator"
	"github.com/yungbote/marketlake/internal/jobs/pipeline/daily"
	jobrt "github.com/yungbote/marketlake/internal/jobs/runtime"
	"github.com/yungbote/marketlake/internal/observability"
	"github.com/yungbote/marketlake/internal/platform/logger"
	"github.com/yungbote/marketlake/internal/realtime"
	"github.com/yungbote/marketlake/internal/services"
	"github.com/yungbote/marketlake/internal/temporalx"
)

type Services struct {
	Jobs      *jobrt.Registry
	Engine    *orchestrator.Engine
	Daily     *daily.Pipeline
	Runs      services.RunService
	RunEvents *redisx.RunEvents
	Hub       *realtime.Hub
}

// wireJobs builds the job registry shared by the API process and the job
// runner.
func wireJobs(log *logger.Logger, cfg Config, c Clients) (*jobrt.Registry, error) {
	datasets := dataset.NewStore(c.Objects, log)
	transformer := etl.New(c.Objects, datasets, c.Marketplace, log)
	reg := jobrt.NewRegistry(log)
	if err := daily.RegisterJobs(reg, log, transformer, cfg.Pipeline); err != nil {
		return nil, fmt.Errorf("register jobs: %w", err)
	}
	return reg, nil
}

func wireServices(ctx context.Context, log *logger.Logger, cfg Config, c Clients, r repos.Repos, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")
	reg, err := wireJobs(log, cfg, c)
	if err != nil {
		return Services{}, err
	}

	var (
		cache     orchestrator.Cache
		runEvents *redisx.RunEvents
	)
	recorders := orchestrator.Recorders{services.NewTaskRecorder(log, r.TaskRuns)}
	if metrics != nil {
		recorders = append(recorders, metrics)
	}
	hub := realtime.NewHub(log)
	if c.Redis != nil {
		// the hub is fed by the redis forwarder so it sees every process
		cache = redisx.NewTaskCache(c.Redis)
		runEvents = redisx.NewRunEvents(log, c.Redis, cfg.Redis.Channel)
		recorders = append(recorders, runEvents)
	} else {
		cache = orchestrator.NewMemoryCache(nil)
		recorders = append(recorders, hub)
	}
	engine := orchestrator.NewEngine(log, cache, recorders)

	var invoker executor.Invoker = executor.NewLocalInvoker(reg)
	if cfg.JobRunnerURL != "" {
		httpInvoker, err := executor.NewHTTPInvoker(cfg.JobRunnerURL, cfg.JobRunnerTimeout)
		if err != nil {
			return Services{}, fmt.Errorf("init job runner invoker: %w", err)
		}
		log.Info("light jobs go to remote job runner", "url", cfg.JobRunnerURL)
		invoker = httpInvoker
	}

	var poller executor.Poller = executor.NewLocalPoller(ctx, reg, log)
	if c.Temporal != nil {
		tp, err := temporalx.NewPoller(c.Temporal, cfg.Temporal)
		if err != nil {
			return Services{}, fmt.Errorf("init temporal poller: %w", err)
		}
		poller = tp
	}

	pipe, err := daily.New(log, engine, invoker, poller, cfg.Pipeline)
	if err != nil {
		return Services{}, err
	}

	return Services{
		Jobs:      reg,
		Engine:    engine,
		Daily:     pipe,
		Runs:      services.NewRunService(ctx, log, r, pipe),
		RunEvents: runEvents,
		Hub:       hub,
	}, nil
}
