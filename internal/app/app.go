package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	redisx "github.com/yungbote/marketlake/internal/clients/redis"
	"github.com/yungbote/marketlake/internal/data/db"
	"github.com/yungbote/marketlake/internal/data/repos"
	apihttp "github.com/yungbote/marketlake/internal/http"
	httpH "github.com/yungbote/marketlake/internal/http/handlers"
	"github.com/yungbote/marketlake/internal/observability"
	"github.com/yungbote/marketlake/internal/platform/logger"
	"github.com/yungbote/marketlake/internal/scheduler"
	"github.com/yungbote/marketlake/internal/services"
)

// App is the API process: run history, the HTTP API, the daily schedule and
// the orchestrator that drives each run.
type App struct {
	Log      *logger.Logger
	Cfg      Config
	Clients  Clients
	DB       *db.Service
	Repos    repos.Repos
	Services Services
	Server   *apihttp.Server

	metrics      *observability.Metrics
	otelShutdown func(context.Context) error
	ctx          context.Context
	cancel       context.CancelFunc
}

func New() (*App, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	if !cfg.DotenvLoaded {
		log.Info("No .env file found, using environment variables")
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &App{Log: log, Cfg: cfg, ctx: ctx, cancel: cancel}
	if err := a.wire(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire() error {
	log, cfg := a.Log, a.Cfg
	a.otelShutdown = observability.InitOTel(a.ctx, log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})
	a.metrics = observability.Init(log)

	clients, err := wireClients(log, cfg)
	if err != nil {
		return err
	}
	a.Clients = clients

	dbs, err := db.Open(log)
	if err != nil {
		return fmt.Errorf("init run history db: %w", err)
	}
	a.DB = dbs
	if err := db.AutoMigrateAll(dbs.DB()); err != nil {
		return fmt.Errorf("run history automigrate: %w", err)
	}
	a.Repos = repos.New(dbs.DB(), log)

	svcs, err := wireServices(a.ctx, log, cfg, clients, a.Repos, a.metrics)
	if err != nil {
		return err
	}
	a.Services = svcs

	a.Server = apihttp.NewServer(apihttp.RouterConfig{
		ServiceName:   cfg.ServiceName,
		Log:           log,
		Metrics:       a.metrics,
		HealthHandler: readinessChecks(clients).WithCheck("run_history", dbs.Ping),
		RunHandler:    httpH.NewRunHandler(svcs.Runs),
		EventsHandler: httpH.NewRunEventsHandler(svcs.Hub),
		JobHandler:    httpH.NewJobHandler(svcs.Jobs, a.metrics),
	})
	return nil
}

// Run serves the API and the schedule until ctx ends, then cancels and
// waits for in-flight runs.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	a.startBackground()

	if a.Cfg.ScheduleEnabled {
		sched, err := scheduler.New(a.Log, a.Services.Runs, a.Cfg.ScheduleCron)
		if err != nil {
			return err
		}
		if err := sched.Start(); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer sched.Stop()
	}

	a.Log.Info("API listening", "port", a.Cfg.Port)
	err := a.Server.Run(ctx, ":"+a.Cfg.Port)
	// background runs see cancellation and record their failure
	a.cancel()
	a.Services.Runs.Wait()
	return err
}

// RunOnce executes the graph for day and returns the run's failure.
func (a *App) RunOnce(ctx context.Context, day time.Time) error {
	if a == nil || a.Services.Runs == nil {
		return fmt.Errorf("app not initialized")
	}
	run, err := a.Services.Runs.RunSync(ctx, day, services.TriggerCLI)
	if errors.Is(err, services.ErrRunInProgress) {
		return err
	}
	if run != nil {
		a.Log.Info("run finished", "run_id", run.ID, "day", run.Day, "status", run.Status, "failed_task", run.FailedTask)
	}
	return err
}

func (a *App) startBackground() {
	a.metrics.StartServer(a.ctx, a.Log, a.Cfg.MetricsAddr)
	if a.DB != nil {
		a.metrics.StartDBCollector(a.ctx, a.Log, a.DB.DB())
	}
	a.metrics.StartRedisCollector(a.ctx, a.Log, a.Clients.Redis)
	if a.Services.RunEvents != nil {
		// task progress from every process sharing the channel
		err := a.Services.RunEvents.StartForwarder(a.ctx, func(ev redisx.TaskEvent) {
			a.Services.Hub.PublishTask(ev.RunID, ev.Task)
		})
		if err != nil {
			a.Log.Warn("run event forwarder not started", "error", err)
		}
	}
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.Clients.Close()
	if a.DB != nil {
		_ = a.DB.Close()
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.otelShutdown(ctx)
		cancel()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
