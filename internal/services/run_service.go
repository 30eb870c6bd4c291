package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/marketlake/internal/data/repos"
	"github.com/yungbote/marketlake/internal/domain/pipeline"
	"github.com/yungbote/marketlake/internal/jobs/orchestrator"
	"github.com/yungbote/marketlake/internal/observability"
	"github.com/yungbote/marketlake/internal/platform/dbctx"
	"github.com/yungbote/marketlake/internal/platform/logger"
)

// ErrRunInProgress is returned when the requested day already has a run
// executing in this process.
var ErrRunInProgress = errors.New("a run for this day is already in progress")

// Triggers recorded on pipeline runs.
const (
	TriggerSchedule = "schedule"
	TriggerAPI      = "api"
	TriggerCLI      = "cli"
)

// DailyRunner executes the graph for one day.
type DailyRunner interface {
	Run(ctx context.Context, runID string, day time.Time) (*orchestrator.Run, error)
}

// RunView is a run with its persisted task rows.
type RunView struct {
	Run   *pipeline.PipelineRun `json:"run"`
	Tasks []*pipeline.TaskRun   `json:"tasks"`
}

type RunService interface {
	// Start records a run and executes it in the background.
	Start(ctx context.Context, day time.Time, trigger string) (*pipeline.PipelineRun, error)
	// RunSync records a run and blocks until it finishes. The returned
	// error is the run's failure, if any.
	RunSync(ctx context.Context, day time.Time, trigger string) (*pipeline.PipelineRun, error)
	Get(ctx context.Context, id uuid.UUID) (*RunView, error)
	List(ctx context.Context, day string, limit int) ([]*pipeline.PipelineRun, error)
	// Wait blocks until every background run has finished.
	Wait()
}

type runService struct {
	log    *logger.Logger
	repos  repos.Repos
	runner DailyRunner
	now    func() time.Time

	mu     sync.Mutex
	active map[string]uuid.UUID
	wg     sync.WaitGroup
	// background runs outlive the request that started them
	baseCtx context.Context
}

func NewRunService(baseCtx context.Context, baseLog *logger.Logger, r repos.Repos, runner DailyRunner) RunService {
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &runService{
		log:     baseLog.With("service", "RunService"),
		repos:   r,
		runner:  runner,
		now:     func() time.Time { return time.Now().UTC() },
		active:  map[string]uuid.UUID{},
		baseCtx: baseCtx,
	}
}

func (s *runService) Start(ctx context.Context, day time.Time, trigger string) (*pipeline.PipelineRun, error) {
	run, err := s.begin(ctx, day, trigger)
	if err != nil {
		return nil, err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.execute(s.baseCtx, run, day)
	}()
	return run, nil
}

func (s *runService) RunSync(ctx context.Context, day time.Time, trigger string) (*pipeline.PipelineRun, error) {
	run, err := s.begin(ctx, day, trigger)
	if err != nil {
		return nil, err
	}
	runErr := s.execute(ctx, run, day)
	return run, runErr
}

func (s *runService) Wait() { s.wg.Wait() }

// begin takes the per-day lock and persists the run row.
func (s *runService) begin(ctx context.Context, day time.Time, trigger string) (*pipeline.PipelineRun, error) {
	if s.runner == nil {
		return nil, fmt.Errorf("run service: no runner configured")
	}
	d := pipeline.FormatDay(day)
	run := &pipeline.PipelineRun{
		ID:        uuid.New(),
		Day:       d,
		Trigger:   trigger,
		Status:    pipeline.RunStatusRunning,
		StartedAt: s.now(),
	}

	s.mu.Lock()
	if existing, busy := s.active[d]; busy {
		s.mu.Unlock()
		s.log.Warn("run rejected; day busy", "day", d, "active_run_id", existing)
		return nil, ErrRunInProgress
	}
	s.active[d] = run.ID
	s.mu.Unlock()

	if err := s.repos.PipelineRuns.Create(dbctx.Context{Ctx: ctx}, run); err != nil {
		s.release(d)
		return nil, fmt.Errorf("create run: %w", err)
	}
	s.log.Info("pipeline run started", "run_id", run.ID, "day", d, "trigger", trigger)
	return run, nil
}

func (s *runService) release(day string) {
	s.mu.Lock()
	delete(s.active, day)
	s.mu.Unlock()
}

func (s *runService) execute(ctx context.Context, run *pipeline.PipelineRun, day time.Time) error {
	defer s.release(run.Day)

	res, runErr := s.runner.Run(ctx, run.ID.String(), day)

	finished := s.now()
	run.FinishedAt = &finished
	run.Status = pipeline.RunStatusSucceeded
	if runErr != nil {
		run.Status = pipeline.RunStatusFailed
		run.Error = runErr.Error()
		if tf, ok := orchestrator.IsTaskFailure(runErr); ok {
			run.FailedTask = tf.Task
		}
	}
	if res != nil {
		if raw, err := json.Marshal(res.Tasks()); err == nil {
			run.Tasks = datatypes.JSON(raw)
		}
	}

	// the run's own context may be cancelled; the final write must land
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := s.repos.PipelineRuns.UpdateFields(dbctx.Context{Ctx: wctx}, run.ID, map[string]interface{}{
		"status":      run.Status,
		"failed_task": run.FailedTask,
		"error":       run.Error,
		"tasks":       run.Tasks,
		"finished_at": finished,
	}); err != nil {
		s.log.Error("persist run result failed", "run_id", run.ID, "error", err)
	}

	observability.Current().ObserveRun(run.Status, finished.Sub(run.StartedAt))
	if runErr != nil {
		s.log.Error("pipeline run failed", "run_id", run.ID, "day", run.Day, "failed_task", run.FailedTask, "error", runErr)
	} else {
		s.log.Info("pipeline run succeeded", "run_id", run.ID, "day", run.Day, "duration", finished.Sub(run.StartedAt).String())
	}
	return runErr
}

func (s *runService) Get(ctx context.Context, id uuid.UUID) (*RunView, error) {
	dbc := dbctx.Context{Ctx: ctx}
	run, err := s.repos.PipelineRuns.GetByID(dbc, id)
	if err != nil || run == nil {
		return nil, err
	}
	tasks, err := s.repos.TaskRuns.ListByRun(dbc, id)
	if err != nil {
		return nil, err
	}
	return &RunView{Run: run, Tasks: tasks}, nil
}

func (s *runService) List(ctx context.Context, day string, limit int) ([]*pipeline.PipelineRun, error) {
	return s.repos.PipelineRuns.ListRecent(dbctx.Context{Ctx: ctx}, day, limit)
}
