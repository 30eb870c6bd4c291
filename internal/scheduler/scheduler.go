package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron"

	"github.com/yungbote/marketlake/internal/domain/pipeline"
	"github.com/yungbote/marketlake/internal/platform/envutil"
	"github.com/yungbote/marketlake/internal/platform/logger"
	"github.com/yungbote/marketlake/internal/services"
)

// DefaultSpec fires once a day at 06:00 UTC. Specs carry a seconds field.
const DefaultSpec = "0 0 6 * * *"

// Scheduler triggers the daily run for the current UTC date.
type Scheduler struct {
	log  *logger.Logger
	runs services.RunService
	spec string
	cron *cron.Cron
	now  func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New reads SCHEDULE_CRON when spec is empty.
func New(log *logger.Logger, runs services.RunService, spec string) (*Scheduler, error) {
	if log == nil {
		log = logger.Nop()
	}
	if spec == "" {
		spec = envutil.String("SCHEDULE_CRON", DefaultSpec)
	}
	if _, err := cron.Parse(spec); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		log:    log.With("service", "Scheduler"),
		runs:   runs,
		spec:   spec,
		cron:   cron.NewWithLocation(time.UTC),
		now:    func() time.Time { return time.Now().UTC() },
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

func (s *Scheduler) Start() error {
	if err := s.cron.AddFunc(s.spec, s.fire); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info("scheduler started", "spec", s.spec, "next", s.Next(s.now()).Format(time.RFC3339))
	return nil
}

// Stop halts the clock and cancels an in-flight scheduled run.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.cancel()
	s.wg.Wait()
}

// Next returns the first fire time after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	sched, err := cron.Parse(s.spec)
	if err != nil {
		return time.Time{}
	}
	return sched.Next(t.In(time.UTC))
}

func (s *Scheduler) fire() {
	s.wg.Add(1)
	defer s.wg.Done()
	day := pipeline.Truncate(s.now())
	run, err := s.runs.RunSync(s.ctx, day, services.TriggerSchedule)
	switch {
	case errors.Is(err, services.ErrRunInProgress):
		s.log.Warn("scheduled run skipped; day already running", "day", pipeline.FormatDay(day))
	case err != nil && run == nil:
		s.log.Error("scheduled run could not start", "day", pipeline.FormatDay(day), "error", err)
	case err != nil:
		s.log.Error("scheduled run failed", "run_id", run.ID, "day", run.Day, "error", err)
	default:
		s.log.Info("scheduled run finished", "run_id", run.ID, "day", run.Day)
	}
}
