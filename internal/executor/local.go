package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/yungbote/marketlake/internal/domain/pipeline"
	jobrt "github.com/yungbote/marketlake/internal/jobs/runtime"
	"github.com/yungbote/marketlake/internal/platform/ctxutil"
	"github.com/yungbote/marketlake/internal/platform/logger"
)

// LocalInvoker runs jobs in-process through the registry.
type LocalInvoker struct {
	reg *jobrt.Registry
}

func NewLocalInvoker(reg *jobrt.Registry) *LocalInvoker {
	return &LocalInvoker{reg: reg}
}

func (l *LocalInvoker) Invoke(ctx context.Context, job string, in pipeline.JobInput) (pipeline.JobOutput, error) {
	return l.reg.Execute(ctx, job, in)
}

// LocalPoller runs submitted jobs on background goroutines and reports
// their state. It stands in for the workflow engine when none is configured.
type LocalPoller struct {
	reg *jobrt.Registry
	log *logger.Logger
	// base outlives any single Submit call; jobs stop when it is canceled.
	base context.Context

	mu   sync.Mutex
	jobs map[string]*localJob
}

type localJob struct {
	status    JobStatus
	cancel    context.CancelFunc
	canceling bool
}

func NewLocalPoller(base context.Context, reg *jobrt.Registry, log *logger.Logger) *LocalPoller {
	if log == nil {
		log = logger.Nop()
	}
	return &LocalPoller{
		reg:  reg,
		log:  log.With("service", "LocalPoller"),
		base: ctxutil.Default(base),
		jobs: map[string]*localJob{},
	}
}

func (l *LocalPoller) Submit(ctx context.Context, spec JobSpec) (Handle, error) {
	if _, ok := l.reg.Get(spec.Job); !ok {
		return Handle{}, fmt.Errorf("unknown job %q", spec.Job)
	}
	h := Handle{ID: uuid.NewString(), Job: spec.Job}

	runCtx, cancel := context.WithCancel(l.base)
	if td := ctxutil.GetTraceData(ctx); td != nil {
		runCtx = ctxutil.WithTraceData(runCtx, td)
	}
	l.mu.Lock()
	l.jobs[h.ID] = &localJob{status: JobStatus{State: StatePending}, cancel: cancel}
	l.mu.Unlock()

	go func() {
		defer cancel()
		l.update(h.ID, func(j *localJob) { j.status = JobStatus{State: StateRunning} })
		out, err := l.reg.Execute(runCtx, spec.Job, spec.Input)
		l.update(h.ID, func(j *localJob) {
			switch {
			case err == nil:
				j.status = JobStatus{State: StateSucceeded, Output: &out}
			case j.canceling || errors.Is(err, context.Canceled):
				j.status = JobStatus{State: StateStopped, ExitCode: 1, Message: err.Error()}
			default:
				st := JobStatus{State: StateFailed, ExitCode: 1, Message: err.Error()}
				var ee *pipeline.ExecutionError
				if errors.As(err, &ee) {
					st.Fatal = ee.Fatal
				}
				j.status = st
			}
		})
		l.log.Debug("local job finished", "job", spec.Job, "handle", h.ID, "error", err)
	}()
	return h, nil
}

// Poll reports the job state. A terminal state is handed out once; the
// handle is forgotten afterwards.
func (l *LocalPoller) Poll(ctx context.Context, h Handle) (JobStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	j, ok := l.jobs[h.ID]
	if !ok {
		return JobStatus{}, fmt.Errorf("unknown handle %s", h.ID)
	}
	st := j.status
	if st.State.Terminal() {
		delete(l.jobs, h.ID)
	}
	return st, nil
}

// Cancel stops the job's context. The job reports Stopped once its handler
// returns; unknown or finished handles are a no-op.
func (l *LocalPoller) Cancel(ctx context.Context, h Handle) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	j, ok := l.jobs[h.ID]
	if !ok || j.status.State.Terminal() {
		return nil
	}
	j.canceling = true
	j.cancel()
	l.log.Info("local job canceled", "job", h.Job, "handle", h.ID)
	return nil
}

// Pending counts jobs whose terminal state has not been polled yet.
func (l *LocalPoller) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.jobs)
}

func (l *LocalPoller) update(id string, fn func(*localJob)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if j, ok := l.jobs[id]; ok {
		fn(j)
	}
}
