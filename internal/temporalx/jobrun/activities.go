package jobrun

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/yungbote/marketlake/internal/domain/pipeline"
	"github.com/yungbote/marketlake/internal/executor"
	jobrt "github.com/yungbote/marketlake/internal/jobs/runtime"
	"github.com/yungbote/marketlake/internal/platform/ctxutil"
	"github.com/yungbote/marketlake/internal/platform/logger"
)

type Activities struct {
	Log      *logger.Logger
	Registry *jobrt.Registry
}

// Run executes spec.Job in this worker process. Job failures surface as
// application errors typed ErrTypeFailed or ErrTypeFatal.
func (a *Activities) Run(ctx context.Context, spec executor.JobSpec) (pipeline.JobOutput, error) {
	if a == nil || a.Registry == nil {
		return pipeline.JobOutput{}, fmt.Errorf("jobrun: activity not configured")
	}
	log := a.Log
	if log == nil {
		log = logger.Nop()
	}

	info := activity.GetInfo(ctx)
	runID := spec.RunID
	if runID == "" {
		runID = info.WorkflowExecution.ID
	}
	ctx = ctxutil.WithTraceData(ctx, &ctxutil.TraceData{RunID: runID})

	stopHB := startHeartbeat(ctx, 10*time.Second)
	defer stopHB()

	out, err := a.Registry.Execute(ctx, spec.Job, spec.Input)
	if err == nil {
		return out, nil
	}
	log.Warn("job failed", "job", spec.Job, "workflow_id", info.WorkflowExecution.ID, "error", err)
	return pipeline.JobOutput{}, applicationError(err)
}

func applicationError(err error) error {
	var ee *pipeline.ExecutionError
	if errors.As(err, &ee) && ee.Fatal {
		return temporal.NewNonRetryableApplicationError(ee.Message, ErrTypeFatal, err)
	}
	return temporal.NewApplicationError(err.Error(), ErrTypeFailed)
}

func startHeartbeat(ctx context.Context, every time.Duration) func() {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				activity.RecordHeartbeat(ctx)
			}
		}
	}()
	return func() { close(done) }
}
