package jobrun

import (
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/yungbote/marketlake/internal/domain/pipeline"
	"github.com/yungbote/marketlake/internal/executor"
)

const defaultJobTimeout = 2 * time.Hour

// Workflow runs one job through a single activity attempt. Retries belong to
// the orchestrator's task spec, so the activity retry policy allows one try.
func Workflow(ctx workflow.Context, spec executor.JobSpec, timeout time.Duration) (pipeline.JobOutput, error) {
	if strings.TrimSpace(spec.Job) == "" {
		return pipeline.JobOutput{}, temporal.NewNonRetryableApplicationError("jobrun: missing job", ErrTypeFatal, nil)
	}
	if timeout <= 0 {
		timeout = defaultJobTimeout
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		HeartbeatTimeout:    30 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
		// The workflow closes only after a canceled activity has returned, so
		// a Stopped status means the job is no longer writing.
		WaitForCancellation: true,
	})

	workflow.GetLogger(ctx).Info("materializing", "job", spec.Job, "day", spec.Input.Day)

	var out pipeline.JobOutput
	// The activity error is returned as is so its application error type
	// survives failure conversion.
	if err := workflow.ExecuteActivity(ctx, ActivityRun, spec).Get(ctx, &out); err != nil {
		return pipeline.JobOutput{}, err
	}
	return out, nil
}
