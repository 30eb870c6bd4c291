package temporalx

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"

	"github.com/yungbote/marketlake/internal/domain/pipeline"
	"github.com/yungbote/marketlake/internal/executor"
	"github.com/yungbote/marketlake/internal/platform/ctxutil"
	"github.com/yungbote/marketlake/internal/temporalx/jobrun"
)

// Poller submits jobs as materialize workflows and reads their status back
// from the Temporal frontend.
type Poller struct {
	tc  temporalsdkclient.Client
	cfg Config
}

var _ executor.Poller = (*Poller)(nil)

func NewPoller(tc temporalsdkclient.Client, cfg Config) (*Poller, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	if cfg.TaskQueue == "" {
		return nil, fmt.Errorf("temporal task queue is required")
	}
	return &Poller{tc: tc, cfg: cfg}, nil
}

func (p *Poller) Submit(ctx context.Context, spec executor.JobSpec) (executor.Handle, error) {
	if spec.RunID == "" {
		spec.RunID = ctxutil.RunID(ctx)
	}
	opts := temporalsdkclient.StartWorkflowOptions{
		ID:        WorkflowID(spec),
		TaskQueue: p.cfg.TaskQueue,
	}
	if p.cfg.JobTimeout > 0 {
		opts.WorkflowRunTimeout = p.cfg.JobTimeout + time.Minute
	}
	run, err := p.tc.ExecuteWorkflow(ctxutil.Default(ctx), opts, jobrun.WorkflowName, spec, p.cfg.JobTimeout)
	if err != nil {
		return executor.Handle{}, classifyRPC("start workflow", err)
	}
	return executor.Handle{ID: run.GetID(), RunID: run.GetRunID(), Job: spec.Job}, nil
}

// Poll describes the latest run of the workflow id rather than the run the
// handle was started with, so a continued-as-new chain is followed to its end.
func (p *Poller) Poll(ctx context.Context, h executor.Handle) (executor.JobStatus, error) {
	ctx = ctxutil.Default(ctx)
	resp, err := p.tc.DescribeWorkflowExecution(ctx, h.ID, "")
	if err != nil {
		var nf *serviceerror.NotFound
		if errors.As(err, &nf) {
			return executor.JobStatus{}, fmt.Errorf("workflow %s not found: %w", h.ID, err)
		}
		return executor.JobStatus{}, classifyRPC("describe workflow", err)
	}

	st := executor.JobStatus{State: StateOf(resp.GetWorkflowExecutionInfo().GetStatus())}
	switch st.State {
	case executor.StateSucceeded:
		var out pipeline.JobOutput
		if err := p.tc.GetWorkflow(ctx, h.ID, "").Get(ctx, &out); err != nil {
			return executor.JobStatus{}, classifyRPC("workflow result", err)
		}
		st.Output = &out
	case executor.StateFailed, executor.StateStopped:
		st.ExitCode = 1
		st.Message, st.Fatal = FailureOf(p.tc.GetWorkflow(ctx, h.ID, "").Get(ctx, nil))
	}
	return st, nil
}

// Cancel requests cancellation of the latest run. A workflow that already
// closed is not an error.
func (p *Poller) Cancel(ctx context.Context, h executor.Handle) error {
	err := p.tc.CancelWorkflow(ctxutil.Default(ctx), h.ID, "")
	if err == nil {
		return nil
	}
	var nf *serviceerror.NotFound
	if errors.As(err, &nf) {
		return nil
	}
	return classifyRPC("cancel workflow", err)
}

// WorkflowID names a materialize workflow after its job and day.
func WorkflowID(spec executor.JobSpec) string {
	parts := []string{"marketlake", spec.Job}
	if spec.Input.Day != "" {
		parts = append(parts, spec.Input.Day)
	}
	if spec.Input.Category != nil {
		parts = append(parts, fmt.Sprintf("c%d", spec.Input.Category.CategoryID))
	}
	return strings.Join(append(parts, uuid.NewString()), "-")
}

// StateOf maps a workflow execution status onto the executor lifecycle.
// A continued-as-new run is still in flight; Poll never sees it because it
// describes the latest run of the chain.
func StateOf(s enumspb.WorkflowExecutionStatus) executor.JobState {
	switch s {
	case enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED:
		return executor.StateSucceeded
	case enumspb.WORKFLOW_EXECUTION_STATUS_FAILED, enumspb.WORKFLOW_EXECUTION_STATUS_TIMED_OUT:
		return executor.StateFailed
	case enumspb.WORKFLOW_EXECUTION_STATUS_TERMINATED, enumspb.WORKFLOW_EXECUTION_STATUS_CANCELED:
		return executor.StateStopped
	case enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING, enumspb.WORKFLOW_EXECUTION_STATUS_CONTINUED_AS_NEW:
		return executor.StateRunning
	default:
		return executor.StatePending
	}
}

// FailureOf extracts the message of a failed workflow result and whether the
// job marked it fatal.
func FailureOf(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Error(), appErr.Type() == jobrun.ErrTypeFatal
	}
	return err.Error(), false
}

func classifyRPC(op string, err error) error {
	if isRetryableRPC(err) {
		return pipeline.Transient(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
