package runtime

import (
	"context"
	"time"

	"github.com/yungbote/marketlake/internal/domain/pipeline"
	"github.com/yungbote/marketlake/internal/platform/ctxutil"
	"github.com/yungbote/marketlake/internal/platform/logger"
)

/*
Context is the execution handle for a single job run.
It carries:
	- Ctx: cancellation for the run
	- Input: the decoded job payload, with Day already resolved
	- Log: a logger scoped to the job
Handlers report their outcome through Succeed or Fail. Returning a non-nil
error from Run is reserved for infrastructure failures.
*/
type Context struct {
	Ctx   context.Context
	Job   string
	Input pipeline.JobInput
	Day   time.Time
	Log   *logger.Logger

	stage  string
	output pipeline.JobOutput
	err    error
	done   bool
}

// NewContext resolves the input day (today when absent) and scopes the
// logger to the job and, when the caller sent one, the run id.
func NewContext(ctx context.Context, job string, in pipeline.JobInput, log *logger.Logger, now func() time.Time) (*Context, error) {
	ctx = ctxutil.Default(ctx)
	if log == nil {
		log = logger.Nop()
	}
	day, err := pipeline.ParseDay(in.Day, now)
	if err != nil {
		return nil, err
	}
	in.Day = pipeline.FormatDay(day)
	l := log.With("job", job, "day", in.Day)
	if runID := ctxutil.RunID(ctx); runID != "" {
		l = l.With("run_id", runID)
	}
	return &Context{Ctx: ctx, Job: job, Input: in, Day: day, Log: l}, nil
}

// Progress records the current stage. It is logged, not persisted.
func (c *Context) Progress(stage string, msg string) {
	if c == nil {
		return
	}
	c.stage = stage
	c.Log.Debug("job progress", "stage", stage, "message", msg)
}

// Fail marks the run terminally failed at stage.
func (c *Context) Fail(stage string, err error) {
	if c == nil || c.done {
		return
	}
	c.done = true
	c.stage = stage
	c.err = pipeline.JobFailure(c.Job, stage, err)
	c.Log.Warn("job failed", "stage", stage, "error", errString(err))
}

// Succeed marks the run succeeded with out as its result.
func (c *Context) Succeed(finalStage string, out pipeline.JobOutput) {
	if c == nil || c.done {
		return
	}
	c.done = true
	c.stage = finalStage
	if out.Day == "" {
		out.Day = c.Input.Day
	}
	c.output = out
	c.Log.Info("job succeeded", "stage", finalStage, "rows", out.Rows)
}

// Result returns what the handler reported. A handler that returned without
// calling Succeed or Fail succeeded with an empty output.
func (c *Context) Result() (pipeline.JobOutput, error) {
	if c.err != nil {
		return pipeline.JobOutput{}, c.err
	}
	if !c.done {
		return pipeline.JobOutput{Day: c.Input.Day}, nil
	}
	return c.output, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
