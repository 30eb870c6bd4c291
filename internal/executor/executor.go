// Package executor holds the two ways a task hands work to a job: a
// synchronous request/response invoke and a submit-then-poll lifecycle.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/yungbote/marketlake/internal/domain/pipeline"
)

// Invoker runs a job and blocks for its result. A job-reported failure comes
// back as *pipeline.ExecutionError.
type Invoker interface {
	Invoke(ctx context.Context, job string, in pipeline.JobInput) (pipeline.JobOutput, error)
}

type JobState string

const (
	StatePending   JobState = "Pending"
	StateRunning   JobState = "Running"
	StateSucceeded JobState = "Succeeded"
	StateFailed    JobState = "Failed"
	StateStopped   JobState = "Stopped"
)

func (s JobState) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateStopped:
		return true
	}
	return false
}

type JobSpec struct {
	Job   string            `json:"job"`
	Input pipeline.JobInput `json:"input"`
	// RunID is the orchestrator run that asked for the job, for log correlation.
	RunID string `json:"run_id,omitempty"`
}

// Handle identifies one submitted job. RunID is executor specific; the
// workflow backend stores its execution run id there.
type Handle struct {
	ID    string `json:"id"`
	RunID string `json:"run_id,omitempty"`
	Job   string `json:"job"`
}

type JobStatus struct {
	State    JobState
	ExitCode int
	Message  string
	Fatal    bool
	Output   *pipeline.JobOutput
}

// Poller is a long-running executor: submit once, then poll until terminal.
// Cancel asks a job to stop; it returns nil for jobs that already finished.
type Poller interface {
	Submit(ctx context.Context, spec JobSpec) (Handle, error)
	Poll(ctx context.Context, h Handle) (JobStatus, error)
	Cancel(ctx context.Context, h Handle) error
}

// WaitConfig bounds a poll loop. StopGrace bounds how long an abandoned job
// is polled after Cancel before the wait gives up on it.
type WaitConfig struct {
	Interval  time.Duration
	Timeout   time.Duration
	StopGrace time.Duration
}

const (
	DefaultPollInterval = 10 * time.Second
	DefaultWaitTimeout  = 2 * time.Hour
	DefaultStopGrace    = 2 * time.Minute
)

func (c WaitConfig) normalized() WaitConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultPollInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultWaitTimeout
	}
	if c.StopGrace <= 0 {
		c.StopGrace = DefaultStopGrace
	}
	return c
}

// Wait polls h every interval until a terminal state, ctx cancellation or
// the timeout. Poll errors end the wait. Exceeding the timeout is reported as
// a retryable *pipeline.ExecutionError. On timeout or cancellation the job is
// canceled and waited for, so a retry never runs next to the abandoned job.
func Wait(ctx context.Context, p Poller, h Handle, cfg WaitConfig) (JobStatus, error) {
	cfg = cfg.normalized()
	deadline := time.NewTimer(cfg.Timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		st, err := p.Poll(ctx, h)
		if err != nil {
			return JobStatus{}, fmt.Errorf("poll %s/%s: %w", h.Job, h.ID, err)
		}
		if st.State.Terminal() {
			return st, nil
		}
		select {
		case <-ctx.Done():
			if err := stop(ctx, p, h, cfg); err != nil {
				return st, fmt.Errorf("%w (%v)", ctx.Err(), err)
			}
			return st, ctx.Err()
		case <-deadline.C:
			ee := &pipeline.ExecutionError{
				Job:     h.Job,
				Status:  string(st.State),
				Message: fmt.Sprintf("no terminal status after %s", cfg.Timeout),
			}
			if err := stop(ctx, p, h, cfg); err != nil {
				ee.Message += "; " + err.Error()
			}
			return st, ee
		case <-ticker.C:
		}
	}
}

// stop cancels h and polls it until terminal or StopGrace elapses. It runs
// on a context detached from the caller, which may already be done.
func stop(parent context.Context, p Poller, h Handle, cfg WaitConfig) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), cfg.StopGrace)
	defer cancel()
	if err := p.Cancel(ctx, h); err != nil {
		return fmt.Errorf("cancel %s/%s: %w", h.Job, h.ID, err)
	}
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for {
		st, err := p.Poll(ctx, h)
		if err != nil {
			return fmt.Errorf("poll canceled %s/%s: %w", h.Job, h.ID, err)
		}
		if st.State.Terminal() {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s/%s still %s after cancel", h.Job, h.ID, st.State)
		case <-ticker.C:
		}
	}
}

// RunPolled submits spec, waits for it and converts a Failed or Stopped
// status, or a non-zero exit code, into an *pipeline.ExecutionError.
func RunPolled(ctx context.Context, p Poller, spec JobSpec, cfg WaitConfig) (pipeline.JobOutput, error) {
	h, err := p.Submit(ctx, spec)
	if err != nil {
		return pipeline.JobOutput{}, fmt.Errorf("submit %s: %w", spec.Job, err)
	}
	st, err := Wait(ctx, p, h, cfg)
	if err != nil {
		return pipeline.JobOutput{}, err
	}
	if st.State != StateSucceeded || st.ExitCode != 0 {
		return pipeline.JobOutput{}, &pipeline.ExecutionError{
			Job:      spec.Job,
			Status:   string(st.State),
			ExitCode: st.ExitCode,
			Message:  st.Message,
			Fatal:    st.Fatal,
		}
	}
	if st.Output == nil {
		return pipeline.JobOutput{Day: spec.Input.Day}, nil
	}
	return *st.Output, nil
}
