package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrSchemaMismatch is matched (errors.Is) by every *SchemaMismatchError.
var ErrSchemaMismatch = errors.New("schema mismatch")

// TransientError marks a failure talking to something outside the process
// (network, throttling, 5xx). Always retried while budget remains.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Op == "" {
		return fmt.Sprintf("transient: %v", e.Err)
	}
	return fmt.Sprintf("%s: transient: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

// ExecutionError is a job that ran and reported failure: a handler error,
// a non-zero exit, or a terminal Failed/Stopped status from a polled job.
// Fatal carries a non-retryable cause (a schema mismatch, say) across an
// executor boundary where the original error value is lost.
type ExecutionError struct {
	Job      string
	Status   string
	ExitCode int
	Message  string
	Fatal    bool
}

func (e *ExecutionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "job %s failed", e.Job)
	if e.Status != "" {
		fmt.Fprintf(&b, " (status=%s", e.Status)
		if e.ExitCode != 0 {
			fmt.Fprintf(&b, " exit=%d", e.ExitCode)
		}
		b.WriteString(")")
	} else if e.ExitCode != 0 {
		fmt.Fprintf(&b, " (exit=%d)", e.ExitCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

// SchemaMismatchError is returned when a partition-scoped write carries a
// schema that differs from the one already recorded for the dataset.
type SchemaMismatchError struct {
	Dataset  string
	Existing string
	Incoming string
}

func (e *SchemaMismatchError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("dataset %s: schema mismatch: existing=[%s] incoming=[%s]", e.Dataset, e.Existing, e.Incoming)
}

func (e *SchemaMismatchError) Is(target error) bool { return target == ErrSchemaMismatch }

// FanOutFailure is one failed branch of a fan-out.
type FanOutFailure struct {
	Item string
	Err  error
}

// PartialFanOutError summarizes failed branches of a fan-out. It is logged,
// never propagated as a task failure.
type PartialFanOutError struct {
	Task     string
	Total    int
	Failures []FanOutFailure
}

func (e *PartialFanOutError) Error() string {
	if e == nil {
		return "<nil>"
	}
	items := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		items = append(items, f.Item)
	}
	sort.Strings(items)
	return fmt.Sprintf("%s: %d/%d fan-out branches failed [%s]", e.Task, len(e.Failures), e.Total, strings.Join(items, ","))
}

func (e *PartialFanOutError) Unwrap() []error {
	if e == nil {
		return nil
	}
	out := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		out = append(out, f.Err)
	}
	return out
}

// TaskFailedError is what a run surfaces when a task exhausted its retries.
type TaskFailedError struct {
	Task     string
	Attempts int
	Err      error
}

func (e *TaskFailedError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("task %s failed after %d attempt(s): %v", e.Task, e.Attempts, e.Err)
}

func (e *TaskFailedError) Unwrap() error { return e.Err }

// IsRetryable is the default retry classifier. Schema mismatches and caller
// cancellation are final; everything else is worth another attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSchemaMismatch) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var ee *ExecutionError
	if errors.As(err, &ee) && ee.Fatal {
		return false
	}
	return true
}

// JobFailure converts an error raised inside a job into the ExecutionError
// its caller sees. Transient errors pass through unchanged so the caller
// keeps retrying them.
func JobFailure(job, stage string, err error) error {
	if err == nil {
		return nil
	}
	if IsTransient(err) {
		return err
	}
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee
	}
	msg := err.Error()
	if stage != "" {
		msg = stage + ": " + msg
	}
	return &ExecutionError{Job: job, Status: "failed", Message: msg, Fatal: !IsRetryable(err)}
}

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
