package temporalx

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/temporal"

	"github.com/yungbote/marketlake/internal/domain/pipeline"
	"github.com/yungbote/marketlake/internal/executor"
	"github.com/yungbote/marketlake/internal/temporalx/jobrun"
)

func TestStateOf(t *testing.T) {
	cases := map[enumspb.WorkflowExecutionStatus]executor.JobState{
		enumspb.WORKFLOW_EXECUTION_STATUS_UNSPECIFIED:      executor.StatePending,
		enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING:          executor.StateRunning,
		enumspb.WORKFLOW_EXECUTION_STATUS_CONTINUED_AS_NEW: executor.StateRunning,
		enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED:        executor.StateSucceeded,
		enumspb.WORKFLOW_EXECUTION_STATUS_FAILED:           executor.StateFailed,
		enumspb.WORKFLOW_EXECUTION_STATUS_TIMED_OUT:        executor.StateFailed,
		enumspb.WORKFLOW_EXECUTION_STATUS_TERMINATED:       executor.StateStopped,
		enumspb.WORKFLOW_EXECUTION_STATUS_CANCELED:         executor.StateStopped,
	}
	for in, want := range cases {
		if got := StateOf(in); got != want {
			t.Fatalf("StateOf(%s): want=%s got=%s", in, want, got)
		}
	}
}

func TestFailureOf(t *testing.T) {
	if msg, fatal := FailureOf(nil); msg != "" || fatal {
		t.Fatalf("FailureOf(nil): got msg=%q fatal=%v", msg, fatal)
	}

	fatalErr := fmt.Errorf("job silver_products: %w", temporal.NewNonRetryableApplicationError("schema changed", jobrun.ErrTypeFatal, nil))
	msg, fatal := FailureOf(fatalErr)
	if !fatal || !strings.Contains(msg, "schema changed") {
		t.Fatalf("FailureOf fatal: got msg=%q fatal=%v", msg, fatal)
	}

	msg, fatal = FailureOf(temporal.NewApplicationError("boom", jobrun.ErrTypeFailed))
	if fatal || !strings.Contains(msg, "boom") {
		t.Fatalf("FailureOf failed: got msg=%q fatal=%v", msg, fatal)
	}

	if msg, fatal := FailureOf(errors.New("terminated")); fatal || msg != "terminated" {
		t.Fatalf("FailureOf plain: got msg=%q fatal=%v", msg, fatal)
	}
}

func TestWorkflowIDIsUniquePerSubmit(t *testing.T) {
	spec := executor.JobSpec{Job: pipeline.JobBronzeProducts, Input: pipeline.JobInput{Day: "2024-07-05"}}
	a, b := WorkflowID(spec), WorkflowID(spec)
	if a == b {
		t.Fatalf("WorkflowID: want distinct ids got=%q", a)
	}
	if !strings.HasPrefix(a, "marketlake-"+pipeline.JobBronzeProducts+"-2024-07-05-") {
		t.Fatalf("WorkflowID: unexpected prefix %q", a)
	}
}

func TestBackoff(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{10, time.Second},
	}
	for _, tc := range cases {
		if got := Backoff(100*time.Millisecond, time.Second, tc.attempt); got != tc.want {
			t.Fatalf("Backoff(attempt=%d): want=%s got=%s", tc.attempt, tc.want, got)
		}
	}
}
