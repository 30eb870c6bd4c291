package jobrun

import (
	"errors"
	"testing"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/yungbote/marketlake/internal/domain/pipeline"
	"github.com/yungbote/marketlake/internal/executor"
	jobrt "github.com/yungbote/marketlake/internal/jobs/runtime"
)

type stubJob struct {
	name string
	run  func(*jobrt.Context) error
}

func (s stubJob) Type() string                { return s.name }
func (s stubJob) Run(jc *jobrt.Context) error { return s.run(jc) }

func newEnv(t *testing.T, jobs ...stubJob) *testsuite.TestWorkflowEnvironment {
	t.Helper()
	reg := jobrt.NewRegistry(nil)
	for _, j := range jobs {
		if err := reg.Register(j); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	acts := &Activities{Registry: reg}
	env.RegisterActivityWithOptions(acts.Run, activity.RegisterOptions{Name: ActivityRun})
	return env
}

func TestWorkflowReturnsJobOutput(t *testing.T) {
	env := newEnv(t, stubJob{name: pipeline.JobBronzeProducts, run: func(jc *jobrt.Context) error {
		jc.Succeed("written", pipeline.JobOutput{Rows: 12})
		return nil
	}})
	env.ExecuteWorkflow(Workflow, executor.JobSpec{Job: pipeline.JobBronzeProducts, Input: pipeline.JobInput{Day: "2024-07-05"}}, time.Minute)

	if !env.IsWorkflowCompleted() {
		t.Fatalf("workflow did not complete")
	}
	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("workflow error: %v", err)
	}
	var out pipeline.JobOutput
	if err := env.GetWorkflowResult(&out); err != nil {
		t.Fatalf("GetWorkflowResult: %v", err)
	}
	if out.Rows != 12 || out.Day != "2024-07-05" {
		t.Fatalf("output: want rows=12 day=2024-07-05 got=%+v", out)
	}
}

func TestWorkflowTagsFatalFailures(t *testing.T) {
	env := newEnv(t, stubJob{name: pipeline.JobBronzeProducts, run: func(jc *jobrt.Context) error {
		jc.Fail("write", &pipeline.SchemaMismatchError{Dataset: "bronze/products"})
		return nil
	}})
	env.ExecuteWorkflow(Workflow, executor.JobSpec{Job: pipeline.JobBronzeProducts, Input: pipeline.JobInput{Day: "2024-07-05"}}, time.Minute)

	err := env.GetWorkflowError()
	var appErr *temporal.ApplicationError
	if !errors.As(err, &appErr) {
		t.Fatalf("workflow error: want ApplicationError got=%v", err)
	}
	if appErr.Type() != ErrTypeFatal {
		t.Fatalf("error type: want=%s got=%s", ErrTypeFatal, appErr.Type())
	}
}

func TestWorkflowRejectsMissingJob(t *testing.T) {
	env := newEnv(t)
	env.ExecuteWorkflow(Workflow, executor.JobSpec{}, time.Minute)
	if env.GetWorkflowError() == nil {
		t.Fatalf("workflow: expected error for empty job")
	}
}
