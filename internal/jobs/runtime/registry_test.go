package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yungbote/marketlake/internal/domain/pipeline"
)

type fnHandler struct {
	name string
	run  func(*Context) error
}

func (h fnHandler) Type() string          { return h.name }
func (h fnHandler) Run(jc *Context) error { return h.run(jc) }

func newTestRegistry(t *testing.T, hs ...Handler) *Registry {
	t.Helper()
	r := NewRegistry(nil)
	r.now = func() time.Time { return time.Date(2024, 7, 5, 13, 0, 0, 0, time.UTC) }
	for _, h := range hs {
		if err := r.Register(h); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	return r
}

func TestExecuteDefaultsDayAndReturnsOutput(t *testing.T) {
	r := newTestRegistry(t, fnHandler{name: "echo", run: func(jc *Context) error {
		jc.Succeed("done", pipeline.JobOutput{Rows: 3})
		return nil
	}})
	out, err := r.Execute(context.Background(), "echo", pipeline.JobInput{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.Day != "2024-07-05" || out.Rows != 3 {
		t.Fatalf("output: want day=2024-07-05 rows=3 got=%+v", out)
	}
}

func TestExecuteFailures(t *testing.T) {
	r := newTestRegistry(t,
		fnHandler{name: "fails", run: func(jc *Context) error {
			jc.Fail("write", &pipeline.SchemaMismatchError{Dataset: "x"})
			return nil
		}},
		fnHandler{name: "panics", run: func(jc *Context) error { panic("kaboom") }},
		fnHandler{name: "transient", run: func(jc *Context) error {
			return pipeline.Transient("search", errors.New("503"))
		}},
	)
	ctx := context.Background()

	_, err := r.Execute(ctx, "fails", pipeline.JobInput{Day: "2024-07-01"})
	var ee *pipeline.ExecutionError
	if !errors.As(err, &ee) || !ee.Fatal || ee.Job != "fails" {
		t.Fatalf("fails: want fatal ExecutionError got=%v", err)
	}

	_, err = r.Execute(ctx, "panics", pipeline.JobInput{})
	if !errors.As(err, &ee) || ee.Fatal {
		t.Fatalf("panics: want retryable ExecutionError got=%v", err)
	}

	_, err = r.Execute(ctx, "transient", pipeline.JobInput{})
	if !pipeline.IsTransient(err) {
		t.Fatalf("transient: want TransientError got=%v", err)
	}

	_, err = r.Execute(ctx, "missing", pipeline.JobInput{})
	if !errors.As(err, &ee) || ee.Message != "unknown job" {
		t.Fatalf("missing: want unknown job got=%v", err)
	}

	_, err = r.Execute(ctx, "fails", pipeline.JobInput{Day: "yesterday"})
	if !errors.As(err, &ee) || !ee.Fatal {
		t.Fatalf("bad day: want fatal ExecutionError got=%v", err)
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := NewRegistry(nil)
	h := fnHandler{name: "a", run: func(*Context) error { return nil }}
	if err := r.Register(h); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(h); err == nil {
		t.Fatalf("Register duplicate: expected error")
	}
	if names := r.Names(); len(names) != 1 || names[0] != "a" {
		t.Fatalf("Names: want=[a] got=%v", names)
	}
}
