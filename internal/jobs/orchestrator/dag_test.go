package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/marketlake/internal/domain/pipeline"
)

type trail struct {
	mu    sync.Mutex
	order []string
}

func (t *trail) step(name string, deps []string, err error) Step {
	return Step{Name: name, Deps: deps, Run: func(ctx context.Context) error {
		t.mu.Lock()
		t.order = append(t.order, name)
		t.mu.Unlock()
		return err
	}}
}

func (t *trail) index(name string) int {
	for i, n := range t.order {
		if n == name {
			return i
		}
	}
	return -1
}

func TestExecuteRespectsDependencies(t *testing.T) {
	e, _, _ := testEngine(nil)
	run := e.NewRun("r", "2024-07-05")
	tr := &trail{}
	steps := []Step{
		tr.step("gold_a", []string{"silver"}, nil),
		tr.step("raw", nil, nil),
		tr.step("silver", []string{"bronze"}, nil),
		tr.step("bronze", []string{"raw"}, nil),
		tr.step("gold_b", []string{"silver"}, nil),
	}
	if err := run.Execute(context.Background(), steps); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(tr.order) != 5 {
		t.Fatalf("Execute: want 5 steps run got=%v", tr.order)
	}
	for _, pair := range [][2]string{{"raw", "bronze"}, {"bronze", "silver"}, {"silver", "gold_a"}, {"silver", "gold_b"}} {
		if tr.index(pair[0]) > tr.index(pair[1]) {
			t.Fatalf("Execute: %s ran after %s: %v", pair[0], pair[1], tr.order)
		}
	}
	for name, st := range run.Steps() {
		if st != TaskSucceeded {
			t.Fatalf("step %s: want succeeded got=%s", name, st)
		}
	}
}

func TestExecuteSkipsDependentsOfFailure(t *testing.T) {
	e, _, _ := testEngine(nil)
	run := e.NewRun("r", "2024-07-05")
	tr := &trail{}
	boom := &pipeline.TaskFailedError{Task: "silver", Attempts: 3, Err: errors.New("boom")}
	steps := []Step{
		tr.step("raw", nil, nil),
		tr.step("silver", []string{"raw"}, boom),
		tr.step("gold", []string{"silver"}, nil),
		tr.step("gold_report", []string{"gold"}, nil),
		tr.step("side", []string{"raw"}, nil),
	}
	err := run.Execute(context.Background(), steps)
	if !errors.Is(err, boom) {
		t.Fatalf("Execute: want silver failure got=%v", err)
	}
	if tr.index("gold") >= 0 || tr.index("gold_report") >= 0 {
		t.Fatalf("dependents of a failed step must not run: %v", tr.order)
	}
	if tr.index("side") < 0 {
		t.Fatalf("independent branch must still run: %v", tr.order)
	}
	st := run.Steps()
	want := map[string]TaskStatus{"raw": TaskSucceeded, "silver": TaskFailed, "gold": TaskSkipped, "gold_report": TaskSkipped, "side": TaskSucceeded}
	for k, v := range want {
		if st[k] != v {
			t.Fatalf("step %s: want=%s got=%s", k, v, st[k])
		}
	}
}

func TestExecuteRunsIndependentStepsConcurrently(t *testing.T) {
	e, _, _ := testEngine(nil)
	run := e.NewRun("r", "2024-07-05")
	var inFlight, peak int32
	gate := make(chan struct{})
	var once sync.Once
	gold := func(name string) Step {
		return Step{Name: name, Deps: []string{"silver"}, Run: func(ctx context.Context) error {
			n := atomic.AddInt32(&inFlight, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			if n == 3 {
				once.Do(func() { close(gate) })
			}
			select {
			case <-gate:
			case <-time.After(2 * time.Second):
			}
			atomic.AddInt32(&inFlight, -1)
			return nil
		}}
	}
	steps := []Step{
		{Name: "silver", Run: func(ctx context.Context) error { return nil }},
		gold("gold_categories"), gold("gold_locations"), gold("gold_products"),
	}
	if err := run.Execute(context.Background(), steps); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if atomic.LoadInt32(&peak) != 3 {
		t.Fatalf("gold steps: want 3 concurrent got peak=%d", peak)
	}
}

func TestValidateDAG(t *testing.T) {
	noop := func(ctx context.Context) error { return nil }
	cases := []struct {
		name  string
		steps []Step
		want  string
	}{
		{"cycle", []Step{{Name: "a", Deps: []string{"b"}, Run: noop}, {Name: "b", Deps: []string{"a"}, Run: noop}}, "cycle"},
		{"unknown dep", []Step{{Name: "a", Deps: []string{"x"}, Run: noop}}, "unknown step"},
		{"duplicate", []Step{{Name: "a", Run: noop}, {Name: "a", Run: noop}}, "duplicate"},
		{"unnamed", []Step{{Run: noop}}, "missing Name"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := validateDAG(tc.steps)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("validateDAG: want error containing %q got=%v", tc.want, err)
			}
		})
	}

	order, err := validateDAG([]Step{{Name: "c", Deps: []string{"b"}}, {Name: "a"}, {Name: "b", Deps: []string{"a"}}})
	if err != nil || fmt.Sprint(order) != "[a b c]" {
		t.Fatalf("validateDAG order: want=[a b c] got=%v err=%v", order, err)
	}
}
