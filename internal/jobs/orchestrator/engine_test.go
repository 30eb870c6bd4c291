package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yungbote/marketlake/internal/domain/pipeline"
)

type mapCache struct {
	mu   sync.Mutex
	m    map[string]pipeline.JobOutput
	fail bool
}

func (c *mapCache) Get(ctx context.Context, key string) (pipeline.JobOutput, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return pipeline.JobOutput{}, false, errors.New("cache down")
	}
	out, ok := c.m[key]
	return out, ok, nil
}

func (c *mapCache) Set(ctx context.Context, key string, out pipeline.JobOutput, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("cache down")
	}
	if c.m == nil {
		c.m = map[string]pipeline.JobOutput{}
	}
	c.m[key] = out
	return nil
}

type memRecorder struct {
	mu    sync.Mutex
	calls []TaskState
}

func (m *memRecorder) RecordTask(ctx context.Context, runID string, st TaskState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, st)
}

type sleeps struct {
	mu sync.Mutex
	d  []time.Duration
}

func (s *sleeps) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.d = append(s.d, d)
	return ctx.Err()
}

func testEngine(cache Cache) (*Engine, *sleeps, *memRecorder) {
	rec := &memRecorder{}
	e := NewEngine(nil, cache, rec)
	sl := &sleeps{}
	e.Sleep = sl.sleep
	return e, sl, rec
}

var day = pipeline.JobInput{Day: "2024-07-05"}

func TestDoRetriesUntilSuccess(t *testing.T) {
	e, sl, rec := testEngine(nil)
	run := e.NewRun("r1", "2024-07-05")
	calls := 0
	spec := TaskSpec{Name: "silver_products", RetryBudget: 2, RetryDelay: 5 * time.Second}
	out, err := run.Do(context.Background(), spec, "", day, func(ctx context.Context, in pipeline.JobInput) (pipeline.JobOutput, error) {
		calls++
		if calls < 3 {
			return pipeline.JobOutput{}, pipeline.Transient("invoke", errors.New("503"))
		}
		return pipeline.JobOutput{Day: in.Day, Rows: 9}, nil
	})
	if err != nil || out.Rows != 9 {
		t.Fatalf("Do: want rows=9 got=%+v err=%v", out, err)
	}
	if calls != 3 || len(sl.d) != 2 {
		t.Fatalf("Do: want calls=3 sleeps=2 got calls=%d sleeps=%d", calls, len(sl.d))
	}
	for _, d := range sl.d {
		if d < 4*time.Second || d > 6*time.Second {
			t.Fatalf("retry delay outside jitter band: %s", d)
		}
	}
	tasks := run.Tasks()
	if len(tasks) != 1 || tasks[0].Status != TaskSucceeded || tasks[0].Attempts != 3 {
		t.Fatalf("task state: got=%+v", tasks)
	}
	if len(rec.calls) != 3 {
		t.Fatalf("recorder: want 3 records (2 failed, 1 succeeded) got=%d", len(rec.calls))
	}
}

func TestDoExhaustsBudget(t *testing.T) {
	e, _, _ := testEngine(nil)
	run := e.NewRun("r1", "2024-07-05")
	calls := 0
	spec := TaskSpec{Name: "bronze_products", RetryBudget: 2}
	_, err := run.Do(context.Background(), spec, "", day, func(ctx context.Context, in pipeline.JobInput) (pipeline.JobOutput, error) {
		calls++
		return pipeline.JobOutput{}, &pipeline.ExecutionError{Job: "bronze_products", Status: "Failed", ExitCode: 1}
	})
	var tf *pipeline.TaskFailedError
	if !errors.As(err, &tf) {
		t.Fatalf("Do: want TaskFailedError got=%v", err)
	}
	if tf.Task != "bronze_products" || tf.Attempts != 3 || calls != 3 {
		t.Fatalf("Do: want 3 attempts got task=%s attempts=%d calls=%d", tf.Task, tf.Attempts, calls)
	}
	var ee *pipeline.ExecutionError
	if !errors.As(err, &ee) {
		t.Fatalf("Do: last error should unwrap to ExecutionError got=%v", err)
	}
	if st := run.Tasks()[0]; st.Status != TaskFailed || st.LastError == "" {
		t.Fatalf("task state: got=%+v", st)
	}
}

func TestDoDoesNotRetrySchemaMismatch(t *testing.T) {
	e, sl, _ := testEngine(nil)
	run := e.NewRun("r1", "2024-07-05")
	calls := 0
	_, err := run.Do(context.Background(), TaskSpec{Name: "silver_products", RetryBudget: 5}, "", day, func(ctx context.Context, in pipeline.JobInput) (pipeline.JobOutput, error) {
		calls++
		return pipeline.JobOutput{}, &pipeline.SchemaMismatchError{Dataset: "silver/products"}
	})
	if err == nil || calls != 1 || len(sl.d) != 0 {
		t.Fatalf("Do: want single attempt got calls=%d sleeps=%d err=%v", calls, len(sl.d), err)
	}
	if !errors.Is(err, pipeline.ErrSchemaMismatch) {
		t.Fatalf("Do: want ErrSchemaMismatch in chain got=%v", err)
	}
}

func TestDoCacheHitSkipsExecution(t *testing.T) {
	cache := &mapCache{}
	e, _, _ := testEngine(cache)
	spec := TaskSpec{Name: "bronze_categories", TTL: time.Minute}
	calls := 0
	fn := func(ctx context.Context, in pipeline.JobInput) (pipeline.JobOutput, error) {
		calls++
		return pipeline.JobOutput{Day: in.Day, Rows: 3}, nil
	}

	if _, err := e.NewRun("r1", "2024-07-05").Do(context.Background(), spec, "", day, fn); err != nil {
		t.Fatalf("first Do: %v", err)
	}
	run := e.NewRun("r2", "2024-07-05")
	out, err := run.Do(context.Background(), spec, "", day, fn)
	if err != nil || out.Rows != 3 || calls != 1 {
		t.Fatalf("cached Do: want rows=3 calls=1 got=%+v calls=%d err=%v", out, calls, err)
	}
	if st := run.Tasks()[0]; !st.Cached || st.Status != TaskSucceeded {
		t.Fatalf("cached task state: got=%+v", st)
	}

	// A different input is a different fingerprint.
	if _, err := run.Do(context.Background(), spec, "other", pipeline.JobInput{Day: "2024-07-06"}, fn); err != nil || calls != 2 {
		t.Fatalf("new fingerprint: want calls=2 got=%d err=%v", calls, err)
	}
}

func TestDoCacheIsAdvisory(t *testing.T) {
	for _, cache := range []Cache{nil, &mapCache{fail: true}} {
		e, _, _ := testEngine(cache)
		calls := 0
		spec := TaskSpec{Name: "bronze_categories", TTL: time.Minute}
		for i := 0; i < 2; i++ {
			out, err := e.NewRun("r", "2024-07-05").Do(context.Background(), spec, "", day, func(ctx context.Context, in pipeline.JobInput) (pipeline.JobOutput, error) {
				calls++
				return pipeline.JobOutput{Rows: 1}, nil
			})
			if err != nil || out.Rows != 1 {
				t.Fatalf("Do without working cache: got=%+v err=%v", out, err)
			}
		}
		if calls != 2 {
			t.Fatalf("Do without working cache: want calls=2 got=%d", calls)
		}
	}
}

func TestDoRecoversPanics(t *testing.T) {
	e, _, _ := testEngine(nil)
	_, err := e.NewRun("r", "").Do(context.Background(), TaskSpec{Name: "gold_products"}, "", day, func(ctx context.Context, in pipeline.JobInput) (pipeline.JobOutput, error) {
		panic("boom")
	})
	if _, ok := IsTaskFailure(err); !ok {
		t.Fatalf("Do panic: want TaskFailedError got=%v", err)
	}
}

func TestTransitions(t *testing.T) {
	now := time.Now()
	st := &TaskState{Task: "t", Status: TaskPending}
	if err := st.transition(TaskSucceeded, now); err == nil {
		t.Fatalf("Pending -> Succeeded should be rejected")
	}
	steps := []TaskStatus{TaskRunning, TaskFailed, TaskRunning, TaskSucceeded}
	for _, s := range steps {
		if err := st.transition(s, now); err != nil {
			t.Fatalf("transition %s: %v", s, err)
		}
	}
	if st.Attempts != 2 {
		t.Fatalf("attempts: want=2 got=%d", st.Attempts)
	}
	if err := st.transition(TaskRunning, now); err == nil {
		t.Fatalf("Succeeded is terminal")
	}
}

func TestComputeBackoffBounds(t *testing.T) {
	spec := TaskSpec{RetryDelay: 10 * time.Second, Jitter: 0.5}
	for i := 0; i < 200; i++ {
		d := computeBackoff(spec)
		if d < 5*time.Second || d > 15*time.Second {
			t.Fatalf("computeBackoff: %s outside [5s,15s]", d)
		}
	}
	if d := computeBackoff(TaskSpec{}); d != 0 {
		t.Fatalf("computeBackoff zero delay: got=%s", d)
	}
}
