package executor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/yungbote/marketlake/internal/domain/pipeline"
	jobrt "github.com/yungbote/marketlake/internal/jobs/runtime"
)

type scriptedPoller struct {
	mu       sync.Mutex
	states   []JobStatus
	polls    int
	canceled int
}

func (s *scriptedPoller) Cancel(ctx context.Context, h Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canceled++
	s.states = []JobStatus{{State: StateStopped}}
	s.polls = 0
	return nil
}

func (s *scriptedPoller) Submit(ctx context.Context, spec JobSpec) (Handle, error) {
	return Handle{ID: "h1", Job: spec.Job}, nil
}

func (s *scriptedPoller) Poll(ctx context.Context, h Handle) (JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.polls
	s.polls++
	if i >= len(s.states) {
		return s.states[len(s.states)-1], nil
	}
	return s.states[i], nil
}

var fast = WaitConfig{Interval: time.Millisecond, Timeout: time.Second}

func TestRunPolledSucceeds(t *testing.T) {
	p := &scriptedPoller{states: []JobStatus{
		{State: StatePending},
		{State: StateRunning},
		{State: StateSucceeded, Output: &pipeline.JobOutput{Rows: 7}},
	}}
	out, err := RunPolled(context.Background(), p, JobSpec{Job: "bronze_products"}, fast)
	if err != nil {
		t.Fatalf("RunPolled: %v", err)
	}
	if out.Rows != 7 || p.polls != 3 {
		t.Fatalf("RunPolled: want rows=7 polls=3 got rows=%d polls=%d", out.Rows, p.polls)
	}
}

func TestRunPolledTerminalFailures(t *testing.T) {
	cases := []struct {
		name string
		st   JobStatus
	}{
		{"failed", JobStatus{State: StateFailed, ExitCode: 1, Message: "oom"}},
		{"stopped", JobStatus{State: StateStopped}},
		{"nonzero exit", JobStatus{State: StateSucceeded, ExitCode: 137}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := &scriptedPoller{states: []JobStatus{tc.st}}
			_, err := RunPolled(context.Background(), p, JobSpec{Job: "bronze_products"}, fast)
			var ee *pipeline.ExecutionError
			if !errors.As(err, &ee) {
				t.Fatalf("RunPolled: want ExecutionError got=%v", err)
			}
			if ee.Status != string(tc.st.State) || ee.ExitCode != tc.st.ExitCode {
				t.Fatalf("ExecutionError: want status=%s exit=%d got=%+v", tc.st.State, tc.st.ExitCode, ee)
			}
		})
	}
}

func TestWaitTimesOut(t *testing.T) {
	p := &scriptedPoller{states: []JobStatus{{State: StateRunning}}}
	start := time.Now()
	_, err := Wait(context.Background(), p, Handle{ID: "h", Job: "bronze_products"}, WaitConfig{Interval: 5 * time.Millisecond, Timeout: 30 * time.Millisecond})
	var ee *pipeline.ExecutionError
	if !errors.As(err, &ee) || ee.Status != string(StateRunning) {
		t.Fatalf("Wait: want timeout ExecutionError got=%v", err)
	}
	if !pipeline.IsRetryable(err) {
		t.Fatalf("timeout: want retryable")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("Wait overran its timeout")
	}
	if p.canceled != 1 {
		t.Fatalf("timeout: want job canceled once got=%d", p.canceled)
	}
}

func TestWaitHonorsCancel(t *testing.T) {
	p := &scriptedPoller{states: []JobStatus{{State: StateRunning}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Wait(ctx, p, Handle{ID: "h"}, fast)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait: want context.Canceled got=%v", err)
	}
	if p.canceled != 1 {
		t.Fatalf("cancel: want job canceled once got=%d", p.canceled)
	}
}

type handler struct {
	name string
	run  func(*jobrt.Context) error
}

func (h handler) Type() string                { return h.name }
func (h handler) Run(jc *jobrt.Context) error { return h.run(jc) }

func registry(t *testing.T) *jobrt.Registry {
	t.Helper()
	reg := jobrt.NewRegistry(nil)
	must := func(err error) {
		if err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	must(reg.Register(handler{name: "ok", run: func(jc *jobrt.Context) error {
		jc.Succeed("done", pipeline.JobOutput{Rows: 2})
		return nil
	}}))
	must(reg.Register(handler{name: "bad", run: func(jc *jobrt.Context) error {
		jc.Fail("write", &pipeline.SchemaMismatchError{Dataset: "silver/products"})
		return nil
	}}))
	return reg
}

func TestLocalPollerLifecycle(t *testing.T) {
	p := NewLocalPoller(context.Background(), registry(t), nil)
	out, err := RunPolled(context.Background(), p, JobSpec{Job: "ok", Input: pipeline.JobInput{Day: "2024-07-05"}}, fast)
	if err != nil || out.Rows != 2 || out.Day != "2024-07-05" {
		t.Fatalf("RunPolled ok: want rows=2 day=2024-07-05 got=%+v err=%v", out, err)
	}
	_, err = RunPolled(context.Background(), p, JobSpec{Job: "bad"}, fast)
	var ee *pipeline.ExecutionError
	if !errors.As(err, &ee) || ee.Status != string(StateFailed) || !ee.Fatal {
		t.Fatalf("RunPolled bad: want fatal Failed got=%v", err)
	}
	if _, err := p.Submit(context.Background(), JobSpec{Job: "nope"}); err == nil {
		t.Fatalf("Submit unknown: expected error")
	}
}

// slowJob blocks until released or canceled and tracks how many copies run
// at once.
type slowJob struct {
	mu      sync.Mutex
	running int
	peak    int
	release chan struct{}
}

func (s *slowJob) Type() string { return "slow" }

func (s *slowJob) Run(jc *jobrt.Context) error {
	s.mu.Lock()
	s.running++
	if s.running > s.peak {
		s.peak = s.running
	}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running--
		s.mu.Unlock()
	}()
	select {
	case <-s.release:
		jc.Succeed("done", pipeline.JobOutput{Rows: 1})
		return nil
	case <-jc.Ctx.Done():
		return jc.Ctx.Err()
	}
}

func TestTimedOutJobStopsBeforeRetry(t *testing.T) {
	job := &slowJob{release: make(chan struct{})}
	reg := jobrt.NewRegistry(nil)
	if err := reg.Register(job); err != nil {
		t.Fatalf("Register: %v", err)
	}
	p := NewLocalPoller(context.Background(), reg, nil)
	cfg := WaitConfig{Interval: 2 * time.Millisecond, Timeout: 20 * time.Millisecond, StopGrace: time.Second}

	for attempt := 1; attempt <= 2; attempt++ {
		_, err := RunPolled(context.Background(), p, JobSpec{Job: "slow"}, cfg)
		if !pipeline.IsRetryable(err) {
			t.Fatalf("attempt %d: want retryable timeout got=%v", attempt, err)
		}
	}
	job.mu.Lock()
	peak, running := job.peak, job.running
	job.mu.Unlock()
	if peak != 1 || running != 0 {
		t.Fatalf("slow job copies: want peak=1 running=0 got peak=%d running=%d", peak, running)
	}
	if n := p.Pending(); n != 0 {
		t.Fatalf("Pending after stop: want=0 got=%d", n)
	}
}

func TestCanceledWaitStopsLocalJob(t *testing.T) {
	job := &slowJob{release: make(chan struct{})}
	reg := jobrt.NewRegistry(nil)
	if err := reg.Register(job); err != nil {
		t.Fatalf("Register: %v", err)
	}
	p := NewLocalPoller(context.Background(), reg, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := RunPolled(ctx, p, JobSpec{Job: "slow"}, WaitConfig{Interval: 2 * time.Millisecond, Timeout: time.Minute, StopGrace: time.Second})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("RunPolled: want deadline exceeded got=%v", err)
	}
	job.mu.Lock()
	running := job.running
	job.mu.Unlock()
	if running != 0 {
		t.Fatalf("slow job still running after canceled wait")
	}
}

func TestLocalPollerForgetsPolledJobs(t *testing.T) {
	p := NewLocalPoller(context.Background(), registry(t), nil)
	for i := 0; i < 3; i++ {
		if _, err := RunPolled(context.Background(), p, JobSpec{Job: "ok"}, fast); err != nil {
			t.Fatalf("RunPolled: %v", err)
		}
	}
	if n := p.Pending(); n != 0 {
		t.Fatalf("Pending: want=0 got=%d", n)
	}
	if err := p.Cancel(context.Background(), Handle{ID: "gone"}); err != nil {
		t.Fatalf("Cancel unknown: want nil got=%v", err)
	}
}

func TestHTTPInvokerMapsResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/jobs/ok/invoke":
			var in pipeline.JobInput
			_ = json.NewDecoder(r.Body).Decode(&in)
			_ = json.NewEncoder(w).Encode(InvokeResponse{Job: "ok", Output: pipeline.JobOutput{Day: in.Day, Rows: 5}})
		case "/jobs/failed/invoke":
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"error":{"message":"boom","code":"job_failed"}}`))
		case "/jobs/fatal/invoke":
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"error":{"message":"schema","code":"job_fatal"}}`))
		case "/jobs/flaky/invoke":
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"upstream 503","code":"job_transient"}}`))
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	inv, err := NewHTTPInvoker(srv.URL, time.Second)
	if err != nil {
		t.Fatalf("NewHTTPInvoker: %v", err)
	}
	ctx := context.Background()

	out, err := inv.Invoke(ctx, "ok", pipeline.JobInput{Day: "2024-07-05"})
	if err != nil || out.Rows != 5 || out.Day != "2024-07-05" {
		t.Fatalf("Invoke ok: got=%+v err=%v", out, err)
	}

	_, err = inv.Invoke(ctx, "failed", pipeline.JobInput{})
	var ee *pipeline.ExecutionError
	if !errors.As(err, &ee) || ee.Fatal || ee.Message != "boom" {
		t.Fatalf("Invoke failed: want retryable ExecutionError got=%v", err)
	}

	_, err = inv.Invoke(ctx, "fatal", pipeline.JobInput{})
	if pipeline.IsRetryable(err) {
		t.Fatalf("Invoke fatal: want non-retryable got=%v", err)
	}

	_, err = inv.Invoke(ctx, "flaky", pipeline.JobInput{})
	if !pipeline.IsTransient(err) {
		t.Fatalf("Invoke flaky: want transient got=%v", err)
	}

	_, err = inv.Invoke(ctx, "gateway", pipeline.JobInput{})
	if !pipeline.IsTransient(err) {
		t.Fatalf("Invoke 502: want transient got=%v", err)
	}
}
