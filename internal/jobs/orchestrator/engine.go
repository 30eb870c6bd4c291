package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/marketlake/internal/domain/pipeline"
	"github.com/yungbote/marketlake/internal/platform/ctxutil"
	"github.com/yungbote/marketlake/internal/platform/logger"
)

// TaskSpec is the retry and cache policy of one named task.
type TaskSpec struct {
	Name string
	// Fingerprint keys the cache. Nil uses DefaultFingerprint.
	Fingerprint func(in pipeline.JobInput) string
	// TTL <= 0 disables caching for the task.
	TTL         time.Duration
	RetryBudget int
	RetryDelay  time.Duration
	// Jitter is the +/- fraction applied to RetryDelay. Default 0.20.
	Jitter float64
	// Retryable classifies failures. Nil uses pipeline.IsRetryable.
	Retryable func(err error) bool
}

// TaskFunc performs one attempt of a task.
type TaskFunc func(ctx context.Context, in pipeline.JobInput) (pipeline.JobOutput, error)

// Cache stores task outputs by fingerprint. It is advisory: any error is
// logged and treated as a miss.
type Cache interface {
	Get(ctx context.Context, key string) (pipeline.JobOutput, bool, error)
	Set(ctx context.Context, key string, out pipeline.JobOutput, ttl time.Duration) error
}

// Recorder receives every task state change that ends an attempt.
type Recorder interface {
	RecordTask(ctx context.Context, runID string, st TaskState)
}

// Engine holds the collaborators shared by every run.
type Engine struct {
	Cache    Cache
	Recorder Recorder
	Log      *logger.Logger
	Tracer   trace.Tracer

	// Sleep waits between attempts and for fan-out pacing.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

func NewEngine(log *logger.Logger, cache Cache, rec Recorder) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{
		Cache:    cache,
		Recorder: rec,
		Log:      log.With("service", "Orchestrator"),
		Tracer:   otel.Tracer("marketlake/orchestrator"),
		Sleep:    sleepCtx,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run is the task ledger of one pipeline execution.
type Run struct {
	ID  string
	Day string

	e   *Engine
	log *logger.Logger

	mu    sync.Mutex
	tasks map[string]*TaskState
	steps map[string]TaskStatus
}

func (e *Engine) NewRun(id, day string) *Run {
	return &Run{
		ID:    id,
		Day:   day,
		e:     e,
		log:   e.Log.With("run_id", id, "day", day),
		tasks: map[string]*TaskState{},
		steps: map[string]TaskStatus{},
	}
}

// Do runs fn under spec: a cache hit inside the TTL returns the recorded
// output, otherwise fn is attempted up to RetryBudget+1 times. A task that
// stays failed is returned as *pipeline.TaskFailedError.
func (r *Run) Do(ctx context.Context, spec TaskSpec, instance string, in pipeline.JobInput, fn TaskFunc) (pipeline.JobOutput, error) {
	ctx = ctxutil.Default(ctx)
	if ctxutil.GetTraceData(ctx) == nil {
		ctx = ctxutil.WithTraceData(ctx, &ctxutil.TraceData{RunID: r.ID})
	}
	st := r.task(spec.Name, instance)
	st.Fingerprint = fingerprint(spec, in)
	log := r.log.With("task", spec.Name, "instance", instance)

	cacheKey := CacheKey(spec.Name, st.Fingerprint)
	if out, ok := r.cached(ctx, spec, cacheKey, log); ok {
		r.update(st, func(s *TaskState) {
			_ = s.transition(TaskRunning, r.e.Now())
			_ = s.transition(TaskSucceeded, r.e.Now())
			s.Cached = true
			s.Output = &out
		})
		r.record(ctx, st)
		log.Info("task cache hit", "fingerprint", st.Fingerprint)
		return out, nil
	}

	retryable := spec.Retryable
	if retryable == nil {
		retryable = pipeline.IsRetryable
	}
	for {
		var attempt int
		r.update(st, func(s *TaskState) {
			if err := s.transition(TaskRunning, r.e.Now()); err != nil {
				log.Warn("task state", "error", err)
			}
			attempt = s.Attempts
		})

		out, err := r.attempt(ctx, spec, instance, attempt, in, fn)
		if err == nil {
			r.update(st, func(s *TaskState) {
				_ = s.transition(TaskSucceeded, r.e.Now())
				s.LastError = ""
				s.Output = &out
			})
			r.record(ctx, st)
			if r.e.Cache != nil && spec.TTL > 0 {
				if cerr := r.e.Cache.Set(ctx, cacheKey, out, spec.TTL); cerr != nil {
					log.Warn("task cache write failed", "error", cerr)
				}
			}
			log.Info("task succeeded", "attempt", attempt, "rows", out.Rows)
			return out, nil
		}

		r.update(st, func(s *TaskState) {
			_ = s.transition(TaskFailed, r.e.Now())
			s.LastError = errString(err)
		})
		r.record(ctx, st)

		if ctx.Err() != nil || !retryable(err) || attempt > spec.RetryBudget {
			log.Error("task failed", "attempt", attempt, "error", err)
			return pipeline.JobOutput{}, &pipeline.TaskFailedError{Task: spec.Name, Attempts: attempt, Err: err}
		}
		delay := computeBackoff(spec)
		log.Warn("task attempt failed; retrying", "attempt", attempt, "delay", delay, "error", err)
		if serr := r.e.Sleep(ctx, delay); serr != nil {
			return pipeline.JobOutput{}, &pipeline.TaskFailedError{Task: spec.Name, Attempts: attempt, Err: err}
		}
	}
}

func (r *Run) attempt(ctx context.Context, spec TaskSpec, instance string, attempt int, in pipeline.JobInput, fn TaskFunc) (out pipeline.JobOutput, err error) {
	tracer := r.e.Tracer
	if tracer == nil {
		tracer = otel.Tracer("marketlake/orchestrator")
	}
	ctx, span := tracer.Start(ctx, "task "+spec.Name, trace.WithAttributes(
		attribute.String("marketlake.run_id", r.ID),
		attribute.String("marketlake.task", spec.Name),
		attribute.String("marketlake.instance", instance),
		attribute.Int("marketlake.attempt", attempt),
	))
	defer span.End()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task %s panic: %v", spec.Name, p)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()
	return fn(ctx, in)
}

func (r *Run) cached(ctx context.Context, spec TaskSpec, key string, log *logger.Logger) (pipeline.JobOutput, bool) {
	if r.e.Cache == nil || spec.TTL <= 0 {
		return pipeline.JobOutput{}, false
	}
	out, ok, err := r.e.Cache.Get(ctx, key)
	if err != nil {
		log.Warn("task cache read failed", "error", err)
		return pipeline.JobOutput{}, false
	}
	return out, ok
}

func (r *Run) task(name, instance string) *TaskState {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := &TaskState{Task: name, Instance: instance, Status: TaskPending}
	if cur, ok := r.tasks[st.Key()]; ok {
		return cur
	}
	r.tasks[st.Key()] = st
	return st
}

func (r *Run) update(st *TaskState, fn func(*TaskState)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(st)
}

func (r *Run) record(ctx context.Context, st *TaskState) {
	if r.e.Recorder == nil {
		return
	}
	r.mu.Lock()
	snap := *st
	r.mu.Unlock()
	r.e.Recorder.RecordTask(ctx, r.ID, snap)
}

// Tasks returns a snapshot of every task instance, ordered by start time.
func (r *Run) Tasks() []TaskState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TaskState, 0, len(r.tasks))
	for _, st := range r.tasks {
		out = append(out, *st)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].StartedAt, out[j].StartedAt
		switch {
		case a == nil && b == nil:
			return out[i].Key() < out[j].Key()
		case a == nil:
			return false
		case b == nil:
			return true
		case a.Equal(*b):
			return out[i].Key() < out[j].Key()
		}
		return a.Before(*b)
	})
	return out
}

// Steps returns the status of every DAG step run so far.
func (r *Run) Steps() map[string]TaskStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]TaskStatus, len(r.steps))
	for k, v := range r.steps {
		out[k] = v
	}
	return out
}

func (r *Run) setStep(name string, s TaskStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps[name] = s
}

// DefaultFingerprint hashes the task name and its JSON-encoded input.
func DefaultFingerprint(name string, in pipeline.JobInput) string {
	b, _ := json.Marshal(in)
	sum := sha256.Sum256(append([]byte(name+"\x00"), b...))
	return hex.EncodeToString(sum[:16])
}

func fingerprint(spec TaskSpec, in pipeline.JobInput) string {
	if spec.Fingerprint != nil {
		return spec.Fingerprint(in)
	}
	return DefaultFingerprint(spec.Name, in)
}

func CacheKey(task, fp string) string {
	return "marketlake:task:" + task + ":" + fp
}

// computeBackoff returns RetryDelay spread uniformly by +/- Jitter.
func computeBackoff(spec TaskSpec) time.Duration {
	d := spec.RetryDelay
	if d <= 0 {
		return 0
	}
	j := spec.Jitter
	if j <= 0 {
		j = 0.20
	}
	delta := float64(d) * j
	low := float64(d) - delta
	high := float64(d) + delta
	if low < 0 {
		low = 0
	}
	return time.Duration(low + rand.Float64()*(high-low))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsTaskFailure reports whether err is a terminal task failure and returns it.
func IsTaskFailure(err error) (*pipeline.TaskFailedError, bool) {
	var tf *pipeline.TaskFailedError
	if errors.As(err, &tf) {
		return tf, true
	}
	return nil, false
}
