package runtime

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/yungbote/marketlake/internal/domain/pipeline"
	"github.com/yungbote/marketlake/internal/platform/logger"
)

type Handler interface {
	Type() string
	Run(ctx *Context) error
}

type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	log      *logger.Logger
	now      func() time.Time
}

func NewRegistry(log *logger.Logger) *Registry {
	if log == nil {
		log = logger.Nop()
	}
	return &Registry{handlers: make(map[string]Handler), log: log, now: time.Now}
}

func (r *Registry) Register(h Handler) error {
	if h == nil {
		return fmt.Errorf("nil handler")
	}
	t := h.Type()
	if t == "" {
		return fmt.Errorf("handler Type() is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[t]; exists {
		return fmt.Errorf("handler already registered for job=%s", t)
	}
	r.handlers[t] = h
	return nil
}

func (r *Registry) Get(job string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[job]
	return h, ok
}

// Names lists registered jobs, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Execute runs job in-process and returns its result. Every failure comes
// back as an *ExecutionError unless it was transient.
func (r *Registry) Execute(ctx context.Context, job string, in pipeline.JobInput) (pipeline.JobOutput, error) {
	h, ok := r.Get(job)
	if !ok {
		return pipeline.JobOutput{}, &pipeline.ExecutionError{Job: job, Status: "failed", Message: "unknown job", Fatal: true}
	}
	jc, err := NewContext(ctx, job, in, r.log, r.now)
	if err != nil {
		return pipeline.JobOutput{}, &pipeline.ExecutionError{Job: job, Status: "failed", Message: err.Error(), Fatal: true}
	}
	if err := safeRun(h, jc); err != nil {
		return pipeline.JobOutput{}, pipeline.JobFailure(job, "", err)
	}
	return jc.Result()
}

func safeRun(h Handler, jc *Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return h.Run(jc)
}
