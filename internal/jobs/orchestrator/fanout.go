package orchestrator

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/marketlake/internal/domain/pipeline"
)

const (
	DefaultFanOutWorkers = 4
	DefaultMaxPacing     = 2 * time.Second
)

// FanOutConfig bounds a fan-out. Pacing is a uniform random pause in
// [0, MaxPacing) after each branch.
type FanOutConfig struct {
	Workers   int
	MaxPacing time.Duration
}

type FanOutItem struct {
	Instance string
	Input    pipeline.JobInput
}

type FanOutResult struct {
	Outputs []pipeline.JobOutput
	// Failed is nil when every branch succeeded.
	Failed *pipeline.PartialFanOutError
}

// FanOut runs spec once per item on a bounded pool. Branch failures are
// collected and logged as a *pipeline.PartialFanOutError; they never fail
// the fan-out or cancel siblings. Only ctx cancellation is returned.
func (r *Run) FanOut(ctx context.Context, spec TaskSpec, items []FanOutItem, cfg FanOutConfig, fn TaskFunc) (FanOutResult, error) {
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultFanOutWorkers
	}
	pacing := cfg.MaxPacing
	if pacing < 0 {
		pacing = 0
	}

	var (
		mu  sync.Mutex
		res FanOutResult
	)
	failed := &pipeline.PartialFanOutError{Task: spec.Name, Total: len(items)}

	g := new(errgroup.Group)
	g.SetLimit(workers)
	for _, it := range items {
		it := it
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			out, err := r.Do(ctx, spec, it.Instance, it.Input, fn)
			mu.Lock()
			if err != nil {
				failed.Failures = append(failed.Failures, pipeline.FanOutFailure{Item: it.Instance, Err: err})
			} else {
				res.Outputs = append(res.Outputs, out)
			}
			mu.Unlock()
			if err != nil {
				r.log.Warn("fan-out branch failed; continuing", "task", spec.Name, "instance", it.Instance, "error", err)
			}
			if pacing > 0 {
				_ = r.e.Sleep(ctx, time.Duration(rand.Int63n(int64(pacing))))
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(failed.Failures) > 0 {
		res.Failed = failed
		r.log.Warn("fan-out finished with failures", "task", spec.Name, "error", failed)
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}
