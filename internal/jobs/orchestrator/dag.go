package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/marketlake/internal/platform/ctxutil"
)

// Step is one node of a run's task graph.
type Step struct {
	Name string
	Deps []string
	Run  func(ctx context.Context) error
}

type stepResult struct {
	name string
	err  error
}

// Execute runs steps in dependency order. Steps whose dependencies have all
// succeeded start immediately and run concurrently. A failed step skips its
// transitive dependents but not independent branches. The first failure in
// topological order is returned once every runnable step has finished.
func (r *Run) Execute(ctx context.Context, steps []Step) error {
	ctx = ctxutil.Default(ctx)
	order, err := validateDAG(steps)
	if err != nil {
		return err
	}
	byName := make(map[string]Step, len(steps))
	deg := map[string]int{}
	dependents := map[string][]string{}
	for _, s := range steps {
		byName[s.Name] = s
		deg[s.Name] = len(s.Deps)
		for _, d := range s.Deps {
			dependents[d] = append(dependents[d], s.Name)
		}
		r.setStep(s.Name, TaskPending)
	}

	results := make(chan stepResult, len(steps))
	running := 0
	launch := func(name string) {
		running++
		r.setStep(name, TaskRunning)
		s := byName[name]
		go func() {
			var err error
			defer func() {
				if p := recover(); p != nil {
					err = fmt.Errorf("step %s panic: %v", name, p)
				}
				results <- stepResult{name: name, err: err}
			}()
			if s.Run == nil {
				err = fmt.Errorf("step %q: Run is nil", name)
				return
			}
			err = s.Run(ctx)
		}()
	}

	skipped := map[string]bool{}
	var skip func(name string)
	skip = func(name string) {
		for _, n := range dependents[name] {
			if skipped[n] {
				continue
			}
			skipped[n] = true
			r.setStep(n, TaskSkipped)
			r.log.Warn("step skipped", "step", n, "failed_dependency", name)
			skip(n)
		}
	}

	for _, name := range order {
		if deg[name] == 0 {
			launch(name)
		}
	}

	failures := map[string]error{}
	for running > 0 {
		res := <-results
		running--
		if res.err != nil {
			failures[res.name] = res.err
			r.setStep(res.name, TaskFailed)
			r.log.Error("step failed", "step", res.name, "error", res.err)
			skip(res.name)
			continue
		}
		r.setStep(res.name, TaskSucceeded)
		for _, n := range dependents[res.name] {
			deg[n]--
			if deg[n] == 0 && !skipped[n] {
				launch(n)
			}
		}
	}

	for _, name := range order {
		if err := failures[name]; err != nil {
			return err
		}
	}
	return nil
}

// validateDAG checks names and dependencies and returns a Kahn topological
// order that is stable with respect to the input order.
func validateDAG(steps []Step) ([]string, error) {
	if len(steps) == 0 {
		return nil, nil
	}
	seen := map[string]bool{}
	for _, s := range steps {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return nil, fmt.Errorf("step missing Name")
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate step name %q", name)
		}
		seen[name] = true
	}
	for _, s := range steps {
		for _, dep := range s.Deps {
			if !seen[dep] {
				return nil, fmt.Errorf("step %q depends on unknown step %q", s.Name, dep)
			}
		}
	}

	deg := map[string]int{}
	out := map[string][]string{}
	for _, s := range steps {
		deg[s.Name] = len(s.Deps)
		for _, dep := range s.Deps {
			out[dep] = append(out[dep], s.Name)
		}
	}

	order := make([]string, 0, len(steps))
	added := map[string]bool{}
	for {
		progressed := false
		for _, s := range steps {
			if added[s.Name] || deg[s.Name] != 0 {
				continue
			}
			added[s.Name] = true
			order = append(order, s.Name)
			for _, n := range out[s.Name] {
				deg[n]--
			}
			progressed = true
		}
		if !progressed {
			break
		}
	}
	if len(order) != len(steps) {
		return nil, fmt.Errorf("cycle detected in step graph")
	}
	return order, nil
}
