package daily

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/yungbote/marketlake/internal/domain/pipeline"
	"github.com/yungbote/marketlake/internal/executor"
	"github.com/yungbote/marketlake/internal/jobs/orchestrator"
	"github.com/yungbote/marketlake/internal/platform/ctxutil"
)

// Run executes the whole graph for day. The returned run carries every task
// state even when err is non-nil; err is the first failed step's
// *pipeline.TaskFailedError.
func (p *Pipeline) Run(ctx context.Context, runID string, day time.Time) (*orchestrator.Run, error) {
	ctx = ctxutil.WithTraceData(ctx, &ctxutil.TraceData{RunID: runID})
	d := pipeline.FormatDay(day)
	run := p.engine.NewRun(runID, d)
	log := p.log.With("run_id", runID, "day", d)
	in := pipeline.JobInput{Day: d}

	var categories []pipeline.CategoryRef

	steps := []orchestrator.Step{
		{
			Name: pipeline.JobRawDownloadCategories,
			Run: func(ctx context.Context) error {
				_, err := run.Do(ctx, p.cfg.Spec(pipeline.JobRawDownloadCategories), "", in, p.invoke(pipeline.JobRawDownloadCategories))
				return err
			},
		},
		{
			Name: pipeline.JobBronzeCategories,
			Deps: []string{pipeline.JobRawDownloadCategories},
			Run: func(ctx context.Context) error {
				out, err := run.Do(ctx, p.cfg.Spec(pipeline.JobBronzeCategories), "", in, p.invoke(pipeline.JobBronzeCategories))
				if err != nil {
					return err
				}
				categories = out.Categories
				return nil
			},
		},
		{
			Name: pipeline.JobRawDownloadProductCategory,
			Deps: []string{pipeline.JobBronzeCategories},
			Run: func(ctx context.Context) error {
				res, err := run.FanOut(ctx, p.cfg.Spec(pipeline.JobRawDownloadProductCategory), p.categoryItems(d, categories), p.cfg.fanOut(), p.invoke(pipeline.JobRawDownloadProductCategory))
				if err != nil {
					return err
				}
				log.Info("category downloads finished", "categories", len(categories), "succeeded", len(res.Outputs))
				return nil
			},
		},
		{
			Name: pipeline.JobBronzeProducts,
			Deps: []string{pipeline.JobRawDownloadProductCategory},
			Run: func(ctx context.Context) error {
				_, err := run.Do(ctx, p.cfg.Spec(pipeline.JobBronzeProducts), "", in, p.polled(pipeline.JobBronzeProducts, runID))
				return err
			},
		},
		{
			Name: pipeline.JobSilverProducts,
			Deps: []string{pipeline.JobBronzeProducts},
			Run: func(ctx context.Context) error {
				_, err := run.Do(ctx, p.cfg.Spec(pipeline.JobSilverProducts), "", in, p.invoke(pipeline.JobSilverProducts))
				return err
			},
		},
	}
	goldIn := pipeline.JobInput{Day: d, WindowDays: p.cfg.GoldWindowDays}
	for _, job := range []string{pipeline.JobGoldCategories, pipeline.JobGoldLocations, pipeline.JobGoldProducts} {
		job := job
		steps = append(steps, orchestrator.Step{
			Name: job,
			Deps: []string{pipeline.JobSilverProducts},
			Run: func(ctx context.Context) error {
				_, err := run.Do(ctx, p.cfg.Spec(job), "", goldIn, p.invoke(job))
				return err
			},
		})
	}

	log.Info("daily run starting")
	start := time.Now()
	err := run.Execute(ctx, steps)
	if err != nil {
		log.Error("daily run failed", "error", err, "elapsed", time.Since(start))
		return run, err
	}
	log.Info("daily run finished", "elapsed", time.Since(start))
	return run, nil
}

func (p *Pipeline) categoryItems(day string, refs []pipeline.CategoryRef) []orchestrator.FanOutItem {
	items := make([]orchestrator.FanOutItem, 0, len(refs))
	for i := range refs {
		ref := refs[i]
		items = append(items, orchestrator.FanOutItem{
			Instance: strconv.FormatInt(ref.CategoryID, 10),
			Input:    pipeline.JobInput{Day: day, Category: &ref, MaxProducts: p.cfg.MaxProducts},
		})
	}
	return items
}

func (p *Pipeline) invoke(job string) orchestrator.TaskFunc {
	return func(ctx context.Context, in pipeline.JobInput) (pipeline.JobOutput, error) {
		return p.invoker.Invoke(ctx, job, in)
	}
}

func (p *Pipeline) polled(job, runID string) orchestrator.TaskFunc {
	return func(ctx context.Context, in pipeline.JobInput) (pipeline.JobOutput, error) {
		out, err := executor.RunPolled(ctx, p.poller, executor.JobSpec{Job: job, Input: in, RunID: runID}, p.cfg.wait())
		if err != nil {
			return pipeline.JobOutput{}, fmt.Errorf("polled %s: %w", job, err)
		}
		return out, nil
	}
}
