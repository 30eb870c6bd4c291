package gold_rollup

import (
	"github.com/yungbote/marketlake/internal/domain/pipeline"
	jobrt "github.com/yungbote/marketlake/internal/jobs/runtime"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil {
		return nil
	}
	window := jc.Input.WindowDays
	if window <= 0 {
		window = p.window
	}
	jc.Progress("aggregate", "Aggregating silver window")
	n, err := p.etl.Gold(jc.Ctx, jc.Day, p.rollup, window)
	if err != nil {
		jc.Fail("aggregate", err)
		return nil
	}
	jc.Succeed("done", pipeline.JobOutput{Rows: n, Keys: []string{p.rollup.Key}})
	return nil
}
