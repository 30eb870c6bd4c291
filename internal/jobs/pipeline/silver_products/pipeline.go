package silver_products

import (
	"github.com/yungbote/marketlake/internal/domain/pipeline"
	"github.com/yungbote/marketlake/internal/etl"
	jobrt "github.com/yungbote/marketlake/internal/jobs/runtime"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil {
		return nil
	}
	jc.Progress("join", "Joining products to categories")
	n, err := p.etl.SilverProducts(jc.Ctx, jc.Day)
	if err != nil {
		jc.Fail("join", err)
		return nil
	}
	jc.Succeed("done", pipeline.JobOutput{Rows: n, Keys: []string{etl.DatasetSilverProducts}})
	return nil
}
