package bronze_products

import (
	"github.com/yungbote/marketlake/internal/domain/pipeline"
	"github.com/yungbote/marketlake/internal/etl"
	jobrt "github.com/yungbote/marketlake/internal/jobs/runtime"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil {
		return nil
	}
	jc.Progress("materialize", "Normalizing raw listings")
	n, err := p.etl.BronzeProducts(jc.Ctx, jc.Day)
	if err != nil {
		jc.Fail("materialize", err)
		return nil
	}
	jc.Succeed("done", pipeline.JobOutput{Rows: n, Keys: []string{etl.DatasetBronzeProducts}})
	return nil
}
