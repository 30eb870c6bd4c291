package raw_download_categories

import (
	"github.com/yungbote/marketlake/internal/domain/pipeline"
	jobrt "github.com/yungbote/marketlake/internal/jobs/runtime"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil {
		return nil
	}
	jc.Progress("download", "Downloading category tree")
	key, n, err := p.etl.DownloadCategories(jc.Ctx, jc.Day)
	if err != nil {
		jc.Fail("download", err)
		return nil
	}
	jc.Succeed("done", pipeline.JobOutput{Rows: n, Keys: []string{key}})
	return nil
}
