package raw_download_product_category

import (
	"fmt"

	"github.com/yungbote/marketlake/internal/domain/pipeline"
	jobrt "github.com/yungbote/marketlake/internal/jobs/runtime"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil {
		return nil
	}
	ref := jc.Input.Category
	if ref == nil || ref.CategoryPathRoot == "" {
		jc.Fail("validate", fmt.Errorf("missing category"))
		return nil
	}
	limit := jc.Input.MaxProducts
	if limit <= 0 {
		limit = p.maxProducts
	}

	jc.Progress("download", fmt.Sprintf("Downloading category %d", ref.CategoryID))
	key, n, err := p.etl.DownloadCategoryProducts(jc.Ctx, jc.Day, *ref, limit)
	if err != nil {
		jc.Fail("download", err)
		return nil
	}
	jc.Succeed("done", pipeline.JobOutput{Rows: n, Keys: []string{key}})
	return nil
}
