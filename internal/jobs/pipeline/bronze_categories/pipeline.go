package bronze_categories

import (
	"github.com/yungbote/marketlake/internal/domain/pipeline"
	"github.com/yungbote/marketlake/internal/etl"
	jobrt "github.com/yungbote/marketlake/internal/jobs/runtime"
)

// Run rebuilds bronze/categories and returns one CategoryRef per distinct
// leaf so the caller can fan out downloads.
func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil {
		return nil
	}
	jc.Progress("flatten", "Flattening category snapshots")
	flat, err := p.etl.BronzeCategories(jc.Ctx)
	if err != nil {
		jc.Fail("flatten", err)
		return nil
	}

	seen := make(map[int64]bool, len(flat))
	refs := make([]pipeline.CategoryRef, 0, len(flat))
	for _, c := range flat {
		if seen[c.CategoryID] {
			continue
		}
		seen[c.CategoryID] = true
		refs = append(refs, pipeline.CategoryRef{
			CategoryID:         c.CategoryID,
			CategoryPathRoot:   c.CategoryPathRoot,
			CategorySearchPath: c.CategorySearchPath,
		})
	}
	jc.Succeed("done", pipeline.JobOutput{
		Rows:       len(flat),
		Keys:       []string{etl.DatasetBronzeCategories},
		Categories: refs,
	})
	return nil
}
