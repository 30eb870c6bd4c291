package raw_download_product_category

import (
	"github.com/yungbote/marketlake/internal/domain/pipeline"
	"github.com/yungbote/marketlake/internal/etl"
	"github.com/yungbote/marketlake/internal/platform/logger"
)

type Pipeline struct {
	log         *logger.Logger
	etl         *etl.Transformer
	maxProducts int
}

// New builds the per-category download job. maxProducts is used when the
// input does not carry its own cap.
func New(baseLog *logger.Logger, t *etl.Transformer, maxProducts int) *Pipeline {
	if maxProducts <= 0 {
		maxProducts = etl.DefaultMaxProducts
	}
	return &Pipeline{
		log:         baseLog.With("job", pipeline.JobRawDownloadProductCategory),
		etl:         t,
		maxProducts: maxProducts,
	}
}

func (p *Pipeline) Type() string { return pipeline.JobRawDownloadProductCategory }
