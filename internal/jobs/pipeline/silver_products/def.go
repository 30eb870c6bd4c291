package silver_products

import (
	"github.com/yungbote/marketlake/internal/domain/pipeline"
	"github.com/yungbote/marketlake/internal/etl"
	"github.com/yungbote/marketlake/internal/platform/logger"
)

type Pipeline struct {
	log *logger.Logger
	etl *etl.Transformer
}

func New(baseLog *logger.Logger, t *etl.Transformer) *Pipeline {
	return &Pipeline{
		log: baseLog.With("job", pipeline.JobSilverProducts),
		etl: t,
	}
}

func (p *Pipeline) Type() string { return pipeline.JobSilverProducts }
