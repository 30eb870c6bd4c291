package daily

import (
	"github.com/yungbote/marketlake/internal/domain/pipeline"
	"github.com/yungbote/marketlake/internal/etl"
	"github.com/yungbote/marketlake/internal/jobs/pipeline/bronze_categories"
	"github.com/yungbote/marketlake/internal/jobs/pipeline/bronze_products"
	"github.com/yungbote/marketlake/internal/jobs/pipeline/gold_rollup"
	"github.com/yungbote/marketlake/internal/jobs/pipeline/raw_download_categories"
	"github.com/yungbote/marketlake/internal/jobs/pipeline/raw_download_product_category"
	"github.com/yungbote/marketlake/internal/jobs/pipeline/silver_products"
	jobrt "github.com/yungbote/marketlake/internal/jobs/runtime"
	"github.com/yungbote/marketlake/internal/platform/logger"
)

// RegisterJobs adds every job of the graph to reg.
func RegisterJobs(reg *jobrt.Registry, log *logger.Logger, t *etl.Transformer, cfg Config) error {
	if log == nil {
		log = logger.Nop()
	}
	handlers := []jobrt.Handler{
		raw_download_categories.New(log, t),
		bronze_categories.New(log, t),
		raw_download_product_category.New(log, t, cfg.MaxProducts),
		bronze_products.New(log, t),
		silver_products.New(log, t),
	}
	for _, job := range []string{pipeline.JobGoldCategories, pipeline.JobGoldLocations, pipeline.JobGoldProducts} {
		g, err := gold_rollup.New(log, t, job, cfg.GoldWindowDays)
		if err != nil {
			return err
		}
		handlers = append(handlers, g)
	}
	for _, h := range handlers {
		if err := reg.Register(h); err != nil {
			return err
		}
	}
	return nil
}
