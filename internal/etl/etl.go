// Package etl holds the raw, bronze, silver and gold layer transforms. Each
// layer reads through the object store or the dataset store and writes its
// output back through the dataset store.
package etl

import (
	"time"

	"github.com/yungbote/marketlake/internal/clients/marketplace"
	"github.com/yungbote/marketlake/internal/dataset"
	"github.com/yungbote/marketlake/internal/objectstore"
	"github.com/yungbote/marketlake/internal/platform/logger"
)

// Dataset and object locations.
const (
	DatasetBronzeCategories = "bronze/categories"
	DatasetBronzeProducts   = "bronze/products"
	DatasetSilverProducts   = "silver/products"

	GoldCategoriesKey = "gold/categories.csv"
	GoldLocationsKey  = "gold/locations.csv"
	GoldProductsKey   = "gold/products.csv"
)

const (
	// DefaultGoldWindow is how many partition dates a gold rollup covers.
	DefaultGoldWindow = 30
	// DefaultMaxProducts caps a per-category search download.
	DefaultMaxProducts = 400

	categoryReadWorkers = 5
)

type Transformer struct {
	objects  objectstore.Store
	datasets *dataset.Store
	market   marketplace.Client
	log      *logger.Logger
	now      func() time.Time
}

// New wires the layer transforms. market may be nil for processes that only
// run the bronze and later layers.
func New(objects objectstore.Store, datasets *dataset.Store, market marketplace.Client, log *logger.Logger) *Transformer {
	if log == nil {
		log = logger.Nop()
	}
	return &Transformer{
		objects:  objects,
		datasets: datasets,
		market:   market,
		log:      log.With("service", "LakeTransformer"),
		now:      time.Now,
	}
}
