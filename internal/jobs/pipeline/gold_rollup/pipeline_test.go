package gold_rollup

import (
	"context"
	"testing"

	"github.com/yungbote/marketlake/internal/dataset"
	"github.com/yungbote/marketlake/internal/domain/pipeline"
	"github.com/yungbote/marketlake/internal/etl"
	jobrt "github.com/yungbote/marketlake/internal/jobs/runtime"
	"github.com/yungbote/marketlake/internal/objectstore"
	"github.com/yungbote/marketlake/internal/platform/logger"
)

func TestNewRejectsUnknownRollup(t *testing.T) {
	if _, err := New(logger.Nop(), nil, pipeline.JobSilverProducts, 30); err == nil {
		t.Fatalf("New: expected error for a non-gold job")
	}
}

func TestRunWritesRollup(t *testing.T) {
	mem := objectstore.NewMemory()
	tr := etl.New(mem, dataset.NewStore(mem, nil), nil, nil)
	silver := dataset.Table{Schema: etl.SilverProductSchema, Rows: []dataset.Row{{
		"date": "2024-07-05", "product_id": "p1", "category_id": int64(3),
		"category_name": "Books", "category_hierarchy": "Books",
		"title": "novel", "price": 5.0, "city": "Madrid", "country_code": "ES",
		"days_since_creation": int64(1),
	}}}
	ds := dataset.NewStore(mem, nil)
	if _, err := ds.Write(context.Background(), etl.DatasetSilverProducts, silver, []string{"date"}, dataset.OverwriteMatchingPartitions); err != nil {
		t.Fatalf("Write: %v", err)
	}

	p, err := New(logger.Nop(), tr, pipeline.JobGoldLocations, 30)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	reg := jobrt.NewRegistry(nil)
	if err := reg.Register(p); err != nil {
		t.Fatalf("Register: %v", err)
	}
	out, err := reg.Execute(context.Background(), pipeline.JobGoldLocations, pipeline.JobInput{Day: "2024-07-05"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.Rows != 2 || len(out.Keys) != 1 || out.Keys[0] != etl.GoldLocationsKey {
		t.Fatalf("output: want 2 rows at %s got=%+v", etl.GoldLocationsKey, out)
	}
}
