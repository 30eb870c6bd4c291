package etl

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/marketlake/internal/dataset"
	"github.com/yungbote/marketlake/internal/domain/pipeline"
)

// SilverProducts left-joins the day's bronze products against the category
// table and replaces the day's silver/products partition.
func (t *Transformer) SilverProducts(ctx context.Context, day time.Time) (int, error) {
	d := pipeline.FormatDay(day)
	bronze, err := t.datasets.Read(ctx, DatasetBronzeProducts, nil, dataset.Equals("date", d))
	if err != nil {
		return 0, fmt.Errorf("silver products: %w", err)
	}
	categories, err := t.datasets.Read(ctx, DatasetBronzeCategories, []string{"category_id", "category_name", "category_hierarchy"}, nil)
	if err != nil {
		return 0, fmt.Errorf("silver products: %w", err)
	}
	silver := JoinSilver(day, bronze, categories)
	if silver.Len() == 0 {
		t.log.Warn("no bronze products for day", "date", d)
		return 0, nil
	}
	if _, err := t.datasets.Write(ctx, DatasetSilverProducts, silver, []string{"date"}, dataset.OverwriteMatchingPartitions); err != nil {
		return 0, fmt.Errorf("silver products: %w", err)
	}
	t.log.Info("silver products written", "date", d, "products", silver.Len())
	return silver.Len(), nil
}

// JoinSilver emits exactly one silver row per bronze row. A bronze row whose
// category is unknown keeps null category fields. When the category table
// carries an id more than once the first row wins.
func JoinSilver(day time.Time, bronze, categories dataset.Table) dataset.Table {
	type category struct{ name, hierarchy any }
	byID := make(map[int64]category, categories.Len())
	for _, r := range categories.Rows {
		id, ok := r.Int("category_id")
		if !ok {
			continue
		}
		if _, dup := byID[id]; dup {
			continue
		}
		byID[id] = category{name: r["category_name"], hierarchy: r["category_hierarchy"]}
	}

	out := dataset.Table{Schema: SilverProductSchema, Rows: make([]dataset.Row, 0, bronze.Len())}
	for _, b := range bronze.Rows {
		r := dataset.Row{}
		for _, c := range SilverProductSchema {
			if v, ok := b[c.Name]; ok {
				r[c.Name] = v
			}
		}
		r["category_name"], r["category_hierarchy"] = nil, nil
		if id, ok := b.Int("category_id"); ok {
			if c, found := byID[id]; found {
				r["category_name"], r["category_hierarchy"] = c.name, c.hierarchy
			}
		}
		r["days_since_creation"] = nil
		if created, ok := b.String("created_at"); ok {
			if n, ok := DaysSinceCreation(day, created); ok {
				r["days_since_creation"] = n
			}
		}
		out.Rows = append(out.Rows, r)
	}
	return out
}

// DaysSinceCreation counts calendar days from the date part of createdAt to
// day. Time of day and any offset in createdAt are ignored. Epoch values in
// seconds or milliseconds are read as UTC.
func DaysSinceCreation(day time.Time, createdAt string) (int64, bool) {
	created, ok := creationDate(createdAt)
	if !ok {
		return 0, false
	}
	d := pipeline.Truncate(day)
	return int64(d.Sub(created).Hours() / 24), true
}

func creationDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n > 1e11 {
			return pipeline.Truncate(time.UnixMilli(n).UTC()), true
		}
		return pipeline.Truncate(time.Unix(n, 0).UTC()), true
	}
	datePart := raw
	if i := strings.IndexAny(datePart, "T "); i >= 0 {
		datePart = datePart[:i]
	}
	t, err := time.Parse(pipeline.DayLayout, datePart)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
