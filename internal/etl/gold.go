package etl

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yungbote/marketlake/internal/dataset"
	"github.com/yungbote/marketlake/internal/domain/catalog"
	"github.com/yungbote/marketlake/internal/domain/pipeline"
)

// TotalDimension marks the per-date grand-total row of a rollup.
const TotalDimension = "--"

const unknownValue = "unknown"

// Rollup describes one gold aggregation: how a silver row maps to its
// dimension value and to that value's parent metadata.
type Rollup struct {
	Job             string
	Key             string
	DimensionColumn string
	ParentColumn    string
	Dimension       func(r dataset.Row) string
	// Parent returns nil when the row carries no parent metadata.
	Parent func(r dataset.Row) *string
}

var goldReadColumns = []string{
	"date", "product_id", "category_id", "category_name", "category_hierarchy",
	"title", "price", "city", "country_code", "days_since_creation",
}

var CategoryRollup = Rollup{
	Job:             pipeline.JobGoldCategories,
	Key:             GoldCategoriesKey,
	DimensionColumn: "category_display_name",
	ParentColumn:    "category_parent_display_name",
	Dimension:       categoryDisplayName,
	Parent: func(r dataset.Row) *string {
		h, ok := r.String("category_hierarchy")
		if !ok || h == "" {
			return nil
		}
		first := strings.SplitN(h, catalog.HierarchySeparator, 2)[0]
		return &first
	},
}

var LocationRollup = Rollup{
	Job:             pipeline.JobGoldLocations,
	Key:             GoldLocationsKey,
	DimensionColumn: "city",
	ParentColumn:    "country_code",
	Dimension: func(r dataset.Row) string {
		if c, ok := r.String("city"); ok && c != "" {
			return c
		}
		return unknownValue
	},
	Parent: func(r dataset.Row) *string {
		if c, ok := r.String("country_code"); ok && c != "" {
			return &c
		}
		return nil
	},
}

var ProductRollup = Rollup{
	Job:             pipeline.JobGoldProducts,
	Key:             GoldProductsKey,
	DimensionColumn: "product_display_name",
	ParentColumn:    "category_display_name",
	Dimension: func(r dataset.Row) string {
		id, _ := r.String("product_id")
		title, ok := r.String("title")
		if !ok {
			title = unknownValue
		}
		return fmt.Sprintf("%s (%s)", title, id)
	},
	Parent: func(r dataset.Row) *string {
		d := categoryDisplayName(r)
		return &d
	},
}

// Rollups lists every gold output in a fixed order.
var Rollups = []Rollup{CategoryRollup, LocationRollup, ProductRollup}

func RollupFor(job string) (Rollup, bool) {
	for _, r := range Rollups {
		if r.Job == job {
			return r, true
		}
	}
	return Rollup{}, false
}

// categoryDisplayName renders "<name> (<hierarchy> - <id>)".
func categoryDisplayName(r dataset.Row) string {
	name, ok := r.String("category_name")
	if !ok {
		name = unknownValue
	}
	hierarchy, ok := r.String("category_hierarchy")
	if !ok {
		hierarchy = unknownValue
	}
	id := unknownValue
	if v, ok := r.Int("category_id"); ok {
		id = strconv.FormatInt(v, 10)
	}
	return fmt.Sprintf("%s (%s - %s)", name, hierarchy, id)
}

func (r Rollup) Schema() dataset.Schema {
	return dataset.Schema{
		{Name: "date", Type: dataset.TypeDate},
		{Name: r.DimensionColumn, Type: dataset.TypeString},
		{Name: r.ParentColumn, Type: dataset.TypeString},
		{Name: "price_mean", Type: dataset.TypeFloat},
		{Name: "price_max", Type: dataset.TypeFloat},
		{Name: "price_min", Type: dataset.TypeFloat},
		{Name: "product_count", Type: dataset.TypeInt},
		{Name: "days_since_creation_mean", Type: dataset.TypeFloat},
	}
}

// Gold recomputes one rollup over the window of dates ending at day and
// replaces its CSV output.
func (t *Transformer) Gold(ctx context.Context, day time.Time, r Rollup, window int) (int, error) {
	if window <= 0 {
		window = DefaultGoldWindow
	}
	dates := pipeline.Window(day, window)
	silver, err := t.datasets.Read(ctx, DatasetSilverProducts, goldReadColumns, dataset.In("date", dates...))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", r.Job, err)
	}
	out := Aggregate(r, silver)
	if err := t.datasets.ExportCSV(ctx, r.Key, out); err != nil {
		return 0, fmt.Errorf("%s: %w", r.Job, err)
	}
	t.log.Info("gold rollup written", "job", r.Job, "key", r.Key, "window_days", window, "input_rows", silver.Len(), "rows", out.Len())
	return out.Len(), nil
}

type accumulator struct {
	count    int64
	priceSum decimal.Decimal
	priceN   int64
	priceMax decimal.Decimal
	priceMin decimal.Decimal
	daysSum  int64
	daysN    int64
}

func (a *accumulator) add(r dataset.Row) {
	a.count++
	if p, ok := r.Float("price"); ok {
		d := decimal.NewFromFloat(p)
		if a.priceN == 0 || d.GreaterThan(a.priceMax) {
			a.priceMax = d
		}
		if a.priceN == 0 || d.LessThan(a.priceMin) {
			a.priceMin = d
		}
		a.priceSum = a.priceSum.Add(d)
		a.priceN++
	}
	if n, ok := r.Int("days_since_creation"); ok {
		a.daysSum += n
		a.daysN++
	}
}

func (a *accumulator) row(r Rollup, date, dimension string, parent *string) dataset.Row {
	out := dataset.Row{
		"date":                     date,
		r.DimensionColumn:          dimension,
		r.ParentColumn:             parent,
		"price_mean":               nil,
		"price_max":                nil,
		"price_min":                nil,
		"product_count":            a.count,
		"days_since_creation_mean": nil,
	}
	if a.priceN > 0 {
		out["price_mean"] = a.priceSum.Div(decimal.NewFromInt(a.priceN)).InexactFloat64()
		out["price_max"] = a.priceMax.InexactFloat64()
		out["price_min"] = a.priceMin.InexactFloat64()
	}
	if a.daysN > 0 {
		out["days_since_creation_mean"] = float64(a.daysSum) / float64(a.daysN)
	}
	return out
}

// Aggregate groups silver rows by (date, dimension) and adds one grand-total
// row per date under TotalDimension. Each dimension row carries its parent
// metadata; when rows of one dimension disagree the smallest value wins.
// Totals have no parent. Output is ordered by date, total first.
func Aggregate(r Rollup, silver dataset.Table) dataset.Table {
	groups := map[string]map[string]*accumulator{}
	totals := map[string]*accumulator{}
	parents := map[string]map[string]*string{}

	for _, row := range silver.Rows {
		date, ok := row.String("date")
		if !ok {
			continue
		}
		dim := r.Dimension(row)
		if dim == TotalDimension {
			// A literal "--" value would collide with the grand-total row.
			dim = unknownValue
		}
		if groups[date] == nil {
			groups[date] = map[string]*accumulator{}
			parents[date] = map[string]*string{}
			totals[date] = &accumulator{}
		}
		acc := groups[date][dim]
		if acc == nil {
			acc = &accumulator{}
			groups[date][dim] = acc
		}
		acc.add(row)
		totals[date].add(row)

		if p := r.Parent(row); p != nil {
			if cur := parents[date][dim]; cur == nil || *p < *cur {
				parents[date][dim] = p
			}
		}
	}

	dates := make([]string, 0, len(groups))
	for d := range groups {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	out := dataset.Table{Schema: r.Schema()}
	for _, d := range dates {
		out.Rows = append(out.Rows, totals[d].row(r, d, TotalDimension, nil))
		dims := make([]string, 0, len(groups[d]))
		for dim := range groups[d] {
			dims = append(dims, dim)
		}
		sort.Strings(dims)
		for _, dim := range dims {
			out.Rows = append(out.Rows, groups[d][dim].row(r, d, dim, parents[d][dim]))
		}
	}
	return out
}
