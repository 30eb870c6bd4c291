package etl

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/marketlake/internal/catalog"
	"github.com/yungbote/marketlake/internal/dataset"
	domain "github.com/yungbote/marketlake/internal/domain/catalog"
	"github.com/yungbote/marketlake/internal/domain/listings"
	"github.com/yungbote/marketlake/internal/domain/pipeline"
	"github.com/yungbote/marketlake/internal/objectstore"
)

// BronzeCategories flattens every stored category snapshot, unions and
// deduplicates the leaves and replaces bronze/categories with the result.
func (t *Transformer) BronzeCategories(ctx context.Context) ([]domain.FlatCategory, error) {
	keys, err := t.objects.List(ctx, objectstore.RawCategoriesPrefix())
	if err != nil {
		return nil, fmt.Errorf("bronze categories: list: %w", err)
	}
	files := keys[:0:0]
	for _, k := range keys {
		if strings.HasSuffix(k, ".json") {
			files = append(files, k)
		}
	}

	perFile := make([][]domain.FlatCategory, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(categoryReadWorkers)
	for i := range files {
		i := i
		g.Go(func() error {
			body, err := t.objects.Get(gctx, files[i])
			if err != nil {
				return err
			}
			var tree domain.CategoryTree
			if err := json.Unmarshal(body, &tree); err != nil {
				return fmt.Errorf("%s: %w", files[i], err)
			}
			perFile[i] = catalog.Flatten(tree.Categories)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("bronze categories: %w", err)
	}

	var all []domain.FlatCategory
	for _, rows := range perFile {
		all = append(all, rows...)
	}
	all = catalog.Deduplicate(all)
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].CategoryID != all[j].CategoryID {
			return all[i].CategoryID < all[j].CategoryID
		}
		return all[i].Key() < all[j].Key()
	})

	if _, err := t.datasets.Write(ctx, DatasetBronzeCategories, CategoriesTable(all), nil, dataset.OverwriteAll); err != nil {
		return nil, fmt.Errorf("bronze categories: %w", err)
	}
	t.log.Info("bronze categories written", "snapshots", len(files), "categories", len(all))
	return all, nil
}

func CategoriesTable(rows []domain.FlatCategory) dataset.Table {
	out := dataset.Table{Schema: CategorySchema, Rows: make([]dataset.Row, 0, len(rows))}
	for _, c := range rows {
		r := dataset.Row{
			"category_id":              c.CategoryID,
			"category_name":            c.CategoryName,
			"category_path_root":       c.CategoryPathRoot,
			"category_search_path":     c.CategorySearchPath,
			"parent_id":                c.ParentID,
			"category_hierarchy":       c.HierarchyString(),
			"category_hierarchy_depth": int64(c.Depth),
		}
		for i, lvl := range c.Levels {
			r[levelColumn(i)] = lvl
		}
		out.Rows = append(out.Rows, r)
	}
	return out
}

// CategoryRefs reads back what the per-category download needs, one entry
// per distinct category id.
func (t *Transformer) CategoryRefs(ctx context.Context) ([]pipeline.CategoryRef, error) {
	tbl, err := t.datasets.Read(ctx, DatasetBronzeCategories, []string{"category_id", "category_path_root", "category_search_path"}, nil)
	if err != nil {
		return nil, err
	}
	seen := map[int64]bool{}
	out := make([]pipeline.CategoryRef, 0, tbl.Len())
	for _, r := range tbl.Rows {
		id, ok := r.Int("category_id")
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		root, _ := r.String("category_path_root")
		search, _ := r.String("category_search_path")
		out = append(out, pipeline.CategoryRef{CategoryID: id, CategoryPathRoot: root, CategorySearchPath: search})
	}
	return out, nil
}

// BronzeProducts normalizes every raw search object stored for day and
// replaces the day's bronze/products partition.
func (t *Transformer) BronzeProducts(ctx context.Context, day time.Time) (int, error) {
	d := pipeline.FormatDay(day)
	keys, err := t.objects.List(ctx, objectstore.RawProductsPrefix(d))
	if err != nil {
		return 0, fmt.Errorf("bronze products: list: %w", err)
	}

	blobs := make([][]listings.BronzeProduct, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i := range keys {
		i := i
		if !strings.HasSuffix(keys[i], ".json") {
			continue
		}
		g.Go(func() error {
			body, err := t.objects.Get(gctx, keys[i])
			if err != nil {
				return err
			}
			rows, skipped, err := BronzeFromRaw(d, body)
			if err != nil {
				return fmt.Errorf("%s: %w", keys[i], err)
			}
			if skipped > 0 {
				t.log.Warn("search objects skipped", "key", keys[i], "skipped", skipped)
			}
			blobs[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("bronze products: %w", err)
	}

	seen := map[string]bool{}
	tbl := dataset.Table{Schema: BronzeProductSchema}
	for _, rows := range blobs {
		for _, p := range rows {
			if seen[p.ProductID] {
				continue
			}
			seen[p.ProductID] = true
			tbl.Rows = append(tbl.Rows, bronzeRow(p))
		}
	}
	if tbl.Len() == 0 {
		t.log.Warn("no raw products for day", "date", d, "blobs", len(keys))
		return 0, nil
	}
	if _, err := t.datasets.Write(ctx, DatasetBronzeProducts, tbl, []string{"date"}, dataset.OverwriteMatchingPartitions); err != nil {
		return 0, fmt.Errorf("bronze products: %w", err)
	}
	t.log.Info("bronze products written", "date", d, "blobs", len(keys), "products", tbl.Len())
	return tbl.Len(), nil
}

// BronzeFromRaw decodes one raw listing blob. Objects without an id cannot
// become rows and are counted as skipped.
func BronzeFromRaw(day string, body []byte) ([]listings.BronzeProduct, int, error) {
	var raw listings.RawListing
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, 0, err
	}
	out := make([]listings.BronzeProduct, 0, len(raw.SearchObjects))
	skipped := 0
	for _, obj := range raw.SearchObjects {
		p, err := listings.DecodePayload(obj)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, ResolveProduct(day, p))
	}
	return out, skipped, nil
}

func bronzeRow(p listings.BronzeProduct) dataset.Row {
	return dataset.Row{
		"date":         p.Date,
		"product_id":   p.ProductID,
		"category_id":  p.CategoryID,
		"user_id":      p.UserID,
		"created_at":   p.CreatedAt,
		"price":        p.Price,
		"currency":     p.Currency,
		"title":        p.Title,
		"description":  p.Description,
		"web_slug":     p.WebSlug,
		"country_code": p.CountryCode,
		"city":         p.City,
		"postal_code":  p.PostalCode,
	}
}
