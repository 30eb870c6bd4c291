package etl

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/marketlake/internal/clients/marketplace"
	"github.com/yungbote/marketlake/internal/domain/catalog"
	"github.com/yungbote/marketlake/internal/domain/listings"
	"github.com/yungbote/marketlake/internal/domain/pipeline"
	"github.com/yungbote/marketlake/internal/objectstore"
)

// DownloadCategories stores the current category tree, stamped with day,
// at raw/categories/<day>.json.
func (t *Transformer) DownloadCategories(ctx context.Context, day time.Time) (string, int, error) {
	if t.market == nil {
		return "", 0, fmt.Errorf("download categories: marketplace client not configured")
	}
	nodes, err := t.market.Categories(ctx)
	if err != nil {
		return "", 0, fmt.Errorf("download categories: %w", err)
	}
	d := pipeline.FormatDay(day)
	body, err := json.Marshal(catalog.CategoryTree{Date: d, Categories: nodes})
	if err != nil {
		return "", 0, err
	}
	key := objectstore.RawCategoriesKey(d)
	if err := t.objects.Put(ctx, key, body, objectstore.ContentTypeJSON); err != nil {
		return "", 0, fmt.Errorf("download categories: %w", err)
	}
	t.log.Info("raw categories stored", "key", key, "top_level", len(nodes))
	return key, len(nodes), nil
}

// DownloadCategoryProducts pages through one category's search results,
// tags every object with the category id and stores the union at
// raw/products_category/<day>/<category_id>.json. Pages are fetched
// concurrently; empty pages are dropped.
func (t *Transformer) DownloadCategoryProducts(ctx context.Context, day time.Time, ref pipeline.CategoryRef, maxProducts int) (string, int, error) {
	if t.market == nil {
		return "", 0, fmt.Errorf("download products: marketplace client not configured")
	}
	if maxProducts <= 0 {
		maxProducts = DefaultMaxProducts
	}
	starts := make([]int, 0, maxProducts/marketplace.PageSize+1)
	for s := 0; s < maxProducts; s += marketplace.PageSize {
		starts = append(starts, s)
	}

	pages := make([][]json.RawMessage, len(starts))
	g, gctx := errgroup.WithContext(ctx)
	for i, start := range starts {
		i, start := i, start
		g.Go(func() error {
			objs, err := t.market.SearchPage(gctx, ref.CategoryPathRoot, ref.CategorySearchPath, start)
			if err != nil {
				return err
			}
			pages[i] = objs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", 0, fmt.Errorf("download products category=%d: %w", ref.CategoryID, err)
	}

	d := pipeline.FormatDay(day)
	out := listings.RawListing{Date: d, CategoryID: ref.CategoryID, SearchObjects: []json.RawMessage{}}
	for _, page := range pages {
		for _, obj := range page {
			tagged, err := tagCategory(obj, ref.CategoryID)
			if err != nil {
				return "", 0, fmt.Errorf("download products category=%d: %w", ref.CategoryID, err)
			}
			out.SearchObjects = append(out.SearchObjects, tagged)
		}
	}
	body, err := json.Marshal(out)
	if err != nil {
		return "", 0, err
	}
	key := objectstore.RawProductsKey(d, ref.CategoryID)
	if err := t.objects.Put(ctx, key, body, objectstore.ContentTypeJSON); err != nil {
		return "", 0, fmt.Errorf("download products category=%d: %w", ref.CategoryID, err)
	}
	t.log.Info("raw products stored", "key", key, "category_id", ref.CategoryID, "objects", len(out.SearchObjects))
	return key, len(out.SearchObjects), nil
}

// tagCategory sets category_id on a search object, overwriting any value
// the provider sent at the top level.
func tagCategory(obj json.RawMessage, categoryID int64) (json.RawMessage, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(obj, &m); err != nil {
		return nil, fmt.Errorf("search object: %w", err)
	}
	if m == nil {
		m = map[string]json.RawMessage{}
	}
	id, _ := json.Marshal(categoryID)
	m["category_id"] = id
	return json.Marshal(m)
}
