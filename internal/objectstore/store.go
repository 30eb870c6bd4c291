package objectstore

import (
	"context"
	"errors"
	"path"
	"strconv"
	"strings"
)

var ErrNotFound = errors.New("object not found")

const (
	ContentTypeJSON  = "application/json"
	ContentTypeJSONL = "application/x-ndjson"
	ContentTypeCSV   = "text/csv"
)

// Store is a single-bucket blob store.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	// List returns every key under prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
}

func RawCategoriesPrefix() string { return "raw/categories/" }

func RawCategoriesKey(day string) string {
	return RawCategoriesPrefix() + day + ".json"
}

func RawProductsPrefix(day string) string {
	return "raw/products_category/" + day + "/"
}

func RawProductsKey(day string, categoryID int64) string {
	return RawProductsPrefix(day) + strconv.FormatInt(categoryID, 10) + ".json"
}

// CleanKey normalizes a key: no leading slash, no "." or ".." segments.
func CleanKey(key string) string {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	if key == "" {
		return ""
	}
	trailing := strings.HasSuffix(key, "/")
	key = strings.TrimPrefix(path.Clean("/"+key), "/")
	if trailing && key != "" {
		key += "/"
	}
	return key
}

// DeletePrefix removes every object under prefix.
func DeletePrefix(ctx context.Context, s Store, prefix string) error {
	keys, err := s.List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Delete(ctx, k); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	return nil
}
