package dataset

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/yungbote/marketlake/internal/objectstore"
)

// ExportCSV replaces key with t rendered as comma-separated text, header
// first, columns in schema order. Nulls render as empty fields.
func (s *Store) ExportCSV(ctx context.Context, key string, t Table) error {
	body, err := EncodeCSV(t)
	if err != nil {
		return fmt.Errorf("export %s: %w", key, err)
	}
	if err := s.objects.Put(ctx, key, body, objectstore.ContentTypeCSV); err != nil {
		return fmt.Errorf("export %s: %w", key, err)
	}
	s.log.Debug("csv exported", "key", key, "rows", len(t.Rows))
	return nil
}

func EncodeCSV(t Table) ([]byte, error) {
	norm, err := t.normalize()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(t.Schema.Names()); err != nil {
		return nil, err
	}
	rec := make([]string, len(t.Schema))
	for _, r := range norm.Rows {
		for i, c := range t.Schema {
			rec[i] = formatCell(r[c.Name])
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
