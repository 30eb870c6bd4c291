package dataset

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yungbote/marketlake/internal/domain/pipeline"
)

type ColumnType string

const (
	TypeString    ColumnType = "string"
	TypeInt       ColumnType = "int64"
	TypeFloat     ColumnType = "float64"
	TypeBool      ColumnType = "bool"
	TypeDate      ColumnType = "date"
	TypeTimestamp ColumnType = "timestamp"
)

type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

type Schema []Column

func (s Schema) Names() []string {
	out := make([]string, 0, len(s))
	for _, c := range s {
		out = append(out, c.Name)
	}
	return out
}

func (s Schema) Lookup(name string) (Column, bool) {
	for _, c := range s {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Project returns the sub-schema for names, in the order given.
func (s Schema) Project(names []string) (Schema, error) {
	if names == nil {
		return append(Schema(nil), s...), nil
	}
	out := make(Schema, 0, len(names))
	for _, n := range names {
		c, ok := s.Lookup(n)
		if !ok {
			return nil, fmt.Errorf("unknown column %q", n)
		}
		out = append(out, c)
	}
	return out, nil
}

// signature is order-insensitive: two schemas with the same columns and
// types in a different order are the same schema.
func (s Schema) signature() string {
	parts := make([]string, 0, len(s))
	for _, c := range s {
		parts = append(parts, c.Name+":"+string(c.Type))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

func (s Schema) validate() error {
	seen := map[string]bool{}
	for _, c := range s {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("schema: empty column name")
		}
		if seen[c.Name] {
			return fmt.Errorf("schema: duplicate column %q", c.Name)
		}
		seen[c.Name] = true
		switch c.Type {
		case TypeString, TypeInt, TypeFloat, TypeBool, TypeDate, TypeTimestamp:
		default:
			return fmt.Errorf("schema: column %q has unknown type %q", c.Name, c.Type)
		}
	}
	return nil
}

// Row maps column name to value. Missing keys and nil values are nulls.
type Row map[string]any

func (r Row) String(col string) (string, bool) {
	v, ok := r[col].(string)
	return v, ok
}

func (r Row) Int(col string) (int64, bool) {
	v, ok := r[col].(int64)
	return v, ok
}

func (r Row) Float(col string) (float64, bool) {
	v, ok := r[col].(float64)
	return v, ok
}

type Table struct {
	Schema Schema
	Rows   []Row
}

func (t Table) Len() int { return len(t.Rows) }

// normalize coerces every row to the schema and rejects unknown columns.
func (t Table) normalize() (Table, error) {
	out := Table{Schema: t.Schema, Rows: make([]Row, 0, len(t.Rows))}
	for i, r := range t.Rows {
		nr := make(Row, len(t.Schema))
		for k := range r {
			if _, ok := t.Schema.Lookup(k); !ok {
				return Table{}, fmt.Errorf("row %d: column %q not in schema", i, k)
			}
		}
		for _, c := range t.Schema {
			v, err := Coerce(r[c.Name], c.Type)
			if err != nil {
				return Table{}, fmt.Errorf("row %d column %q: %w", i, c.Name, err)
			}
			nr[c.Name] = v
		}
		out.Rows = append(out.Rows, nr)
	}
	return out, nil
}

// Coerce converts v to the canonical Go type for typ: string, int64,
// float64, bool, or a string for date and timestamp columns.
func Coerce(v any, typ ColumnType) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch typ {
	case TypeString:
		switch t := v.(type) {
		case string:
			return t, nil
		case *string:
			if t == nil {
				return nil, nil
			}
			return *t, nil
		case json.Number:
			return t.String(), nil
		}
	case TypeInt:
		switch t := v.(type) {
		case int:
			return int64(t), nil
		case int32:
			return int64(t), nil
		case int64:
			return t, nil
		case *int64:
			if t == nil {
				return nil, nil
			}
			return *t, nil
		case float64:
			if t != math.Trunc(t) {
				return nil, fmt.Errorf("non-integral value %v", t)
			}
			return int64(t), nil
		case json.Number:
			return t.Int64()
		case string:
			return strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		}
	case TypeFloat:
		switch t := v.(type) {
		case float64:
			return t, nil
		case float32:
			return float64(t), nil
		case int:
			return float64(t), nil
		case int64:
			return float64(t), nil
		case decimal.Decimal:
			return t.InexactFloat64(), nil
		case *decimal.Decimal:
			if t == nil {
				return nil, nil
			}
			return t.InexactFloat64(), nil
		case json.Number:
			return t.Float64()
		case string:
			return strconv.ParseFloat(strings.TrimSpace(t), 64)
		}
	case TypeBool:
		switch t := v.(type) {
		case bool:
			return t, nil
		case string:
			return strconv.ParseBool(t)
		}
	case TypeDate:
		switch t := v.(type) {
		case time.Time:
			return pipeline.FormatDay(t), nil
		case string:
			if _, err := time.Parse(pipeline.DayLayout, t); err != nil {
				return nil, fmt.Errorf("invalid date %q", t)
			}
			return t, nil
		}
	case TypeTimestamp:
		switch t := v.(type) {
		case time.Time:
			return t.Format(time.RFC3339Nano), nil
		case string:
			return t, nil
		case *string:
			if t == nil {
				return nil, nil
			}
			return *t, nil
		}
	default:
		return nil, fmt.Errorf("unknown column type %q", typ)
	}
	return nil, fmt.Errorf("cannot store %T as %s", v, typ)
}
