package dataset

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/marketlake/internal/domain/pipeline"
	"github.com/yungbote/marketlake/internal/objectstore"
	"github.com/yungbote/marketlake/internal/platform/logger"
)

type Mode string

const (
	OverwriteAll                Mode = "overwrite_all"
	OverwriteMatchingPartitions Mode = "overwrite_matching_partitions"
)

const (
	manifestName = "_schema.json"
	partFileName = "part-00000.jsonl"
	readParallel = 8
)

// Predicate sees partition values only; it never sees row data.
type Predicate func(partition map[string]string) bool

func Equals(key, value string) Predicate {
	return func(p map[string]string) bool { return p[key] == value }
}

func In(key string, values ...string) Predicate {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return func(p map[string]string) bool { return set[p[key]] }
}

type manifest struct {
	Columns       Schema   `json:"columns"`
	PartitionKeys []string `json:"partition_keys"`
}

func (m manifest) signature() string {
	return m.Columns.signature() + "|" + strings.Join(m.PartitionKeys, ",")
}

// WriteResult reports what a Write replaced.
type WriteResult struct {
	Rows       int
	Partitions []string
}

// Store lays datasets out over an object store, hive style:
//
//	<name>/_schema.json
//	<name>/<key>=<value>/part-00000.jsonl
//
// Partition columns live in the path, not in the part files.
type Store struct {
	objects objectstore.Store
	log     *logger.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewStore(objects objectstore.Store, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{
		objects: objects,
		log:     log.With("service", "DatasetStore"),
		locks:   map[string]*sync.Mutex{},
	}
}

func (s *Store) lock(name string) func() {
	s.mu.Lock()
	l := s.locks[name]
	if l == nil {
		l = &sync.Mutex{}
		s.locks[name] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func datasetPrefix(name string) string {
	return strings.TrimSuffix(objectstore.CleanKey(name), "/") + "/"
}

func (s *Store) Write(ctx context.Context, name string, t Table, partitionKeys []string, mode Mode) (WriteResult, error) {
	name = strings.TrimSuffix(objectstore.CleanKey(name), "/")
	if name == "" {
		return WriteResult{}, fmt.Errorf("write: empty dataset name")
	}
	if err := t.Schema.validate(); err != nil {
		return WriteResult{}, fmt.Errorf("write %s: %w", name, err)
	}
	for _, k := range partitionKeys {
		if _, ok := t.Schema.Lookup(k); !ok {
			return WriteResult{}, fmt.Errorf("write %s: partition key %q not in schema", name, k)
		}
	}
	norm, err := t.normalize()
	if err != nil {
		return WriteResult{}, fmt.Errorf("write %s: %w", name, err)
	}

	unlock := s.lock(name)
	defer unlock()

	incoming := manifest{Columns: t.Schema, PartitionKeys: append([]string{}, partitionKeys...)}
	prefix := datasetPrefix(name)

	switch mode {
	case OverwriteAll:
		if err := objectstore.DeletePrefix(ctx, s.objects, prefix); err != nil {
			return WriteResult{}, fmt.Errorf("write %s: clear: %w", name, err)
		}
	case OverwriteMatchingPartitions:
		existing, found, err := s.loadManifest(ctx, name)
		if err != nil {
			return WriteResult{}, fmt.Errorf("write %s: %w", name, err)
		}
		if found && existing.signature() != incoming.signature() {
			return WriteResult{}, &pipeline.SchemaMismatchError{
				Dataset:  name,
				Existing: existing.signature(),
				Incoming: incoming.signature(),
			}
		}
	default:
		return WriteResult{}, fmt.Errorf("write %s: unknown mode %q", name, mode)
	}

	if err := s.putManifest(ctx, name, incoming); err != nil {
		return WriteResult{}, fmt.Errorf("write %s: %w", name, err)
	}

	groups, order, err := groupByPartition(norm, partitionKeys)
	if err != nil {
		return WriteResult{}, fmt.Errorf("write %s: %w", name, err)
	}
	res := WriteResult{Rows: len(norm.Rows)}
	for _, p := range order {
		partPrefix := prefix + p
		if mode == OverwriteMatchingPartitions {
			if p == "" {
				if err := s.objects.Delete(ctx, prefix+partFileName); err != nil && !errors.Is(err, objectstore.ErrNotFound) {
					return WriteResult{}, fmt.Errorf("write %s: replace: %w", name, err)
				}
			} else if err := objectstore.DeletePrefix(ctx, s.objects, partPrefix); err != nil {
				return WriteResult{}, fmt.Errorf("write %s: replace %s: %w", name, p, err)
			}
		}
		body, err := encodeRows(groups[p], t.Schema, partitionKeys)
		if err != nil {
			return WriteResult{}, fmt.Errorf("write %s: %w", name, err)
		}
		if err := s.objects.Put(ctx, partPrefix+partFileName, body, objectstore.ContentTypeJSONL); err != nil {
			return WriteResult{}, fmt.Errorf("write %s: %w", name, err)
		}
		res.Partitions = append(res.Partitions, strings.TrimSuffix(p, "/"))
	}

	s.log.Debug("dataset written", "dataset", name, "mode", mode, "rows", res.Rows, "partitions", len(res.Partitions))
	return res, nil
}

// Read returns the rows of every partition accepted by pred (nil accepts
// all), projected to columns (nil means every column). A dataset that was
// never written, or has no matching partitions, reads as an empty table.
func (s *Store) Read(ctx context.Context, name string, columns []string, pred Predicate) (Table, error) {
	name = strings.TrimSuffix(objectstore.CleanKey(name), "/")
	m, found, err := s.loadManifest(ctx, name)
	if err != nil {
		return Table{}, fmt.Errorf("read %s: %w", name, err)
	}
	if !found {
		return Table{}, nil
	}
	schema, err := m.Columns.Project(columns)
	if err != nil {
		return Table{}, fmt.Errorf("read %s: %w", name, err)
	}

	parts, err := s.partitions(ctx, name, m)
	if err != nil {
		return Table{}, fmt.Errorf("read %s: %w", name, err)
	}
	selected := make([]partFile, 0, len(parts))
	for _, p := range parts {
		if pred != nil && len(m.PartitionKeys) > 0 && !pred(p.values) {
			continue
		}
		selected = append(selected, p)
	}

	chunks := make([][]Row, len(selected))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(readParallel)
	for i := range selected {
		i := i
		g.Go(func() error {
			body, err := s.objects.Get(gctx, selected[i].key)
			if err != nil {
				return err
			}
			rows, err := decodeRows(body, schema, selected[i].values)
			if err != nil {
				return fmt.Errorf("%s: %w", selected[i].key, err)
			}
			chunks[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Table{}, fmt.Errorf("read %s: %w", name, err)
	}

	out := Table{Schema: schema}
	for _, c := range chunks {
		out.Rows = append(out.Rows, c...)
	}
	return out, nil
}

// Partitions lists the partition values currently stored for name.
func (s *Store) Partitions(ctx context.Context, name string) ([]map[string]string, error) {
	name = strings.TrimSuffix(objectstore.CleanKey(name), "/")
	m, found, err := s.loadManifest(ctx, name)
	if err != nil || !found {
		return nil, err
	}
	parts, err := s.partitions(ctx, name, m)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, p.values)
	}
	return out, nil
}

type partFile struct {
	key    string
	values map[string]string
}

func (s *Store) partitions(ctx context.Context, name string, m manifest) ([]partFile, error) {
	prefix := datasetPrefix(name)
	keys, err := s.objects.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]partFile, 0, len(keys))
	for _, k := range keys {
		rel := strings.TrimPrefix(k, prefix)
		if rel == manifestName || !strings.HasSuffix(rel, ".jsonl") {
			continue
		}
		segs := strings.Split(rel, "/")
		if len(segs)-1 != len(m.PartitionKeys) {
			continue
		}
		values := make(map[string]string, len(m.PartitionKeys))
		ok := true
		for i, key := range m.PartitionKeys {
			kv := strings.SplitN(segs[i], "=", 2)
			if len(kv) != 2 || kv[0] != key {
				ok = false
				break
			}
			v, err := url.PathUnescape(kv[1])
			if err != nil {
				ok = false
				break
			}
			values[key] = v
		}
		if ok {
			out = append(out, partFile{key: k, values: values})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out, nil
}

func (s *Store) loadManifest(ctx context.Context, name string) (manifest, bool, error) {
	body, err := s.objects.Get(ctx, datasetPrefix(name)+manifestName)
	if errors.Is(err, objectstore.ErrNotFound) {
		return manifest{}, false, nil
	}
	if err != nil {
		return manifest{}, false, err
	}
	var m manifest
	if err := json.Unmarshal(body, &m); err != nil {
		return manifest{}, false, fmt.Errorf("decode %s: %w", manifestName, err)
	}
	return m, true, nil
}

func (s *Store) putManifest(ctx context.Context, name string, m manifest) error {
	body, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return s.objects.Put(ctx, datasetPrefix(name)+manifestName, body, objectstore.ContentTypeJSON)
}

// groupByPartition buckets rows by their partition path ("k=v/..."),
// preserving first-seen order. Unpartitioned tables yield one "" bucket.
func groupByPartition(t Table, keys []string) (map[string][]Row, []string, error) {
	groups := map[string][]Row{}
	order := []string{}
	if len(keys) == 0 {
		groups[""] = t.Rows
		return groups, []string{""}, nil
	}
	for i, r := range t.Rows {
		var b strings.Builder
		for _, k := range keys {
			v := r[k]
			if v == nil {
				return nil, nil, fmt.Errorf("row %d: null partition value for %q", i, k)
			}
			b.WriteString(k)
			b.WriteString("=")
			b.WriteString(url.PathEscape(fmt.Sprint(v)))
			b.WriteString("/")
		}
		p := b.String()
		if _, ok := groups[p]; !ok {
			order = append(order, p)
		}
		groups[p] = append(groups[p], r)
	}
	return groups, order, nil
}

func encodeRows(rows []Row, schema Schema, partitionKeys []string) ([]byte, error) {
	skip := make(map[string]bool, len(partitionKeys))
	for _, k := range partitionKeys {
		skip[k] = true
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range rows {
		rec := make(map[string]any, len(schema))
		for _, c := range schema {
			if skip[c.Name] {
				continue
			}
			rec[c.Name] = r[c.Name]
		}
		if err := enc.Encode(rec); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func decodeRows(body []byte, projected Schema, partition map[string]string) ([]Row, error) {
	out := []Row{}
	sc := bufio.NewScanner(bytes.NewReader(body))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(line))
		dec.UseNumber()
		var rec map[string]any
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("decode row: %w", err)
		}
		for k, v := range partition {
			rec[k] = v
		}
		row := make(Row, len(projected))
		for _, c := range projected {
			v, err := Coerce(rec[c.Name], c.Type)
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", c.Name, err)
			}
			row[c.Name] = v
		}
		out = append(out, row)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
