package objectstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

type memObject struct {
	data        []byte
	contentType string
}

// Memory is an in-process Store used by tests and single-binary dev runs.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]memObject
	gets    map[string]int
}

func NewMemory() *Memory {
	return &Memory{objects: map[string]memObject{}, gets: map[string]int{}}
}

func (m *Memory) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key = CleanKey(key)
	if key == "" || strings.HasSuffix(key, "/") {
		return fmt.Errorf("put: invalid key %q", key)
	}
	cp := append([]byte(nil), data...)
	m.mu.Lock()
	m.objects[key] = memObject{data: cp, contentType: contentType}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key = CleanKey(key)
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", key, ErrNotFound)
	}
	m.gets[key]++
	return append([]byte(nil), obj.data...), nil
}

func (m *Memory) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix = CleanKey(prefix)
	m.mu.RLock()
	out := make([]string, 0)
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	m.mu.RUnlock()
	sort.Strings(out)
	return out, nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key = CleanKey(key)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return fmt.Errorf("delete %s: %w", key, ErrNotFound)
	}
	delete(m.objects, key)
	return nil
}

// ContentType reports the content type an object was stored with.
func (m *Memory) ContentType(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.objects[CleanKey(key)].contentType
}

// Gets reports how many times key has been fetched.
func (m *Memory) Gets(key string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gets[CleanKey(key)]
}
