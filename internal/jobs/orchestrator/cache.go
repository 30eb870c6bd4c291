package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/yungbote/marketlake/internal/domain/pipeline"
)

// MemoryCache is a process-local Cache. Entries expire lazily on read.
type MemoryCache struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]memEntry
}

type memEntry struct {
	out     pipeline.JobOutput
	expires time.Time
}

func NewMemoryCache(now func() time.Time) *MemoryCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{now: now, entries: map[string]memEntry{}}
}

func (c *MemoryCache) Get(ctx context.Context, key string) (pipeline.JobOutput, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return pipeline.JobOutput{}, false, nil
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return pipeline.JobOutput{}, false, nil
	}
	return e.out, true, nil
}

func (c *MemoryCache) Set(ctx context.Context, key string, out pipeline.JobOutput, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memEntry{out: out, expires: c.now().Add(ttl)}
	return nil
}

// Recorders fans one task record out to several recorders.
type Recorders []Recorder

func (rs Recorders) RecordTask(ctx context.Context, runID string, st TaskState) {
	for _, r := range rs {
		if r != nil {
			r.RecordTask(ctx, runID, st)
		}
	}
}
