package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/marketlake/internal/domain/pipeline"
)

// TaskCache stores task outputs as JSON strings with a native TTL.
type TaskCache struct {
	rdb goredis.Cmdable
}

func NewTaskCache(rdb goredis.Cmdable) *TaskCache {
	return &TaskCache{rdb: rdb}
}

func (c *TaskCache) Get(ctx context.Context, key string) (pipeline.JobOutput, bool, error) {
	if c == nil || c.rdb == nil {
		return pipeline.JobOutput{}, false, fmt.Errorf("redis task cache not initialized")
	}
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return pipeline.JobOutput{}, false, nil
	}
	if err != nil {
		return pipeline.JobOutput{}, false, err
	}
	var out pipeline.JobOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return pipeline.JobOutput{}, false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return out, true, nil
}

func (c *TaskCache) Set(ctx context.Context, key string, out pipeline.JobOutput, ttl time.Duration) error {
	if c == nil || c.rdb == nil {
		return fmt.Errorf("redis task cache not initialized")
	}
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, raw, ttl).Err()
}
