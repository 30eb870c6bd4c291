package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/yungbote/marketlake/internal/domain/pipeline"
	"github.com/yungbote/marketlake/internal/jobs/orchestrator"
)

func testClient(t *testing.T) Config {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis integration tests")
	}
	return Config{Addr: addr, Channel: "marketlake:test:" + t.Name()}
}

func TestNewClientWithoutAddress(t *testing.T) {
	rdb, err := NewClient(nil, Config{})
	if rdb != nil || err != nil {
		t.Fatalf("NewClient: want nil,nil got=%v,%v", rdb, err)
	}
}

func TestUninitializedCacheErrors(t *testing.T) {
	var c *TaskCache
	if _, _, err := c.Get(context.Background(), "k"); err == nil {
		t.Fatalf("Get on nil cache: expected error")
	}
}

func TestTaskCacheRoundTrip(t *testing.T) {
	cfg := testClient(t)
	rdb, err := NewClient(nil, cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer rdb.Close()
	ctx := context.Background()
	c := NewTaskCache(rdb)
	key := orchestrator.CacheKey("silver_products", "test-"+t.Name())
	defer rdb.Del(ctx, key)

	if _, ok, err := c.Get(ctx, key); ok || err != nil {
		t.Fatalf("Get missing: want miss got ok=%v err=%v", ok, err)
	}
	if err := c.Set(ctx, key, pipeline.JobOutput{Day: "2024-07-05", Rows: 9}, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	out, ok, err := c.Get(ctx, key)
	if err != nil || !ok || out.Rows != 9 {
		t.Fatalf("Get: want rows=9 got=%+v ok=%v err=%v", out, ok, err)
	}
	if ttl := rdb.TTL(ctx, key).Val(); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("ttl: got=%s", ttl)
	}
}

func TestRunEventsForward(t *testing.T) {
	cfg := testClient(t)
	rdb, err := NewClient(nil, cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer rdb.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	bus := NewRunEvents(nil, rdb, cfg.Channel)
	got := make(chan TaskEvent, 1)
	if err := bus.StartForwarder(ctx, func(ev TaskEvent) { got <- ev }); err != nil {
		t.Fatalf("StartForwarder: %v", err)
	}
	bus.RecordTask(ctx, "run-1", orchestrator.TaskState{Task: "bronze_products", Status: orchestrator.TaskSucceeded})
	select {
	case ev := <-got:
		if ev.RunID != "run-1" || ev.Task.Task != "bronze_products" {
			t.Fatalf("event: got=%+v", ev)
		}
	case <-ctx.Done():
		t.Fatalf("no event forwarded")
	}
}
