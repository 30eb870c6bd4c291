package redis

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/marketlake/internal/jobs/orchestrator"
	"github.com/yungbote/marketlake/internal/platform/logger"
)

// TaskEvent is published once per finished task attempt.
type TaskEvent struct {
	RunID string                 `json:"run_id"`
	Task  orchestrator.TaskState `json:"task"`
}

// RunEvents publishes task state changes on a pub/sub channel so other
// processes can follow a run live.
type RunEvents struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

func NewRunEvents(log *logger.Logger, rdb *goredis.Client, channel string) *RunEvents {
	if log == nil {
		log = logger.Nop()
	}
	if channel == "" {
		channel = "marketlake:runs"
	}
	return &RunEvents{log: log.With("service", "RedisRunEvents"), rdb: rdb, channel: channel}
}

func (b *RunEvents) Publish(ctx context.Context, ev TaskEvent) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis run events not initialized")
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

// RecordTask implements orchestrator.Recorder. Publish failures are logged.
func (b *RunEvents) RecordTask(ctx context.Context, runID string, st orchestrator.TaskState) {
	if err := b.Publish(ctx, TaskEvent{RunID: runID, Task: st}); err != nil {
		b.log.Warn("publish task event failed", "run_id", runID, "task", st.Key(), "error", err)
	}
}

// StartForwarder subscribes to the channel and calls onEvent for every
// decodable message until ctx ends.
func (b *RunEvents) StartForwarder(ctx context.Context, onEvent func(TaskEvent)) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis run events not initialized")
	}
	if onEvent == nil {
		return fmt.Errorf("onEvent callback required")
	}

	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				var ev TaskEvent
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					b.log.Warn("bad run event payload", "error", err)
					continue
				}
				onEvent(ev)
			}
		}
	}()
	return nil
}
