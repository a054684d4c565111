package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Publisher is the slice of the Redis client the notifier uses.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) error
	XAdd(ctx context.Context, stream string, values map[string]any) (string, error)
	Close() error
}

// BlockIndexedEvent is the Pub/Sub payload.
type BlockIndexedEvent struct {
	Network   string    `json:"network"`
	Height    uint64    `json:"height"`
	Timestamp time.Time `json:"timestamp"`
}

// RedisNotifier publishes on nimiq:<network>:block.indexed and appends to nimiq:<network>:blocks.
type RedisNotifier struct {
	publisher Publisher
	network   string
	now       func() time.Time
}

func NewRedisNotifier(publisher Publisher, network string) *RedisNotifier {
	return &RedisNotifier{publisher: publisher, network: network, now: time.Now}
}

func (r *RedisNotifier) Channel() string {
	return fmt.Sprintf("nimiq:%s:block.indexed", r.network)
}

func (r *RedisNotifier) Stream() string {
	return fmt.Sprintf("nimiq:%s:blocks", r.network)
}

func (r *RedisNotifier) Name() string { return "redis" }

func (r *RedisNotifier) NotifyHeight(ctx context.Context, height uint64) error {
	payload, err := json.Marshal(BlockIndexedEvent{Network: r.network, Height: height, Timestamp: r.now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := r.publisher.Publish(ctx, r.Channel(), string(payload)); err != nil {
		return fmt.Errorf("publish %s: %w", r.Channel(), err)
	}
	if _, err := r.publisher.XAdd(ctx, r.Stream(), map[string]any{"height": height}); err != nil {
		return fmt.Errorf("xadd %s: %w", r.Stream(), err)
	}
	return nil
}

func (r *RedisNotifier) Close() error {
	return r.publisher.Close()
}
