package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDeduper remembers platform update ids for a TTL so webhook
// redeliveries are dropped before they reach the stream.
type RedisDeduper struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisDeduper(client *redis.Client, prefix string, ttl time.Duration) *RedisDeduper {
	if prefix == "" {
		prefix = "refbot:update"
	}
	return &RedisDeduper{client: client, prefix: prefix, ttl: ttl}
}

// FirstSeen reports true the first time updateID is offered within the TTL.
func (d *RedisDeduper) FirstSeen(ctx context.Context, updateID int64) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.key(updateID), 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedupe update %d: %w", updateID, err)
	}
	return ok, nil
}

// Forget releases updateID so a redelivery is processed again.
func (d *RedisDeduper) Forget(ctx context.Context, updateID int64) error {
	if err := d.client.Del(ctx, d.key(updateID)).Err(); err != nil {
		return fmt.Errorf("release update %d: %w", updateID, err)
	}
	return nil
}

func (d *RedisDeduper) key(updateID int64) string {
	return fmt.Sprintf("%s:%d", d.prefix, updateID)
}
