package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"refledger.app/bot/internal/model"
)

type Producer interface {
	Enqueue(ctx context.Context, task MembershipTask) error
	Close() error
}

type redisProducer struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

func NewRedisProducer(client *redis.Client, stream string, logger *slog.Logger) Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisProducer{client: client, stream: stream, logger: logger}
}

// Enqueue appends the event to the membership stream. The entry id Redis
// assigns is only logged; consumers key on the snowflake EventID.
func (p *redisProducer) Enqueue(ctx context.Context, task MembershipTask) error {
	entryID, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: task.values(),
	}).Result()
	if err != nil {
		return fmt.Errorf("enqueue membership event %d: %w", task.EventID, err)
	}

	p.logger.DebugContext(ctx, "membership event enqueued",
		"entry_id", entryID,
		"event_id", task.EventID,
		"status", task.Status)
	return nil
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}

func (t MembershipTask) values() map[string]any {
	return encodeEvent(t.UpdateID, model.MembershipEvent{
		EventID:    t.EventID,
		InviteeKey: t.InviteeKey,
		Status:     model.MemberStatus(t.Status),
		InviteLink: t.InviteLink,
	}, t.Attempt, t.Traceparent)
}
