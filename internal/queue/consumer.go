package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"refledger.app/bot/common/logger"
	"refledger.app/bot/internal/model"
)

type ConsumerConfig struct {
	Stream    string
	Group     string
	Consumer  string
	DLQStream string
	BatchSize int64
	// Block is how long one Read waits for new entries.
	Block       time.Duration
	MaxAttempts int
	// RequeueDelay is slept before a failed event is put back on the stream.
	RequeueDelay time.Duration
}

// Message is one membership event read from the stream.
type Message struct {
	ID       string
	TaskType TaskType
	UpdateID int64
	Event    model.MembershipEvent
	Attempt  int
	// Traceparent is the W3C trace context of the span that enqueued the event.
	Traceparent string
	Raw         redis.XMessage
}

// MessageProcessor processes a queue message.
type MessageProcessor func(ctx context.Context, msg Message) error

// RedisConsumer reads membership events as a member of a consumer group.
// Retries and dead letters are new entries: the failed one is acked in the
// same MULTI so an event is never both pending and re-added.
type RedisConsumer struct {
	client *redis.Client
	cfg    ConsumerConfig
}

func NewRedisConsumer(ctx context.Context, client *redis.Client, cfg ConsumerConfig) (*RedisConsumer, error) {
	// "0" so events enqueued before the group existed are still delivered.
	err := client.XGroupCreateMkStream(ctx, cfg.Stream, cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("creating consumer group %s on %s: %w", cfg.Group, cfg.Stream, err)
	}
	return &RedisConsumer{client: client, cfg: cfg}, nil
}

// Read blocks up to Block for entries never delivered to this group. Entries
// left pending by a dead consumer are the reclaimer's. Malformed entries are
// acked and skipped.
func (c *RedisConsumer) Read(ctx context.Context) ([]Message, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		Streams:  []string{c.cfg.Stream, ">"},
		Count:    c.cfg.BatchSize,
		Block:    c.cfg.Block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading from stream: %w", err)
	}

	var messages []Message
	for _, stream := range streams {
		for _, entry := range stream.Messages {
			msg, err := ParseMessage(entry)
			if err != nil {
				slog.ErrorContext(logger.WithLogFields(ctx, logger.LogFields{MessageID: logger.Ptr(entry.ID)}),
					"skipping malformed membership event", "error", err)
				_ = c.Ack(ctx, Message{ID: entry.ID, Raw: entry})
				continue
			}
			messages = append(messages, msg)
		}
	}
	return messages, nil
}

func (c *RedisConsumer) Ack(ctx context.Context, msg Message) error {
	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, msg.ID).Err(); err != nil {
		return fmt.Errorf("xack %s: %w", msg.ID, err)
	}
	return nil
}

// Requeue puts the event back on the stream with its attempt incremented.
func (c *RedisConsumer) Requeue(ctx context.Context, msg Message, errMsg string) error {
	if c.cfg.RequeueDelay > 0 {
		timer := time.NewTimer(c.cfg.RequeueDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	values := encodeEvent(msg.UpdateID, msg.Event, msg.Attempt+1, msg.Traceparent)
	if errMsg != "" {
		values[fieldLastError] = errMsg
	}
	if err := c.moveTo(ctx, c.cfg.Stream, msg, values); err != nil {
		return fmt.Errorf("requeue: %w", err)
	}
	slog.InfoContext(ctx, "membership event requeued", "next_attempt", msg.Attempt+1, "reason", errMsg)
	return nil
}

// SendDLQ parks the event on the dead-letter stream for manual replay.
func (c *RedisConsumer) SendDLQ(ctx context.Context, msg Message, errMsg string) error {
	values := encodeEvent(msg.UpdateID, msg.Event, msg.Attempt, msg.Traceparent)
	values[fieldError] = errMsg
	if err := c.moveTo(ctx, c.cfg.DLQStream, msg, values); err != nil {
		return fmt.Errorf("dead-letter to %s: %w", c.cfg.DLQStream, err)
	}
	slog.ErrorContext(ctx, "membership event dead-lettered", "final_error", errMsg, "dlq_stream", c.cfg.DLQStream)
	return nil
}

func (c *RedisConsumer) moveTo(ctx context.Context, stream string, msg Message, values map[string]any) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAck(ctx, c.cfg.Stream, c.cfg.Group, msg.ID)
		pipe.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: values})
		return nil
	})
	return err
}
