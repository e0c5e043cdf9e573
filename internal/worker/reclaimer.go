package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"refledger.app/bot/common/logger"
	"refledger.app/bot/internal/metrics"
	"refledger.app/bot/internal/queue"
)

type ReclaimerConfig struct {
	Stream   string
	Group    string
	Consumer string
	// MinIdle is how long an entry must sit unacked before it is taken over.
	MinIdle   time.Duration
	Interval  time.Duration
	BatchSize int64
}

// Reclaimer takes over membership events whose consumer died between
// reading and acking them, and feeds them back through the worker.
type Reclaimer struct {
	client   *redis.Client
	cfg      ReclaimerConfig
	consumer Consumer
	handle   queue.MessageProcessor
	metrics  *metrics.Metrics

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func NewReclaimer(client *redis.Client, cfg ReclaimerConfig, consumer Consumer, handle queue.MessageProcessor, m *metrics.Metrics) *Reclaimer {
	return &Reclaimer{
		client:    client,
		cfg:       cfg,
		consumer:  consumer,
		handle:    handle,
		metrics:   m,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Run sweeps the pending list every Interval until Stop or ctx is done.
func (r *Reclaimer) Run(ctx context.Context) {
	defer close(r.stoppedCh)
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "refbot.reclaimer"})

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "reclaimer started", "interval", r.cfg.Interval, "min_idle", r.cfg.MinIdle)

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			slog.InfoContext(ctx, "reclaimer stopping")
			return
		case <-ticker.C:
			n, err := r.sweep(ctx)
			if err != nil {
				slog.ErrorContext(ctx, "reclaim sweep failed", "error", err)
			}
			if n > 0 {
				slog.InfoContext(ctx, "reclaimed stale membership events", "count", n)
			}
		}
	}
}

func (r *Reclaimer) Stop() {
	close(r.stopCh)
	<-r.stoppedCh
}

// sweep walks the group's pending list with XAUTOCLAIM, taking ownership of
// entries idle past MinIdle. It stops after one pass over the list or one
// batch, whichever comes first, so a single sweep stays bounded.
func (r *Reclaimer) sweep(ctx context.Context) (int, error) {
	claimed := 0
	cursor := "0-0"
	for claimed < int(r.cfg.BatchSize) {
		entries, next, err := r.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   r.cfg.Stream,
			Group:    r.cfg.Group,
			Consumer: r.cfg.Consumer,
			MinIdle:  r.cfg.MinIdle,
			Start:    cursor,
			Count:    r.cfg.BatchSize - int64(claimed),
		}).Result()
		if err != nil {
			return claimed, fmt.Errorf("xautoclaim: %w", err)
		}

		for _, entry := range entries {
			claimed++
			r.redeliver(ctx, entry)
		}

		if next == "0-0" || len(entries) == 0 {
			break
		}
		cursor = next
	}
	return claimed, nil
}

func (r *Reclaimer) redeliver(ctx context.Context, entry redis.XMessage) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{MessageID: logger.Ptr(entry.ID)})

	msg, err := queue.ParseMessage(entry)
	if err != nil {
		// A malformed entry would be reclaimed forever; drop it.
		slog.ErrorContext(ctx, "dropping unparseable pending entry", "error", err)
		_ = r.consumer.Ack(ctx, queue.Message{ID: entry.ID, Raw: entry})
		r.metrics.RecordQueue("dropped")
		return
	}
	r.metrics.RecordQueue("reclaimed")

	// The handler acks, requeues or dead-letters on its own.
	if err := r.handle(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "reclaimed membership event failed", "attempt", msg.Attempt, "error", err)
	}
}
