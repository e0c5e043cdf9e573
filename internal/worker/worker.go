package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"refledger.app/bot/common/logger"
	"refledger.app/bot/internal/metrics"
	"refledger.app/bot/internal/model"
	"refledger.app/bot/internal/queue"
)

// Consumer is the part of the queue the worker drives.
type Consumer interface {
	Read(ctx context.Context) ([]queue.Message, error)
	Ack(ctx context.Context, msg queue.Message) error
	Requeue(ctx context.Context, msg queue.Message, errMsg string) error
	SendDLQ(ctx context.Context, msg queue.Message, errMsg string) error
}

// EventApplier applies one membership event to the ledger.
type EventApplier interface {
	Apply(ctx context.Context, event model.MembershipEvent) (model.Outcome, error)
}

type Config struct {
	MaxAttempts  int
	ErrorBackoff time.Duration
}

type Worker struct {
	consumer Consumer
	applier  EventApplier
	cfg      Config
	metrics  *metrics.Metrics

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(consumer Consumer, applier EventApplier, cfg Config, m *metrics.Metrics) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = time.Second
	}
	return &Worker{
		consumer:  consumer,
		applier:   applier,
		cfg:       cfg,
		metrics:   m,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "refbot.worker"})
	defer close(w.stoppedCh)

	slog.InfoContext(ctx, "worker started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			slog.InfoContext(ctx, "worker stopping")
			return nil
		default:
			if err := w.processOneBatch(ctx); err != nil {
				slog.ErrorContext(ctx, "batch processing error", "error", err)
				select {
				case <-ctx.Done():
				case <-w.stopCh:
				case <-time.After(w.cfg.ErrorBackoff):
				}
			}
		}
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.stoppedCh
}

func (w *Worker) processOneBatch(ctx context.Context) error {
	messages, err := w.consumer.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading from stream: %w", err)
	}

	for _, msg := range messages {
		_ = w.Handle(ctx, msg)
	}
	return nil
}

// Handle processes msg and, on failure, requeues it or moves it to the DLQ
// once MaxAttempts is reached. The reclaimer uses it for stale messages.
func (w *Worker) Handle(ctx context.Context, msg queue.Message) error {
	msgID := msg.ID
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		MessageID: &msgID,
		UpdateID:  logger.Ptr(msg.UpdateID),
		EventID:   logger.Ptr(msg.Event.EventID),
	})

	if err := w.processMessageSafe(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "message processing failed",
			"error", err,
			"attempt", msg.Attempt)
		w.handleFailedMessage(ctx, msg, err)
		return err
	}
	return nil
}

func (w *Worker) processMessageSafe(ctx context.Context, msg queue.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in message processing", "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.ProcessMessage(ctx, msg)
}

// ProcessMessage applies the event and acks it. Nothing is acked when the
// ledger write fails.
func (w *Worker) ProcessMessage(ctx context.Context, msg queue.Message) (err error) {
	span := logger.StartEventSpan(ctx, "worker.apply_membership", msg.Traceparent,
		attribute.String("refbot.member.status", string(msg.Event.Status)),
		attribute.Int("refbot.delivery.attempt", msg.Attempt))
	defer func() { span.Finish(err) }()
	ctx = span.Context()

	slog.DebugContext(ctx, "processing membership event",
		"status", msg.Event.Status,
		"attempt", msg.Attempt)

	if _, err = w.applier.Apply(ctx, msg.Event); err != nil {
		return err
	}

	if ackErr := w.consumer.Ack(ctx, msg); ackErr != nil {
		// the event is applied; a redelivery is absorbed by ledger idempotence
		slog.WarnContext(ctx, "failed to ACK message", "error", ackErr)
	}
	w.metrics.RecordQueue("acked")
	return nil
}

func (w *Worker) handleFailedMessage(ctx context.Context, msg queue.Message, err error) {
	if msg.Attempt >= w.cfg.MaxAttempts {
		slog.ErrorContext(ctx, "max attempts reached, sending to DLQ", "attempts", msg.Attempt)
		if dlqErr := w.consumer.SendDLQ(ctx, msg, err.Error()); dlqErr != nil {
			slog.ErrorContext(ctx, "failed to send to DLQ", "error", dlqErr)
			return
		}
		w.metrics.RecordQueue("dead_lettered")
		return
	}

	slog.WarnContext(ctx, "requeuing failed message", "attempt", msg.Attempt)
	if requeueErr := w.consumer.Requeue(ctx, msg, err.Error()); requeueErr != nil {
		slog.ErrorContext(ctx, "failed to requeue message", "error", requeueErr)
		return
	}
	w.metrics.RecordQueue("requeued")
}
