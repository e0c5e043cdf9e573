package service

import (
	"context"
	"log/slog"

	"golang.org/x/time/rate"

	"refledger.app/bot/internal/metrics"
	"refledger.app/bot/internal/notify"
)

// Platform is the messaging platform the bot runs on.
type Platform interface {
	CreateInviteLink(ctx context.Context, ownerKey string) (string, error)
	SendMessage(ctx context.Context, recipientKey, text string) error
}

// Notifier delivers derived notifications. Delivery is best effort: a failed
// send is logged and counted, never returned.
type Notifier interface {
	Dispatch(ctx context.Context, notes []notify.Notification)
}

type notifier struct {
	platform Platform
	renderer *notify.Renderer
	limiter  *rate.Limiter
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewNotifier builds a notifier. A nil limiter sends without pacing.
func NewNotifier(platform Platform, renderer *notify.Renderer, limiter *rate.Limiter, m *metrics.Metrics, logger *slog.Logger) Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &notifier{
		platform: platform,
		renderer: renderer,
		limiter:  limiter,
		metrics:  m,
		logger:   logger,
	}
}

func (n *notifier) Dispatch(ctx context.Context, notes []notify.Notification) {
	for i, note := range notes {
		if n.limiter != nil {
			if err := n.limiter.Wait(ctx); err != nil {
				n.logger.WarnContext(ctx, "notification dispatch interrupted",
					"undelivered", len(notes)-i,
					"error", err)
				return
			}
		}

		text := n.renderer.Render(note)
		if err := n.platform.SendMessage(ctx, note.RecipientKey, text); err != nil {
			n.logger.WarnContext(ctx, "notification delivery failed",
				"recipient_key", note.RecipientKey,
				"kind", note.Kind,
				"error", err)
			n.metrics.RecordNotification(string(note.Kind), false)
			continue
		}
		n.metrics.RecordNotification(string(note.Kind), true)
	}
}
