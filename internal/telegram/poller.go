package telegram

import (
	"context"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"refledger.app/bot/common/logger"
	"refledger.app/bot/internal/model"
)

// UpdateHandler consumes translated updates.
type UpdateHandler func(ctx context.Context, update model.Update) error

const (
	handleAttempts     = 5
	handleRetryBackoff = 500 * time.Millisecond
	maxHandleBackoff   = 8 * time.Second
)

// Poller receives updates by long polling when no webhook is configured.
// getUpdates has already advanced the offset when an update arrives, so a
// failed handler is retried here before the update is given up.
type Poller struct {
	client  *Client
	handler UpdateHandler
	timeout int

	attempts int
	backoff  time.Duration

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func NewPoller(client *Client, handler UpdateHandler, timeoutSeconds int) *Poller {
	if timeoutSeconds <= 0 {
		timeoutSeconds = 30
	}
	return &Poller{
		client:    client,
		handler:   handler,
		timeout:   timeoutSeconds,
		attempts:  handleAttempts,
		backoff:   handleRetryBackoff,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (p *Poller) Run(ctx context.Context) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "refbot.telegram.poller"})
	defer close(p.stoppedCh)

	if err := p.client.DeleteWebhook(ctx); err != nil {
		slog.WarnContext(ctx, "could not clear webhook before polling", "error", err)
	}

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = p.timeout
	cfg.AllowedUpdates = allowedUpdates

	updates := p.client.bot.GetUpdatesChan(cfg)
	defer p.client.bot.StopReceivingUpdates()

	slog.InfoContext(ctx, "telegram polling started", "bot", p.client.Username())

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			slog.InfoContext(ctx, "telegram polling stopping")
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			update, relevant := Translate(u, p.client.channelID)
			if !relevant {
				continue
			}
			p.deliver(ctx, update)
		}
	}
}

// deliver runs the handler until it succeeds, the attempts run out, or the
// poller is stopped. Backoff doubles between attempts.
func (p *Poller) deliver(ctx context.Context, update model.Update) bool {
	backoff := p.backoff
	for attempt := 1; ; attempt++ {
		err := p.handler(ctx, update)
		if err == nil {
			return true
		}
		if attempt >= p.attempts {
			slog.ErrorContext(ctx, "dropping polled update after retries",
				"update_id", update.UpdateID,
				"attempts", attempt,
				"error", err)
			return false
		}
		slog.WarnContext(ctx, "handling polled update failed, retrying",
			"update_id", update.UpdateID,
			"attempt", attempt,
			"retry_in", backoff,
			"error", err)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-p.stopCh:
			timer.Stop()
			return false
		case <-timer.C:
		}
		backoff = min(backoff*2, maxHandleBackoff)
	}
}

func (p *Poller) Stop() {
	close(p.stopCh)
	<-p.stoppedCh
}
