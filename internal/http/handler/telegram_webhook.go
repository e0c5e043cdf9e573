package handler

import (
	"crypto/subtle"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"refledger.app/bot/internal/service"
	"refledger.app/bot/internal/telegram"
)

const (
	telegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"
	maxWebhookBody       = 1 << 20
)

type TelegramWebhookHandler struct {
	ingest    service.UpdateIngestService
	secret    string
	channelID int64
}

func NewTelegramWebhookHandler(ingest service.UpdateIngestService, secret string, channelID int64) *TelegramWebhookHandler {
	return &TelegramWebhookHandler{
		ingest:    ingest,
		secret:    secret,
		channelID: channelID,
	}
}

// HandleUpdate accepts one Telegram update. A non-2xx answer makes Telegram
// redeliver, so only ingest failures return 500.
func (h *TelegramWebhookHandler) HandleUpdate(c *gin.Context) {
	ctx := c.Request.Context()

	if h.secret == "" || !secretEqual(c.Param("secret"), h.secret) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if token := c.GetHeader(telegramSecretHeader); token != "" && !secretEqual(token, h.secret) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid secret token"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	update, relevant, err := telegram.Decode(body, h.channelID)
	if err != nil {
		slog.WarnContext(ctx, "invalid telegram update", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if !relevant {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	if err := h.ingest.Handle(ctx, update); err != nil {
		slog.ErrorContext(ctx, "failed to ingest telegram update", "update_id", update.UpdateID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to ingest update"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

func secretEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
