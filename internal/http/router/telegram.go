package router

import (
	"github.com/gin-gonic/gin"

	"refledger.app/bot/internal/http/handler"
)

func TelegramRouter(rg *gin.RouterGroup, h *handler.TelegramWebhookHandler) {
	rg.POST("/webhook/:secret", h.HandleUpdate)
}
