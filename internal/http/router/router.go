package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"refledger.app/bot/internal/http/handler"
	"refledger.app/bot/internal/service"
)

type RouterConfig struct {
	AdminAPIKey   string
	WebhookSecret string
	ChannelID     int64
	Threshold     int
	// WebhookEnabled mounts the Telegram webhook route.
	WebhookEnabled bool
}

func SetupRoutes(router *gin.Engine, services *service.Services, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if cfg.WebhookEnabled {
		webhookHandler := handler.NewTelegramWebhookHandler(services.UpdateIngest(), cfg.WebhookSecret, cfg.ChannelID)
		TelegramRouter(router.Group("/telegram"), webhookHandler)
	}

	v1 := router.Group("/api/v1")
	{
		adminHandler := handler.NewAdminHandler(services.Referrals(), cfg.Threshold)
		AdminRouter(v1.Group("/admin"), adminHandler, cfg.AdminAPIKey)
	}
}
