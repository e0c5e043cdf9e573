package router

import (
	"github.com/gin-gonic/gin"

	"refledger.app/bot/internal/http/handler"
	"refledger.app/bot/internal/http/middleware"
)

// AdminRouter mounts the ledger admin API. Every route requires the admin API key.
func AdminRouter(rg *gin.RouterGroup, h *handler.AdminHandler, adminAPIKey string) {
	rg.Use(middleware.RequireAdminAPIKey(adminAPIKey))
	{
		rg.GET("/referrers", h.ListReferrers)
		rg.POST("/referrers", h.IssueLink)
		rg.GET("/referrers/:key", h.GetReferrer)
		rg.POST("/referrers/:key/reactivate", h.Reactivate)
		rg.GET("/export", h.Export)
		rg.GET("/export/schema", h.ExportSchema)
	}
}
