package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/invopop/jsonschema"

	"refledger.app/bot/internal/http/dto"
	"refledger.app/bot/internal/model"
	"refledger.app/bot/internal/service"
)

type AdminHandler struct {
	referrals service.ReferralService
	threshold int
	schema    *jsonschema.Schema
}

func NewAdminHandler(referrals service.ReferralService, threshold int) *AdminHandler {
	if threshold <= 0 {
		threshold = model.DefaultThreshold
	}
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	return &AdminHandler{
		referrals: referrals,
		threshold: threshold,
		schema:    reflector.Reflect(&model.LedgerExport{}),
	}
}

func (h *AdminHandler) ListReferrers(c *gin.Context) {
	report := h.referrals.Status(c.Request.Context())
	c.JSON(http.StatusOK, dto.ToReferrersResponse(report.InProgress, report.Completed, h.threshold))
}

func (h *AdminHandler) GetReferrer(c *gin.Context) {
	ctx := c.Request.Context()

	key, err := service.ParseUserKey(c.Param("key"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid referrer key"})
		return
	}

	rec, err := h.referrals.Get(ctx, key)
	if err != nil {
		if errors.Is(err, service.ErrReferrerNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "referrer not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to get referrer", "referrer_key", key, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get referrer"})
		return
	}

	c.JSON(http.StatusOK, dto.ToReferrerResponse(rec, h.threshold))
}

func (h *AdminHandler) IssueLink(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.IssueLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, created, err := h.referrals.IssueLink(ctx, req.ReferrerKey)
	if err != nil {
		if errors.Is(err, service.ErrInvalidTarget) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid referrer key"})
			return
		}
		slog.ErrorContext(ctx, "failed to issue invite link", "referrer_key", req.ReferrerKey, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to issue invite link"})
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, dto.IssueLinkResponse{
		Referrer: dto.ToReferrerResponse(rec, h.threshold),
		Created:  created,
	})
}

func (h *AdminHandler) Reactivate(c *gin.Context) {
	ctx := c.Request.Context()

	rec, err := h.referrals.Reactivate(ctx, c.Param("key"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidTarget):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid referrer key"})
		case errors.Is(err, service.ErrReferrerNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "referrer not found"})
		default:
			slog.ErrorContext(ctx, "failed to reactivate mission", "referrer_key", c.Param("key"), "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reactivate mission"})
		}
		return
	}

	c.JSON(http.StatusOK, dto.ToReferrerResponse(rec, h.threshold))
}

func (h *AdminHandler) Export(c *gin.Context) {
	c.JSON(http.StatusOK, h.referrals.Export(c.Request.Context()))
}

func (h *AdminHandler) ExportSchema(c *gin.Context) {
	c.JSON(http.StatusOK, h.schema)
}
