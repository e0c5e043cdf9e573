package handler_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"refledger.app/bot/internal/http/handler"
	"refledger.app/bot/internal/model"
)

const (
	webhookSecret = "s3cret"
	channelID     = int64(-1001234567890)
)

const joinBody = `{
	"update_id": 5,
	"chat_member": {
		"chat": {"id": -1001234567890, "type": "channel"},
		"from": {"id": 7, "is_bot": false, "first_name": "A"},
		"date": 1700000000,
		"old_chat_member": {"user": {"id": 7, "is_bot": false, "first_name": "A"}, "status": "left"},
		"new_chat_member": {"user": {"id": 7, "is_bot": false, "first_name": "A"}, "status": "member"},
		"invite_link": {"invite_link": "https://t.me/+abc", "creator": {"id": 1, "is_bot": true, "first_name": "Bot"}, "creates_join_request": false, "is_primary": false, "is_revoked": false}
	}
}`

var _ = Describe("TelegramWebhookHandler", func() {
	var (
		router *gin.Engine
		ingest *mockUpdateIngestService
	)

	post := func(path, body string, headers map[string]string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		ingest = &mockUpdateIngestService{}
		h := handler.NewTelegramWebhookHandler(ingest, webhookSecret, channelID)
		router.POST("/telegram/webhook/:secret", h.HandleUpdate)
	})

	It("accepts a channel membership update", func() {
		w := post("/telegram/webhook/"+webhookSecret, joinBody, nil)

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(MatchJSON(`{"status": "accepted"}`))
		Expect(ingest.handled).To(HaveLen(1))
		Expect(ingest.handled[0].Membership).To(Equal(&model.MembershipEvent{
			InviteeKey: "7",
			Status:     model.MemberStatusMember,
			InviteLink: "https://t.me/+abc",
		}))
	})

	It("hides the endpoint behind the path secret", func() {
		w := post("/telegram/webhook/wrong", joinBody, nil)
		Expect(w.Code).To(Equal(http.StatusNotFound))
		Expect(ingest.handled).To(BeEmpty())
	})

	It("rejects a mismatching secret token header", func() {
		w := post("/telegram/webhook/"+webhookSecret, joinBody, map[string]string{
			"X-Telegram-Bot-Api-Secret-Token": "other",
		})
		Expect(w.Code).To(Equal(http.StatusUnauthorized))
	})

	It("accepts a matching secret token header", func() {
		w := post("/telegram/webhook/"+webhookSecret, joinBody, map[string]string{
			"X-Telegram-Bot-Api-Secret-Token": webhookSecret,
		})
		Expect(w.Code).To(Equal(http.StatusOK))
	})

	It("returns 400 on a malformed body", func() {
		w := post("/telegram/webhook/"+webhookSecret, `{"update_id":`, nil)
		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	It("acknowledges irrelevant updates without ingesting them", func() {
		w := post("/telegram/webhook/"+webhookSecret, `{"update_id": 6}`, nil)
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(MatchJSON(`{"status": "ignored"}`))
		Expect(ingest.handled).To(BeEmpty())
	})

	It("returns 500 so Telegram redelivers when ingest fails", func() {
		ingest.handleFn = func(context.Context, model.Update) error {
			return errors.New("redis unavailable")
		}
		w := post("/telegram/webhook/"+webhookSecret, joinBody, nil)
		Expect(w.Code).To(Equal(http.StatusInternalServerError))
	})
})
