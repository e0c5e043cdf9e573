package service_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/time/rate"

	"refledger.app/bot/internal/notify"
	"refledger.app/bot/internal/service"
)

var _ = Describe("Notifier", func() {
	var (
		ctx      context.Context
		platform *mockPlatform
		notes    []notify.Notification
	)

	BeforeEach(func() {
		ctx = context.Background()
		platform = &mockPlatform{}
		notes = []notify.Notification{
			{RecipientKey: "100", Kind: notify.KindProgress, Params: notify.Params{Count: 1, Remaining: 9}},
			{RecipientKey: "200", Kind: notify.KindMissionExpired, Params: notify.Params{Count: 3}},
		}
	})

	It("renders and sends every notification", func() {
		n := service.NewNotifier(platform, notify.NewRenderer(notify.LangEnglish), nil, nil, nil)
		n.Dispatch(ctx, notes)

		Expect(platform.messages()).To(Equal([]sentMessage{
			{RecipientKey: "100", Text: "1 of your invitees joined the channel. 9 more to go for the reward."},
			{RecipientKey: "200", Text: "Your mission has expired. Successful invites: 3."},
		}))
	})

	It("keeps going after a failed send", func() {
		platform.sendMessageFn = func(_ context.Context, recipient, _ string) error {
			if recipient == "100" {
				return errors.New("bot was blocked by the user")
			}
			return nil
		}
		n := service.NewNotifier(platform, notify.NewRenderer(notify.LangEnglish), nil, nil, nil)
		n.Dispatch(ctx, notes)

		msgs := platform.messages()
		Expect(msgs).To(HaveLen(1))
		Expect(msgs[0].RecipientKey).To(Equal("200"))
	})

	It("stops when the context ends while pacing", func() {
		limiter := rate.NewLimiter(rate.Limit(0.001), 1)
		n := service.NewNotifier(platform, notify.NewRenderer(notify.LangEnglish), limiter, nil, nil)

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		n.Dispatch(cctx, notes)
		Expect(platform.messages()).To(BeEmpty())
	})

	It("reports only the notifications it could not pace out", func() {
		var logs bytes.Buffer
		log := slog.New(slog.NewJSONHandler(&logs, nil))
		limiter := rate.NewLimiter(rate.Limit(0.001), 1)
		n := service.NewNotifier(platform, notify.NewRenderer(notify.LangEnglish), limiter, nil, log)

		cctx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		n.Dispatch(cctx, notes)

		Expect(platform.messages()).To(HaveLen(1))
		var record map[string]any
		Expect(json.Unmarshal(logs.Bytes(), &record)).To(Succeed())
		Expect(record).To(HaveKeyWithValue("msg", "notification dispatch interrupted"))
		Expect(record).To(HaveKeyWithValue("undelivered", BeNumerically("==", 1)))
	})
})
