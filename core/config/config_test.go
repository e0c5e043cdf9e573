package config_test

import (
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"refledger.app/bot/core/config"
)

var _ = Describe("Load", func() {
	setenv := func(key, value string) {
		prev, had := os.LookupEnv(key)
		Expect(os.Setenv(key, value)).To(Succeed())
		DeferCleanup(func() {
			if had {
				_ = os.Setenv(key, prev)
			} else {
				_ = os.Unsetenv(key)
			}
		})
	}

	BeforeEach(func() {
		setenv("BOT_ENV", "test")
		setenv("BOT_TOKEN", "123:abc")
		setenv("CHANNEL_ID", "-1001234567890")
	})

	It("applies defaults", func() {
		cfg, err := config.Load()
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Telegram.ChannelID).To(Equal(int64(-1001234567890)))
		Expect(cfg.Telegram.AdminConfigured()).To(BeFalse())
		Expect(cfg.Telegram.UseWebhook()).To(BeFalse())
		Expect(cfg.Referral.Threshold).To(Equal(10))
		Expect(cfg.Mission.Window).To(Equal(72 * time.Hour))
		Expect(cfg.Mission.Extension).To(Equal(24 * time.Hour))
		Expect(cfg.Ledger.Backend).To(Equal("bolt"))
		Expect(cfg.Language).To(Equal("fa"))
	})

	It("reads overrides", func() {
		setenv("ADMIN_ID", "42")
		setenv("REFERRAL_THRESHOLD", "5")
		setenv("MISSION_WINDOW", "48h")
		setenv("LEDGER_BACKEND", "json")

		cfg, err := config.Load()
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Telegram.AdminID).To(Equal(int64(42)))
		Expect(cfg.Referral.Threshold).To(Equal(5))
		Expect(cfg.Mission.Window).To(Equal(48 * time.Hour))
		Expect(cfg.Ledger.Backend).To(Equal("json"))
	})

	DescribeTable("rejects invalid settings",
		func(key, value, want string) {
			setenv(key, value)
			_, err := config.Load()
			Expect(err).To(MatchError(ContainSubstring(want)))
		},
		Entry("missing token", "BOT_TOKEN", "", "BOT_TOKEN"),
		Entry("missing channel", "CHANNEL_ID", "", "CHANNEL_ID"),
		Entry("non-numeric channel", "CHANNEL_ID", "@mychannel", "CHANNEL_ID"),
		Entry("non-numeric admin", "ADMIN_ID", "admin", "ADMIN_ID"),
		Entry("zero threshold", "REFERRAL_THRESHOLD", "0", "REFERRAL_THRESHOLD"),
		Entry("unknown backend", "LEDGER_BACKEND", "sqlite", "LEDGER_BACKEND"),
		Entry("webhook without secret", "TELEGRAM_WEBHOOK_URL", "https://bot.example.com", "TELEGRAM_WEBHOOK_SECRET"),
		Entry("sample ratio above one", "OTEL_TRACES_SAMPLE_RATIO", "1.5", "OTEL_TRACES_SAMPLE_RATIO"),
	)
})
