package service_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"refledger.app/bot/internal/ledger"
	"refledger.app/bot/internal/model"
	"refledger.app/bot/internal/notify"
	"refledger.app/bot/internal/service"
)

var _ = Describe("ReferralService", func() {
	var (
		ctx      context.Context
		l        *ledger.Ledger
		platform *mockPlatform
		notifier *mockNotifier
		missions service.MissionService
		cfg      service.ReferralConfig
	)

	newService := func() service.ReferralService {
		return service.NewReferralService(l, platform, missions, cfg, nil, nil)
	}

	BeforeEach(func() {
		ctx = context.Background()
		l = ledger.New(newMemStore())
		Expect(l.Load(ctx)).To(Succeed())
		platform = &mockPlatform{}
		notifier = &mockNotifier{}
		missions = service.NewMissionService(l, notify.Deriver{}, notifier, service.MissionConfig{
			Window:    72 * time.Hour,
			Extension: 24 * time.Hour,
		}, nil, nil)
		cfg = service.ReferralConfig{Window: 72 * time.Hour, Threshold: 10}
	})

	Describe("IssueLink", func() {
		It("mints on first use and reuses afterwards", func() {
			svc := newService()

			rec, created, err := svc.IssueLink(ctx, "100")
			Expect(err).NotTo(HaveOccurred())
			Expect(created).To(BeTrue())
			Expect(rec.InviteLink).To(Equal("https://t.me/+100"))
			Expect(rec.HasMission()).To(BeFalse())

			again, created, err := svc.IssueLink(ctx, "100")
			Expect(err).NotTo(HaveOccurred())
			Expect(created).To(BeFalse())
			Expect(again.InviteLink).To(Equal(rec.InviteLink))
			Expect(platform.createLinkCalled).To(Equal(1))
		})

		It("starts a mission when missions are enabled", func() {
			cfg.MissionsEnabled = true
			rec, _, err := newService().IssueLink(ctx, "100")
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.MissionActive()).To(BeTrue())
			Expect(rec.MissionEnd.Sub(*rec.MissionStart)).To(Equal(72 * time.Hour))
		})

		It("rejects a malformed referrer id", func() {
			_, _, err := newService().IssueLink(ctx, "not-a-user")
			Expect(err).To(MatchError(service.ErrInvalidTarget))
			Expect(platform.createLinkCalled).To(BeZero())
		})

		It("creates nothing when the platform fails", func() {
			platform.createLinkFn = func(context.Context, string) (string, error) {
				return "", errors.New("forbidden")
			}
			svc := newService()

			_, _, err := svc.IssueLink(ctx, "100")
			Expect(err).To(MatchError(ContainSubstring("forbidden")))

			_, err = svc.Get(ctx, "100")
			Expect(err).To(MatchError(service.ErrReferrerNotFound))
		})
	})

	Describe("Status", func() {
		It("partitions referrers by completion", func() {
			svc := newService()
			for _, key := range []string{"100", "200"} {
				_, _, err := svc.IssueLink(ctx, key)
				Expect(err).NotTo(HaveOccurred())
			}
			_, _, err := l.Update(ctx, "200", func(rec *model.ReferralRecord) (ledger.Change, error) {
				return ledger.Change{Dirty: rec.MarkCompleted(time.Now())}, nil
			})
			Expect(err).NotTo(HaveOccurred())

			report := svc.Status(ctx)
			Expect(report.InProgress).To(HaveLen(1))
			Expect(report.InProgress[0].ReferrerKey).To(Equal("100"))
			Expect(report.Completed).To(HaveLen(1))
			Expect(report.Completed[0].ReferrerKey).To(Equal("200"))
		})
	})

	Describe("Reactivate", func() {
		It("validates the target before touching the ledger", func() {
			_, err := newService().Reactivate(ctx, "abc")
			Expect(err).To(MatchError(service.ErrInvalidTarget))
		})

		It("reports an unknown referrer", func() {
			_, err := newService().Reactivate(ctx, "555")
			Expect(err).To(MatchError(service.ErrReferrerNotFound))
		})

		It("restarts the mission of a known referrer", func() {
			svc := newService()
			_, _, err := svc.IssueLink(ctx, "100")
			Expect(err).NotTo(HaveOccurred())

			rec, err := svc.Reactivate(ctx, " 100 ")
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.MissionActive()).To(BeTrue())
			Expect(notifier.kinds()).To(Equal([]notify.Kind{notify.KindMissionReactivated}))
		})
	})

	Describe("Export", func() {
		It("includes every referrer and the completion report", func() {
			svc := newService()
			_, _, err := svc.IssueLink(ctx, "100")
			Expect(err).NotTo(HaveOccurred())
			_, _, err = l.Update(ctx, "100", func(rec *model.ReferralRecord) (ledger.Change, error) {
				rec.MarkCompleted(time.Now())
				return ledger.Change{Dirty: true, Completion: &model.CompletionEntry{
					Status:      model.CompletionStatusCompleted,
					CompletedAt: *rec.CompletedAt,
				}}, nil
			})
			Expect(err).NotTo(HaveOccurred())

			export := svc.Export(ctx)
			Expect(export.Threshold).To(Equal(10))
			Expect(export.Referrers).To(HaveLen(1))
			Expect(export.CompletionReport).To(HaveKey("100"))
			Expect(export.GeneratedAt.Location()).To(Equal(time.UTC))
		})
	})
})

var _ = DescribeTable("ParseUserKey",
	func(raw, want string, ok bool) {
		got, err := service.ParseUserKey(raw)
		if !ok {
			Expect(err).To(MatchError(service.ErrInvalidTarget))
			return
		}
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(want))
	},
	Entry("plain id", "12345", "12345", true),
	Entry("surrounding space", " 42 ", "42", true),
	Entry("leading zeros", "007", "7", true),
	Entry("empty", "", "", false),
	Entry("negative", "-5", "", false),
	Entry("zero", "0", "", false),
	Entry("username", "@someone", "", false),
	Entry("overflow", "99999999999999999999", "", false),
)
