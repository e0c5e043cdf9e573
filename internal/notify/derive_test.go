package notify_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"refledger.app/bot/internal/model"
	"refledger.app/bot/internal/notify"
)

var _ = Describe("Deriver", func() {
	var d notify.Deriver

	BeforeEach(func() {
		d = notify.Deriver{AdminKey: "1", Extension: 24 * time.Hour}
	})

	outcome := func(kind model.OutcomeKind) model.Outcome {
		return model.Outcome{
			Kind:        kind,
			ReferrerKey: "100",
			InviteeKey:  "7",
			Count:       9,
			Remaining:   1,
			Threshold:   10,
		}
	}

	It("notifies the referrer of progress", func() {
		notes := d.Derive(outcome(model.OutcomeProgress))
		Expect(notes).To(HaveLen(1))
		Expect(notes[0].RecipientKey).To(Equal("100"))
		Expect(notes[0].Kind).To(Equal(notify.KindProgress))
		Expect(notes[0].Params.Count).To(Equal(9))
		Expect(notes[0].Params.Remaining).To(Equal(1))
	})

	It("notifies the referrer and the admin of a completion", func() {
		notes := d.Derive(outcome(model.OutcomeCompleted))
		Expect(notes).To(HaveLen(2))
		Expect(notes[0].Kind).To(Equal(notify.KindCompleted))
		Expect(notes[1].RecipientKey).To(Equal("1"))
		Expect(notes[1].Kind).To(Equal(notify.KindAdminCompleted))
		Expect(notes[1].Params.ReferrerKey).To(Equal("100"))
	})

	It("skips the admin when none is configured", func() {
		d.AdminKey = ""
		notes := d.Derive(outcome(model.OutcomeCompleted))
		Expect(notes).To(HaveLen(1))
		Expect(notes[0].Kind).To(Equal(notify.KindCompleted))
	})

	It("names the invitee on departure", func() {
		notes := d.Derive(outcome(model.OutcomeDeparted))
		Expect(notes).To(HaveLen(1))
		Expect(notes[0].Params.InviteeKey).To(Equal("7"))
	})

	It("carries the extension and deadline on a warning", func() {
		end := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
		o := outcome(model.OutcomeMissionWarned)
		o.Record = &model.ReferralRecord{MissionEnd: &end}

		notes := d.Derive(o)
		Expect(notes).To(HaveLen(1))
		Expect(notes[0].Kind).To(Equal(notify.KindMissionWarning))
		Expect(notes[0].Params.Extension).To(Equal(24 * time.Hour))
		Expect(notes[0].Params.Deadline).To(Equal(end))
	})

	DescribeTable("silent outcomes",
		func(kind model.OutcomeKind) {
			Expect(d.Derive(outcome(kind))).To(BeEmpty())
		},
		Entry("ignored", model.OutcomeIgnored),
		Entry("over threshold", model.OutcomeOverThreshold),
	)
})
