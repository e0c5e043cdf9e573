package queue

import (
	"github.com/redis/go-redis/v9"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"refledger.app/bot/internal/model"
)

var _ = Describe("MembershipTask values", func() {
	It("omits empty optional fields and floors the attempt", func() {
		values := MembershipTask{EventID: 1, InviteeKey: "7", Status: "left"}.values()
		Expect(values).NotTo(HaveKey(fieldInviteLink))
		Expect(values).NotTo(HaveKey(fieldTraceparent))
		Expect(values).To(HaveKeyWithValue(fieldAttempt, 1))
	})

	It("reads back as the same event", func() {
		task := MembershipTask{
			EventID:     42,
			UpdateID:    900,
			InviteeKey:  "7",
			Status:      "kicked",
			InviteLink:  "https://t.me/+100",
			Traceparent: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
			Attempt:     3,
		}

		msg, err := ParseMessage(redis.XMessage{ID: "5-0", Values: task.values()})
		Expect(err).NotTo(HaveOccurred())
		Expect(msg.UpdateID).To(Equal(int64(900)))
		Expect(msg.Attempt).To(Equal(3))
		Expect(msg.Traceparent).To(Equal(task.Traceparent))
		Expect(msg.Event).To(Equal(model.MembershipEvent{
			EventID:    42,
			InviteeKey: "7",
			Status:     model.MemberStatusKicked,
			InviteLink: "https://t.me/+100",
		}))
	})
})
