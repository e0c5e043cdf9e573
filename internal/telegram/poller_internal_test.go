package telegram

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"refledger.app/bot/internal/model"
)

var _ = Describe("Poller delivery", func() {
	var (
		calls   int
		failFor int
		poller  *Poller
		update  model.Update
	)

	BeforeEach(func() {
		calls = 0
		failFor = 0
		update = model.Update{UpdateID: 77, Membership: &model.MembershipEvent{InviteeKey: "7", Status: model.MemberStatusMember}}
		poller = NewPoller(nil, func(context.Context, model.Update) error {
			calls++
			if calls <= failFor {
				return errors.New("redis unavailable")
			}
			return nil
		}, 0)
		poller.backoff = time.Millisecond
	})

	It("hands an update over once when the handler succeeds", func() {
		Expect(poller.deliver(context.Background(), update)).To(BeTrue())
		Expect(calls).To(Equal(1))
	})

	It("retries a failed enqueue until it goes through", func() {
		failFor = 3
		Expect(poller.deliver(context.Background(), update)).To(BeTrue())
		Expect(calls).To(Equal(4))
	})

	It("gives up after the attempt budget", func() {
		failFor = 100
		Expect(poller.deliver(context.Background(), update)).To(BeFalse())
		Expect(calls).To(Equal(handleAttempts))
	})

	It("stops retrying when the poller is stopped", func() {
		failFor = 100
		poller.backoff = time.Hour
		close(poller.stopCh)
		Expect(poller.deliver(context.Background(), update)).To(BeFalse())
		Expect(calls).To(Equal(1))
	})
})
