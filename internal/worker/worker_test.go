package worker_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"refledger.app/bot/internal/model"
	"refledger.app/bot/internal/queue"
	"refledger.app/bot/internal/worker"
)

func message(id string, attempt int) queue.Message {
	return queue.Message{
		ID:       id,
		TaskType: queue.TaskTypeMembership,
		UpdateID: 9,
		Event: model.MembershipEvent{
			EventID:    1,
			InviteeKey: "7",
			Status:     model.MemberStatusMember,
			InviteLink: "https://t.me/+100",
		},
		Attempt: attempt,
	}
}

var _ = Describe("Worker", func() {
	var (
		ctx      context.Context
		consumer *mockConsumer
		applier  *mockApplier
		w        *worker.Worker
	)

	BeforeEach(func() {
		ctx = context.Background()
		consumer = &mockConsumer{}
		applier = &mockApplier{}
		w = worker.New(consumer, applier, worker.Config{MaxAttempts: 3}, nil)
	})

	Describe("Handle", func() {
		It("applies and acks a message", func() {
			Expect(w.Handle(ctx, message("1-0", 1))).To(Succeed())
			Expect(applier.applied).To(HaveLen(1))
			Expect(applier.applied[0].InviteeKey).To(Equal("7"))
			Expect(consumer.ackedIDs()).To(Equal([]string{"1-0"}))
		})

		It("requeues without acking when apply fails", func() {
			applier.applyFn = func(context.Context, model.MembershipEvent) (model.Outcome, error) {
				return model.Outcome{}, errors.New("disk full")
			}

			Expect(w.Handle(ctx, message("1-0", 1))).To(MatchError("disk full"))
			Expect(consumer.ackedIDs()).To(BeEmpty())
			Expect(consumer.requeued).To(HaveLen(1))
			Expect(consumer.errors).To(Equal([]string{"disk full"}))
			Expect(consumer.dlq).To(BeEmpty())
		})

		It("dead-letters once attempts are exhausted", func() {
			applier.applyFn = func(context.Context, model.MembershipEvent) (model.Outcome, error) {
				return model.Outcome{}, errors.New("disk full")
			}

			Expect(w.Handle(ctx, message("1-0", 3))).To(HaveOccurred())
			Expect(consumer.requeued).To(BeEmpty())
			Expect(consumer.dlq).To(HaveLen(1))
		})

		It("turns a panic into a retry", func() {
			applier.applyFn = func(context.Context, model.MembershipEvent) (model.Outcome, error) {
				panic("nil map")
			}

			Expect(w.Handle(ctx, message("1-0", 1))).To(MatchError(ContainSubstring("panic: nil map")))
			Expect(consumer.requeued).To(HaveLen(1))
		})
	})

	Describe("Run", func() {
		It("processes read batches until stopped", func() {
			delivered := false
			consumer.readFn = func(ctx context.Context) ([]queue.Message, error) {
				if !delivered {
					delivered = true
					return []queue.Message{message("1-0", 1), message("2-0", 1)}, nil
				}
				select {
				case <-ctx.Done():
				case <-time.After(5 * time.Millisecond):
				}
				return nil, nil
			}

			done := make(chan error, 1)
			go func() { done <- w.Run(ctx) }()

			Eventually(consumer.ackedIDs).Should(Equal([]string{"1-0", "2-0"}))
			w.Stop()
			Eventually(done).Should(Receive(BeNil()))
		})

		It("backs off and keeps running after a read error", func() {
			reads := 0
			consumer.readFn = func(context.Context) ([]queue.Message, error) {
				reads++
				if reads == 1 {
					return nil, errors.New("redis timeout")
				}
				return []queue.Message{message("3-0", 1)}, nil
			}
			w = worker.New(consumer, applier, worker.Config{ErrorBackoff: time.Millisecond}, nil)

			go func() { _ = w.Run(ctx) }()
			Eventually(consumer.ackedIDs).Should(ContainElement("3-0"))
			w.Stop()
		})
	})
})

var _ = Describe("MissionScheduler", func() {
	It("ticks immediately and then on the interval", func() {
		missions := &mockMissions{}
		s := worker.NewMissionScheduler(missions, 10*time.Millisecond)

		go s.Run(context.Background())
		Eventually(missions.tickCount).Should(BeNumerically(">=", 2))
		s.Stop()

		stopped := missions.tickCount()
		Consistently(missions.tickCount, 50*time.Millisecond).Should(Equal(stopped))
	})
})
