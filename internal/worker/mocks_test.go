package worker_test

import (
	"context"
	"sync"
	"time"

	"refledger.app/bot/internal/model"
	"refledger.app/bot/internal/queue"
	"refledger.app/bot/internal/service"
)

type mockConsumer struct {
	mu       sync.Mutex
	readFn   func(ctx context.Context) ([]queue.Message, error)
	acked    []string
	requeued []queue.Message
	dlq      []queue.Message
	errors   []string
}

func (m *mockConsumer) Read(ctx context.Context) ([]queue.Message, error) {
	if m.readFn != nil {
		return m.readFn(ctx)
	}
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Millisecond):
	}
	return nil, nil
}

func (m *mockConsumer) Ack(_ context.Context, msg queue.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acked = append(m.acked, msg.ID)
	return nil
}

func (m *mockConsumer) Requeue(_ context.Context, msg queue.Message, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requeued = append(m.requeued, msg)
	m.errors = append(m.errors, errMsg)
	return nil
}

func (m *mockConsumer) SendDLQ(_ context.Context, msg queue.Message, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dlq = append(m.dlq, msg)
	m.errors = append(m.errors, errMsg)
	return nil
}

func (m *mockConsumer) ackedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.acked...)
}

type mockApplier struct {
	mu      sync.Mutex
	applyFn func(ctx context.Context, event model.MembershipEvent) (model.Outcome, error)
	applied []model.MembershipEvent
}

func (m *mockApplier) Apply(ctx context.Context, event model.MembershipEvent) (model.Outcome, error) {
	m.mu.Lock()
	m.applied = append(m.applied, event)
	m.mu.Unlock()
	if m.applyFn != nil {
		return m.applyFn(ctx, event)
	}
	return model.Outcome{Kind: model.OutcomeProgress}, nil
}

type mockMissions struct {
	mu    sync.Mutex
	ticks []time.Time
}

func (m *mockMissions) Tick(_ context.Context, now time.Time) (service.TickResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticks = append(m.ticks, now)
	return service.TickResult{Checked: 1}, nil
}

func (m *mockMissions) Reactivate(context.Context, string, time.Time) (*model.ReferralRecord, error) {
	return nil, nil
}

func (m *mockMissions) tickCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ticks)
}
