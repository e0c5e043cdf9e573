package service_test

import (
	"context"
	"sync"

	"refledger.app/bot/internal/model"
	"refledger.app/bot/internal/notify"
	"refledger.app/bot/internal/queue"
	"refledger.app/bot/internal/store"
)

type sentMessage struct {
	RecipientKey string
	Text         string
}

type mockPlatform struct {
	mu               sync.Mutex
	createLinkFn     func(ctx context.Context, ownerKey string) (string, error)
	sendMessageFn    func(ctx context.Context, recipientKey, text string) error
	sent             []sentMessage
	createLinkCalled int
}

func (m *mockPlatform) CreateInviteLink(ctx context.Context, ownerKey string) (string, error) {
	m.mu.Lock()
	m.createLinkCalled++
	m.mu.Unlock()
	if m.createLinkFn != nil {
		return m.createLinkFn(ctx, ownerKey)
	}
	return "https://t.me/+" + ownerKey, nil
}

func (m *mockPlatform) SendMessage(ctx context.Context, recipientKey, text string) error {
	if m.sendMessageFn != nil {
		if err := m.sendMessageFn(ctx, recipientKey, text); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{RecipientKey: recipientKey, Text: text})
	return nil
}

func (m *mockPlatform) messages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.sent...)
}

type mockNotifier struct {
	mu    sync.Mutex
	notes []notify.Notification
}

func (m *mockNotifier) Dispatch(_ context.Context, notes []notify.Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notes = append(m.notes, notes...)
}

func (m *mockNotifier) kinds() []notify.Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]notify.Kind, 0, len(m.notes))
	for _, n := range m.notes {
		out = append(out, n.Kind)
	}
	return out
}

func (m *mockNotifier) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notes = nil
}

type mockProducer struct {
	enqueueFn func(ctx context.Context, task queue.MembershipTask) error
	tasks     []queue.MembershipTask
}

func (m *mockProducer) Enqueue(ctx context.Context, task queue.MembershipTask) error {
	if m.enqueueFn != nil {
		if err := m.enqueueFn(ctx, task); err != nil {
			return err
		}
	}
	m.tasks = append(m.tasks, task)
	return nil
}

func (m *mockProducer) Close() error { return nil }

type mockDeduper struct {
	firstSeenFn func(ctx context.Context, updateID int64) (bool, error)
	seen        map[int64]bool
	forgotten   []int64
}

func newMockDeduper() *mockDeduper {
	return &mockDeduper{seen: make(map[int64]bool)}
}

func (m *mockDeduper) FirstSeen(ctx context.Context, updateID int64) (bool, error) {
	if m.firstSeenFn != nil {
		return m.firstSeenFn(ctx, updateID)
	}
	if m.seen[updateID] {
		return false, nil
	}
	m.seen[updateID] = true
	return true, nil
}

func (m *mockDeduper) Forget(_ context.Context, updateID int64) error {
	delete(m.seen, updateID)
	m.forgotten = append(m.forgotten, updateID)
	return nil
}

// memStore is an in-memory LedgerStore with an injectable write failure.
type memStore struct {
	mu     sync.Mutex
	snap   store.Snapshot
	saveFn func(rec *model.ReferralRecord) error
}

func newMemStore() *memStore {
	return &memStore{snap: store.EmptySnapshot()}
}

func (m *memStore) Load(context.Context) (store.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := store.EmptySnapshot()
	for k, rec := range m.snap.Records {
		out.Records[k] = rec.Clone()
	}
	for k, e := range m.snap.Report {
		out.Report[k] = e
	}
	return out, nil
}

func (m *memStore) SaveRecord(_ context.Context, rec *model.ReferralRecord, completion *model.CompletionEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveFn != nil {
		if err := m.saveFn(rec); err != nil {
			return err
		}
	}
	m.snap.Records[rec.ReferrerKey] = rec.Clone()
	if completion != nil {
		if _, ok := m.snap.Report[rec.ReferrerKey]; !ok {
			m.snap.Report[rec.ReferrerKey] = *completion
		}
	}
	return nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) report() map[string]model.CompletionEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]model.CompletionEntry, len(m.snap.Report))
	for k, e := range m.snap.Report {
		out[k] = e
	}
	return out
}
