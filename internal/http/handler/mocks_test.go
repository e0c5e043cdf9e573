package handler_test

import (
	"context"

	"refledger.app/bot/internal/model"
	"refledger.app/bot/internal/service"
)

type mockReferralService struct {
	issueLinkFn  func(ctx context.Context, referrerKey string) (*model.ReferralRecord, bool, error)
	getFn        func(ctx context.Context, referrerKey string) (*model.ReferralRecord, error)
	statusFn     func(ctx context.Context) service.StatusReport
	reactivateFn func(ctx context.Context, rawTarget string) (*model.ReferralRecord, error)
	exportFn     func(ctx context.Context) model.LedgerExport
}

func (m *mockReferralService) IssueLink(ctx context.Context, referrerKey string) (*model.ReferralRecord, bool, error) {
	if m.issueLinkFn != nil {
		return m.issueLinkFn(ctx, referrerKey)
	}
	return nil, false, nil
}

func (m *mockReferralService) Get(ctx context.Context, referrerKey string) (*model.ReferralRecord, error) {
	if m.getFn != nil {
		return m.getFn(ctx, referrerKey)
	}
	return nil, service.ErrReferrerNotFound
}

func (m *mockReferralService) Status(ctx context.Context) service.StatusReport {
	if m.statusFn != nil {
		return m.statusFn(ctx)
	}
	return service.StatusReport{}
}

func (m *mockReferralService) Reactivate(ctx context.Context, rawTarget string) (*model.ReferralRecord, error) {
	if m.reactivateFn != nil {
		return m.reactivateFn(ctx, rawTarget)
	}
	return nil, nil
}

func (m *mockReferralService) Export(ctx context.Context) model.LedgerExport {
	if m.exportFn != nil {
		return m.exportFn(ctx)
	}
	return model.LedgerExport{}
}

type mockUpdateIngestService struct {
	handleFn func(ctx context.Context, update model.Update) error
	handled  []model.Update
}

func (m *mockUpdateIngestService) Handle(ctx context.Context, update model.Update) error {
	m.handled = append(m.handled, update)
	if m.handleFn != nil {
		return m.handleFn(ctx, update)
	}
	return nil
}
