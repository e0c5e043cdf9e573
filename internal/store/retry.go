package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"refledger.app/bot/internal/model"
)

type retryingStore struct {
	LedgerStore
	attempts int
	backoff  time.Duration
}

// WithRetry wraps a store so SaveRecord is attempted up to attempts times,
// sleeping backoff*attempt between tries. The last error is returned.
func WithRetry(s LedgerStore, attempts int, backoff time.Duration) LedgerStore {
	if attempts <= 1 {
		return s
	}
	return &retryingStore{LedgerStore: s, attempts: attempts, backoff: backoff}
}

func (s *retryingStore) SaveRecord(ctx context.Context, rec *model.ReferralRecord, completion *model.CompletionEntry) error {
	var err error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		if err = s.LedgerStore.SaveRecord(ctx, rec, completion); err == nil {
			return nil
		}
		if attempt == s.attempts {
			break
		}

		slog.WarnContext(ctx, "ledger save failed, retrying",
			"referrer_key", rec.ReferrerKey,
			"attempt", attempt,
			"error", err)

		select {
		case <-ctx.Done():
			return fmt.Errorf("saving referral record: %w", ctx.Err())
		case <-time.After(s.backoff * time.Duration(attempt)):
		}
	}
	return fmt.Errorf("saving referral record after %d attempts: %w", s.attempts, err)
}
