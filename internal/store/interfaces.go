package store

import (
	"context"
	"errors"

	"refledger.app/bot/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrUnknownBackend is returned by Open for an unsupported LEDGER_BACKEND.
var ErrUnknownBackend = errors.New("unknown ledger backend")

// Snapshot is the full persisted state: referral records keyed by referrer
// key and the completion report keyed by referrer key.
type Snapshot struct {
	Records map[string]*model.ReferralRecord
	Report  map[string]model.CompletionEntry
}

func EmptySnapshot() Snapshot {
	return Snapshot{
		Records: make(map[string]*model.ReferralRecord),
		Report:  make(map[string]model.CompletionEntry),
	}
}

// LedgerStore defines the durable contract of the referral ledger.
//
// Load never fails on missing or unreadable data; it yields an empty (or
// partial) snapshot instead. SaveRecord writes the record and, when
// completion is non-nil, appends the report entry unless one already exists
// for the referrer. Both writes are atomic together.
type LedgerStore interface {
	Load(ctx context.Context) (Snapshot, error)
	SaveRecord(ctx context.Context, rec *model.ReferralRecord, completion *model.CompletionEntry) error
	Close() error
}
