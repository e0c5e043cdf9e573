package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"refledger.app/bot/core/db"
	"refledger.app/bot/internal/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS referral_records (
	referrer_key  TEXT PRIMARY KEY,
	invite_link   TEXT NOT NULL UNIQUE,
	members       JSONB NOT NULL DEFAULT '{}'::jsonb,
	count         INTEGER NOT NULL DEFAULT 0 CHECK (count >= 0),
	completed     BOOLEAN NOT NULL DEFAULT FALSE,
	mission_start TIMESTAMPTZ,
	mission_end   TIMESTAMPTZ,
	extended      BOOLEAN NOT NULL DEFAULT FALSE,
	expired       BOOLEAN NOT NULL DEFAULT FALSE,
	created_at    TIMESTAMPTZ NOT NULL,
	completed_at  TIMESTAMPTZ,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS completion_report (
	referrer_key TEXT PRIMARY KEY,
	status       TEXT NOT NULL,
	count        INTEGER NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL
);
`

const upsertRecordSQL = `
INSERT INTO referral_records (
	referrer_key, invite_link, members, count, completed,
	mission_start, mission_end, extended, expired, created_at, completed_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
ON CONFLICT (referrer_key) DO UPDATE SET
	members       = EXCLUDED.members,
	count         = EXCLUDED.count,
	completed     = EXCLUDED.completed,
	mission_start = EXCLUDED.mission_start,
	mission_end   = EXCLUDED.mission_end,
	extended      = EXCLUDED.extended,
	expired       = EXCLUDED.expired,
	completed_at  = EXCLUDED.completed_at,
	updated_at    = now()`

const insertCompletionSQL = `
INSERT INTO completion_report (referrer_key, status, count, completed_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (referrer_key) DO NOTHING`

const selectRecordsSQL = `
SELECT referrer_key, invite_link, members, count, completed,
	mission_start, mission_end, extended, expired, created_at, completed_at
FROM referral_records`

const selectReportSQL = `
SELECT referrer_key, status, count, completed_at FROM completion_report`

type postgresStore struct {
	db *db.DB
}

// NewPostgresStore creates the ledger tables if needed and returns a store
// backed by them. The invite_link UNIQUE constraint backs the one-link-one-
// referrer invariant at the database level as well.
func NewPostgresStore(ctx context.Context, database *db.DB) (LedgerStore, error) {
	if _, err := database.Pool().Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("migrating ledger schema: %w", err)
	}
	return &postgresStore{db: database}, nil
}

func (s *postgresStore) Load(ctx context.Context) (Snapshot, error) {
	snap := EmptySnapshot()

	rows, err := s.db.Pool().Query(ctx, selectRecordsSQL)
	if err != nil {
		return Snapshot{}, fmt.Errorf("querying referral records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rec     model.ReferralRecord
			members []byte
		)
		if err := rows.Scan(
			&rec.ReferrerKey,
			&rec.InviteLink,
			&members,
			&rec.Count,
			&rec.Completed,
			&rec.MissionStart,
			&rec.MissionEnd,
			&rec.Extended,
			&rec.Expired,
			&rec.CreatedAt,
			&rec.CompletedAt,
		); err != nil {
			return Snapshot{}, fmt.Errorf("scanning referral record: %w", err)
		}
		rec.Members = make(map[string]bool)
		if err := json.Unmarshal(members, &rec.Members); err != nil {
			slog.WarnContext(ctx, "skipping referral record with unreadable members", "referrer_key", rec.ReferrerKey, "error", err)
			continue
		}
		snap.Records[rec.ReferrerKey] = &rec
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("iterating referral records: %w", err)
	}

	reportRows, err := s.db.Pool().Query(ctx, selectReportSQL)
	if err != nil {
		return Snapshot{}, fmt.Errorf("querying completion report: %w", err)
	}
	defer reportRows.Close()

	for reportRows.Next() {
		var (
			key   string
			entry model.CompletionEntry
		)
		if err := reportRows.Scan(&key, &entry.Status, &entry.Count, &entry.CompletedAt); err != nil {
			return Snapshot{}, fmt.Errorf("scanning completion entry: %w", err)
		}
		snap.Report[key] = entry
	}
	if err := reportRows.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("iterating completion report: %w", err)
	}

	return snap, nil
}

func (s *postgresStore) SaveRecord(ctx context.Context, rec *model.ReferralRecord, completion *model.CompletionEntry) error {
	members, err := json.Marshal(rec.Members)
	if err != nil {
		return fmt.Errorf("encoding members: %w", err)
	}

	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, upsertRecordSQL,
			rec.ReferrerKey,
			rec.InviteLink,
			members,
			rec.Count,
			rec.Completed,
			rec.MissionStart,
			rec.MissionEnd,
			rec.Extended,
			rec.Expired,
			rec.CreatedAt,
			rec.CompletedAt,
		); err != nil {
			return fmt.Errorf("upserting referral record: %w", err)
		}

		if completion == nil {
			return nil
		}
		completedAt := completion.CompletedAt
		if completedAt.IsZero() {
			completedAt = time.Now()
		}
		if _, err := tx.Exec(ctx, insertCompletionSQL,
			rec.ReferrerKey,
			completion.Status,
			completion.Count,
			completedAt,
		); err != nil {
			return fmt.Errorf("inserting completion entry: %w", err)
		}
		return nil
	})
}

func (s *postgresStore) Close() error {
	s.db.Close()
	return nil
}
