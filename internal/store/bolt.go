package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"refledger.app/bot/internal/model"
)

var (
	bucketReferrers = []byte("referrers")
	bucketReport    = []byte("completion_report")
)

type boltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the bbolt ledger file at path. A file that
// bbolt cannot open because it is damaged is moved aside and replaced by an
// empty database.
func NewBoltStore(path string) (LedgerStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}

	db, err := openBolt(path)
	if err != nil {
		if !isCorruptBolt(err) {
			return nil, fmt.Errorf("opening bolt ledger: %w", err)
		}
		aside := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
		slog.Error("ledger file unreadable, starting empty",
			"path", path,
			"moved_to", aside,
			"error", err)
		if renameErr := os.Rename(path, aside); renameErr != nil {
			return nil, fmt.Errorf("moving corrupt ledger aside: %w", renameErr)
		}
		db, err = openBolt(path)
		if err != nil {
			return nil, fmt.Errorf("opening bolt ledger: %w", err)
		}
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketReferrers, bucketReport} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating ledger buckets: %w", err)
	}

	return &boltStore{db: db}, nil
}

func openBolt(path string) (*bolt.DB, error) {
	return bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
}

func isCorruptBolt(err error) bool {
	return errors.Is(err, bolt.ErrInvalid) ||
		errors.Is(err, bolt.ErrVersionMismatch) ||
		errors.Is(err, bolt.ErrChecksum)
}

func (s *boltStore) Load(ctx context.Context) (Snapshot, error) {
	snap := EmptySnapshot()
	err := s.db.View(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketReferrers).ForEach(func(k, v []byte) error {
			var rec model.ReferralRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				slog.WarnContext(ctx, "skipping unreadable referral record", "referrer_key", string(k), "error", err)
				return nil
			}
			if rec.ReferrerKey == "" {
				rec.ReferrerKey = string(k)
			}
			if rec.Members == nil {
				rec.Members = make(map[string]bool)
			}
			snap.Records[string(k)] = &rec
			return nil
		}); err != nil {
			return err
		}

		return tx.Bucket(bucketReport).ForEach(func(k, v []byte) error {
			var entry model.CompletionEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				slog.WarnContext(ctx, "skipping unreadable completion entry", "referrer_key", string(k), "error", err)
				return nil
			}
			snap.Report[string(k)] = entry
			return nil
		})
	})
	if err != nil {
		slog.ErrorContext(ctx, "reading bolt ledger failed, starting empty", "error", err)
		return EmptySnapshot(), nil
	}
	return snap, nil
}

func (s *boltStore) SaveRecord(ctx context.Context, rec *model.ReferralRecord, completion *model.CompletionEntry) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding referral record: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketReferrers).Put([]byte(rec.ReferrerKey), raw); err != nil {
			return fmt.Errorf("writing referral record: %w", err)
		}
		if completion == nil {
			return nil
		}

		report := tx.Bucket(bucketReport)
		if report.Get([]byte(rec.ReferrerKey)) != nil {
			return nil
		}
		entry, err := json.Marshal(completion)
		if err != nil {
			return fmt.Errorf("encoding completion entry: %w", err)
		}
		if err := report.Put([]byte(rec.ReferrerKey), entry); err != nil {
			return fmt.Errorf("writing completion entry: %w", err)
		}
		return nil
	})
}

func (s *boltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
