package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"refledger.app/bot/internal/model"
)

const (
	jsonDataFile   = "data.json"
	jsonReportFile = "report.json"
)

// jsonFileStore keeps the ledger in two JSON documents: data.json (records
// keyed by referrer) and report.json (completion report keyed by referrer).
// Each save rewrites a document through a temp file and rename.
type jsonFileStore struct {
	mu      sync.Mutex
	dir     string
	records map[string]*model.ReferralRecord
	report  map[string]model.CompletionEntry
}

func NewJSONFileStore(dir string) (LedgerStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}
	return &jsonFileStore{
		dir:     dir,
		records: make(map[string]*model.ReferralRecord),
		report:  make(map[string]model.CompletionEntry),
	}, nil
}

func (s *jsonFileStore) Load(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := readJSONFile[map[string]*model.ReferralRecord](ctx, filepath.Join(s.dir, jsonDataFile))
	if err != nil {
		return Snapshot{}, err
	}
	report, err := readJSONFile[map[string]model.CompletionEntry](ctx, filepath.Join(s.dir, jsonReportFile))
	if err != nil {
		return Snapshot{}, err
	}

	snap := EmptySnapshot()
	for key, rec := range records {
		if rec == nil {
			continue
		}
		if rec.ReferrerKey == "" {
			rec.ReferrerKey = key
		}
		if rec.Members == nil {
			rec.Members = make(map[string]bool)
		}
		snap.Records[key] = rec
	}
	for key, entry := range report {
		snap.Report[key] = entry
	}

	s.records = make(map[string]*model.ReferralRecord, len(snap.Records))
	for key, rec := range snap.Records {
		s.records[key] = rec.Clone()
	}
	s.report = make(map[string]model.CompletionEntry, len(snap.Report))
	for key, entry := range snap.Report {
		s.report[key] = entry
	}
	return snap, nil
}

// SaveRecord writes report.json before data.json, so a record never reads
// back as completed without its report entry. A failed data.json write takes
// the new report entry back out.
func (s *jsonFileStore) SaveRecord(ctx context.Context, rec *model.ReferralRecord, completion *model.CompletionEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	addedReport := false
	if completion != nil {
		if _, exists := s.report[rec.ReferrerKey]; !exists {
			s.report[rec.ReferrerKey] = *completion
			if err := writeJSONFile(filepath.Join(s.dir, jsonReportFile), s.report); err != nil {
				delete(s.report, rec.ReferrerKey)
				return fmt.Errorf("writing %s: %w", jsonReportFile, err)
			}
			addedReport = true
		}
	}

	previous, hadPrevious := s.records[rec.ReferrerKey]
	s.records[rec.ReferrerKey] = rec.Clone()
	if err := writeJSONFile(filepath.Join(s.dir, jsonDataFile), s.records); err != nil {
		if hadPrevious {
			s.records[rec.ReferrerKey] = previous
		} else {
			delete(s.records, rec.ReferrerKey)
		}
		if addedReport {
			delete(s.report, rec.ReferrerKey)
			if undoErr := writeJSONFile(filepath.Join(s.dir, jsonReportFile), s.report); undoErr != nil {
				slog.ErrorContext(ctx, "failed to withdraw report entry after data write failure",
					"referrer_key", rec.ReferrerKey, "error", undoErr)
			}
		}
		return fmt.Errorf("writing %s: %w", jsonDataFile, err)
	}
	return nil
}

func (s *jsonFileStore) Close() error {
	return nil
}

// readJSONFile decodes path. A missing file yields the zero value. A file
// that cannot be read or decoded is moved to path.corrupt-<unix>, so the next
// save cannot overwrite it, and also yields the zero value.
func readJSONFile[T any](ctx context.Context, path string) (T, error) {
	var value T
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return value, nil
	}
	if err == nil {
		if err = json.Unmarshal(raw, &value); err == nil {
			return value, nil
		}
	}

	var empty T
	aside := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
	slog.ErrorContext(ctx, "ledger file unreadable, starting empty",
		"path", path,
		"moved_to", aside,
		"error", err)
	if renameErr := os.Rename(path, aside); renameErr != nil {
		return empty, fmt.Errorf("moving corrupt %s aside: %w", filepath.Base(path), renameErr)
	}
	return empty, nil
}

func writeJSONFile(path string, value any) error {
	raw, err := json.MarshalIndent(value, "", "    ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
