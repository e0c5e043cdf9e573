// Package ledger holds the authoritative in-memory referral ledger.
//
// Every record sits behind its own mutex, so events for different referrers
// run in parallel while two events for the same referrer never interleave
// their read-modify-write. Mutations are applied to a copy, validated and
// written through the store before they become visible; a failed write
// leaves the ledger unchanged.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"refledger.app/bot/internal/model"
	"refledger.app/bot/internal/store"
)

var (
	ErrReferrerNotFound    = errors.New("referrer not found")
	ErrInvariantViolation  = errors.New("ledger invariant violation")
	ErrDuplicateInviteLink = errors.New("invite link already bound to another referrer")
	ErrEmptyInviteLink     = errors.New("collaborator returned an empty invite link")
)

// MintFunc asks the platform for a new invite link owned by referrerKey.
type MintFunc func(ctx context.Context, referrerKey string) (string, error)

// Change is what a Mutation reports back to the ledger.
type Change struct {
	// Dirty must be set when the record was modified; clean mutations are
	// not persisted.
	Dirty bool
	// Completion, when set, is appended to the completion report in the same
	// write as the record, unless the referrer already has an entry.
	Completion *model.CompletionEntry
	// AlreadyReported is set by Update when it dropped Completion because
	// the report already holds an entry for the referrer.
	AlreadyReported bool
}

// Mutation edits a private copy of a record through its guarded methods.
type Mutation func(rec *model.ReferralRecord) (Change, error)

// Resolution is the result of looking up an invite link.
type Resolution struct {
	ReferrerKey string
	Found       bool
}

type entry struct {
	mu  sync.Mutex
	rec *model.ReferralRecord
}

type Ledger struct {
	store store.LedgerStore

	mu      sync.RWMutex
	entries map[string]*entry
	links   map[string]string
	report  map[string]model.CompletionEntry

	// createMu serializes record creation only; it is never held by Update.
	createMu sync.Mutex
}

func New(s store.LedgerStore) *Ledger {
	return &Ledger{
		store:   s,
		entries: make(map[string]*entry),
		links:   make(map[string]string),
		report:  make(map[string]model.CompletionEntry),
	}
}

// Load replaces the in-memory state with what the store holds. Count drift
// found on disk is repaired from Members; a link claimed by two referrers
// stays bound to the first key in sorted order.
func (l *Ledger) Load(ctx context.Context) error {
	snap, err := l.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading ledger: %w", err)
	}

	keys := make([]string, 0, len(snap.Records))
	for key := range snap.Records {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	entries := make(map[string]*entry, len(keys))
	links := make(map[string]string, len(keys))
	for _, key := range keys {
		rec := snap.Records[key]
		if rec.InviteLink == "" {
			slog.ErrorContext(ctx, "dropping stored referral record without invite link", "referrer_key", key)
			continue
		}
		if counted := rec.CountedMembers(); counted != rec.Count {
			slog.WarnContext(ctx, "repairing referral count drift",
				"referrer_key", key,
				"stored_count", rec.Count,
				"counted_members", counted)
			rec.Count = counted
		}
		if owner, taken := links[rec.InviteLink]; taken {
			slog.ErrorContext(ctx, "invite link bound to two referrers, keeping first",
				"invite_link", rec.InviteLink,
				"kept_referrer_key", owner,
				"dropped_referrer_key", key)
		} else {
			links[rec.InviteLink] = key
		}
		entries[key] = &entry{rec: rec}
	}

	report := make(map[string]model.CompletionEntry, len(snap.Report))
	for key, e := range snap.Report {
		report[key] = e
	}

	l.mu.Lock()
	l.entries = entries
	l.links = links
	l.report = report
	l.mu.Unlock()

	slog.InfoContext(ctx, "ledger loaded", "referrers", len(entries), "completions", len(report))
	return nil
}

// Get returns a copy of the record for referrerKey.
func (l *Ledger) Get(referrerKey string) (*model.ReferralRecord, bool) {
	e := l.lookup(referrerKey)
	if e == nil {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec.Clone(), true
}

// ResolveInviteLink finds the referrer owning link. Matching is exact and
// case-sensitive.
func (l *Ledger) ResolveInviteLink(link string) Resolution {
	if link == "" {
		return Resolution{}
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	key, ok := l.links[link]
	return Resolution{ReferrerKey: key, Found: ok}
}

// GetOrCreate returns the existing record, or mints a link and creates the
// record. setup, when non-nil, runs on the new record before it is
// persisted. A mint failure creates nothing.
func (l *Ledger) GetOrCreate(ctx context.Context, referrerKey string, now time.Time, mint MintFunc, setup func(rec *model.ReferralRecord)) (*model.ReferralRecord, bool, error) {
	if rec, ok := l.Get(referrerKey); ok {
		return rec, false, nil
	}

	l.createMu.Lock()
	defer l.createMu.Unlock()

	if rec, ok := l.Get(referrerKey); ok {
		return rec, false, nil
	}

	link, err := mint(ctx, referrerKey)
	if err != nil {
		return nil, false, fmt.Errorf("creating invite link: %w", err)
	}
	if link == "" {
		return nil, false, ErrEmptyInviteLink
	}
	if res := l.ResolveInviteLink(link); res.Found {
		return nil, false, fmt.Errorf("%w: %s owned by %s", ErrDuplicateInviteLink, link, res.ReferrerKey)
	}

	rec := model.NewReferralRecord(referrerKey, link, now)
	if setup != nil {
		setup(rec)
	}
	if err := rec.Validate(); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrInvariantViolation, err)
	}

	if err := l.store.SaveRecord(ctx, rec, nil); err != nil {
		return nil, false, fmt.Errorf("persisting new referrer: %w", err)
	}

	l.mu.Lock()
	l.entries[referrerKey] = &entry{rec: rec}
	l.links[link] = referrerKey
	l.mu.Unlock()

	return rec.Clone(), true, nil
}

// Update applies fn to a copy of the referrer's record under the record's
// lock. Dirty changes are validated and persisted before they replace the
// current record. The returned record is a copy of the resulting state.
func (l *Ledger) Update(ctx context.Context, referrerKey string, fn Mutation) (*model.ReferralRecord, Change, error) {
	e := l.lookup(referrerKey)
	if e == nil {
		return nil, Change{}, ErrReferrerNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.rec.Clone()
	change, err := fn(next)
	if err != nil {
		return nil, Change{}, err
	}
	if !change.Dirty {
		return e.rec.Clone(), change, nil
	}

	if err := checkTransition(e.rec, next); err != nil {
		slog.ErrorContext(ctx, "refusing ledger mutation", "referrer_key", referrerKey, "error", err)
		return nil, Change{}, err
	}

	if change.Completion != nil && l.hasCompletion(referrerKey) {
		change.Completion = nil
		change.AlreadyReported = true
	}

	if err := l.store.SaveRecord(ctx, next, change.Completion); err != nil {
		return nil, Change{}, fmt.Errorf("persisting referrer %s: %w", referrerKey, err)
	}

	e.rec = next
	if change.Completion != nil {
		l.mu.Lock()
		l.report[referrerKey] = *change.Completion
		l.mu.Unlock()
	}

	return next.Clone(), change, nil
}

// Census counts referrers by state.
type Census struct {
	InProgress int
	Completed  int
	Expired    int
}

func (l *Ledger) Census() Census {
	l.mu.RLock()
	entries := make([]*entry, 0, len(l.entries))
	for _, e := range l.entries {
		entries = append(entries, e)
	}
	l.mu.RUnlock()

	var c Census
	for _, e := range entries {
		e.mu.Lock()
		completed, expired := e.rec.Completed, e.rec.Expired
		e.mu.Unlock()
		switch {
		case completed:
			c.Completed++
		case expired:
			c.Expired++
		default:
			c.InProgress++
		}
	}
	return c
}

// Keys returns every referrer key in sorted order.
func (l *Ledger) Keys() []string {
	l.mu.RLock()
	keys := make([]string, 0, len(l.entries))
	for key := range l.entries {
		keys = append(keys, key)
	}
	l.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Snapshot returns copies of all records sorted by referrer key.
func (l *Ledger) Snapshot() []*model.ReferralRecord {
	keys := l.Keys()
	out := make([]*model.ReferralRecord, 0, len(keys))
	for _, key := range keys {
		if rec, ok := l.Get(key); ok {
			out = append(out, rec)
		}
	}
	return out
}

// Report returns a copy of the completion report.
func (l *Ledger) Report() map[string]model.CompletionEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]model.CompletionEntry, len(l.report))
	for key, e := range l.report {
		out[key] = e
	}
	return out
}

func (l *Ledger) lookup(referrerKey string) *entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.entries[referrerKey]
}

func (l *Ledger) hasCompletion(referrerKey string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.report[referrerKey]
	return ok
}

// checkTransition enforces the invariants between two versions of a record.
func checkTransition(prev, next *model.ReferralRecord) error {
	if next.ReferrerKey != prev.ReferrerKey || next.InviteLink != prev.InviteLink {
		return fmt.Errorf("%w: identity of %s changed", ErrInvariantViolation, prev.ReferrerKey)
	}
	if prev.Completed && !next.Completed {
		return fmt.Errorf("%w: completion of %s reverted", ErrInvariantViolation, prev.ReferrerKey)
	}
	for invitee := range prev.Members {
		if _, ok := next.Members[invitee]; !ok {
			return fmt.Errorf("%w: invitee %s removed from %s", ErrInvariantViolation, invitee, prev.ReferrerKey)
		}
	}
	if err := next.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvariantViolation, err)
	}
	return nil
}
