package model

import (
	"fmt"
	"time"
)

// DefaultThreshold is the number of counted invitees that completes a mission.
const DefaultThreshold = 10

// ReferralRecord is the ledger entry of one referrer. Fields are exported for
// persistence; mutate only through the methods below so Count never drifts
// from Members.
type ReferralRecord struct {
	ReferrerKey  string          `json:"referrer_key"`
	InviteLink   string          `json:"invite_link"`
	Members      map[string]bool `json:"members"`
	Count        int             `json:"count"`
	Completed    bool            `json:"completed"`
	MissionStart *time.Time      `json:"mission_start,omitempty"`
	MissionEnd   *time.Time      `json:"mission_end,omitempty"`
	Extended     bool            `json:"extended"`
	Expired      bool            `json:"expired"`
	CreatedAt    time.Time       `json:"created_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// CompletionStatusCompleted is the only status written to the completion report.
const CompletionStatusCompleted = "completed"

// CompletionEntry is one row of the append-only completion report.
type CompletionEntry struct {
	Status      string    `json:"status"`
	Count       int       `json:"count"`
	CompletedAt time.Time `json:"completed_at"`
}

func NewReferralRecord(referrerKey, inviteLink string, now time.Time) *ReferralRecord {
	return &ReferralRecord{
		ReferrerKey: referrerKey,
		InviteLink:  inviteLink,
		Members:     make(map[string]bool),
		CreatedAt:   now,
	}
}

// Clone returns a deep copy.
func (r *ReferralRecord) Clone() *ReferralRecord {
	out := *r
	out.Members = make(map[string]bool, len(r.Members))
	for k, v := range r.Members {
		out.Members[k] = v
	}
	out.MissionStart = cloneTime(r.MissionStart)
	out.MissionEnd = cloneTime(r.MissionEnd)
	out.CompletedAt = cloneTime(r.CompletedAt)
	return &out
}

// Join flags the invitee as counted. It reports false when the invitee is
// already counted (duplicate join delivery).
func (r *ReferralRecord) Join(inviteeKey string) bool {
	if r.Members == nil {
		r.Members = make(map[string]bool)
	}
	if r.Members[inviteeKey] {
		return false
	}
	r.Members[inviteeKey] = true
	r.Count++
	return true
}

// Leave unflags a counted invitee. It reports false when the invitee was never
// counted or already left.
func (r *ReferralRecord) Leave(inviteeKey string) bool {
	if !r.Members[inviteeKey] {
		return false
	}
	r.Members[inviteeKey] = false
	r.Count = max(0, r.Count-1)
	return true
}

// MarkCompleted sets Completed once. It reports false if already completed.
func (r *ReferralRecord) MarkCompleted(now time.Time) bool {
	if r.Completed {
		return false
	}
	r.Completed = true
	r.CompletedAt = &now
	return true
}

// Remaining is how many more invitees are needed to reach threshold, never negative.
func (r *ReferralRecord) Remaining(threshold int) int {
	return max(0, threshold-r.Count)
}

func (r *ReferralRecord) HasMission() bool {
	return r.MissionStart != nil && r.MissionEnd != nil
}

// MissionActive reports whether the lifecycle tick still has to look at this record.
func (r *ReferralRecord) MissionActive() bool {
	return r.HasMission() && !r.Completed && !r.Expired
}

func (r *ReferralRecord) StartMission(now time.Time, window time.Duration) {
	start := now
	end := now.Add(window)
	r.MissionStart = &start
	r.MissionEnd = &end
	r.Extended = false
	r.Expired = false
}

// Extend grants the one-time extension, pushing MissionEnd by ext.
func (r *ReferralRecord) Extend(ext time.Duration) bool {
	if r.Extended || !r.HasMission() {
		return false
	}
	end := r.MissionEnd.Add(ext)
	r.MissionEnd = &end
	r.Extended = true
	return true
}

func (r *ReferralRecord) Expire() bool {
	if r.Expired {
		return false
	}
	r.Expired = true
	return true
}

// Reactivate restarts the mission window. Referral history is kept.
func (r *ReferralRecord) Reactivate(now time.Time, window time.Duration) {
	r.StartMission(now, window)
}

// Validate checks the record invariants.
func (r *ReferralRecord) Validate() error {
	if r.ReferrerKey == "" {
		return fmt.Errorf("empty referrer key")
	}
	if r.InviteLink == "" {
		return fmt.Errorf("referrer %s has no invite link", r.ReferrerKey)
	}
	if r.Count < 0 {
		return fmt.Errorf("referrer %s has negative count %d", r.ReferrerKey, r.Count)
	}
	if counted := r.CountedMembers(); counted != r.Count {
		return fmt.Errorf("referrer %s count %d does not match %d counted members", r.ReferrerKey, r.Count, counted)
	}
	return nil
}

// CountedMembers recomputes the count from Members.
func (r *ReferralRecord) CountedMembers() int {
	n := 0
	for _, counted := range r.Members {
		if counted {
			n++
		}
	}
	return n
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
