package model

import "strings"

type MemberStatus string

const (
	MemberStatusMember MemberStatus = "member"
	MemberStatusLeft   MemberStatus = "left"
	MemberStatusKicked MemberStatus = "kicked"
	MemberStatusOther  MemberStatus = "other"
)

// ParseMemberStatus maps a platform status string onto the statuses the
// ledger understands. Anything else (administrator, restricted, ...) is Other.
func ParseMemberStatus(raw string) MemberStatus {
	switch MemberStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case MemberStatusMember:
		return MemberStatusMember
	case MemberStatusLeft:
		return MemberStatusLeft
	case MemberStatusKicked:
		return MemberStatusKicked
	default:
		return MemberStatusOther
	}
}

// MembershipEvent is one join/leave observation for the tracked channel.
// InviteLink is empty when the platform did not attribute the join to a link.
type MembershipEvent struct {
	EventID    int64        `json:"event_id"`
	InviteeKey string       `json:"invitee_key"`
	Status     MemberStatus `json:"status"`
	InviteLink string       `json:"invite_link,omitempty"`
}

type OutcomeKind string

const (
	OutcomeIgnored   OutcomeKind = "ignored"
	OutcomeProgress  OutcomeKind = "progress"
	OutcomeCompleted OutcomeKind = "completed"
	// OutcomeOverThreshold is a counted join after completion; it is not announced.
	OutcomeOverThreshold OutcomeKind = "over_threshold"
	OutcomeDeparted      OutcomeKind = "departed"

	OutcomeMissionWarned      OutcomeKind = "mission_warned"
	OutcomeMissionExpired     OutcomeKind = "mission_expired"
	OutcomeMissionReactivated OutcomeKind = "mission_reactivated"
)

type IgnoreReason string

const (
	IgnoreNoInviteLink      IgnoreReason = "no_invite_link"
	IgnoreUnknownInviteLink IgnoreReason = "unknown_invite_link"
	IgnoreDuplicateJoin     IgnoreReason = "duplicate_join"
	IgnoreNotCounted        IgnoreReason = "not_counted"
	IgnoreOtherStatus       IgnoreReason = "other_status"
)

// Outcome describes what a ledger transition did. It is the input of
// notification derivation.
type Outcome struct {
	Kind        OutcomeKind
	Reason      IgnoreReason
	ReferrerKey string
	InviteeKey  string
	Count       int
	Remaining   int
	Threshold   int
	Record      *ReferralRecord
	Completion  *CompletionEntry
}

func (o Outcome) Ignored() bool {
	return o.Kind == OutcomeIgnored
}
