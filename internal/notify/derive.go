// Package notify turns ledger outcomes into outbound notifications.
//
// Derivation is pure: it never talks to the platform. Callers hand the
// derived list to a delivery component, which keeps accounting testable
// without a live messaging connection.
package notify

import (
	"time"

	"refledger.app/bot/internal/model"
)

type Kind string

const (
	KindProgress           Kind = "referral.progress"
	KindCompleted          Kind = "referral.completed"
	KindAdminCompleted     Kind = "referral.admin_completed"
	KindDeparted           Kind = "referral.departed"
	KindMissionWarning     Kind = "mission.warning"
	KindMissionExpired     Kind = "mission.expired"
	KindMissionReactivated Kind = "mission.reactivated"
)

// Params carries the values a message template may need.
type Params struct {
	ReferrerKey string
	InviteeKey  string
	Count       int
	Remaining   int
	Threshold   int
	Deadline    time.Time
	Extension   time.Duration
}

type Notification struct {
	RecipientKey string
	Kind         Kind
	Params       Params
}

// Deriver maps outcomes to notifications. AdminKey empty disables admin
// notifications.
type Deriver struct {
	AdminKey  string
	Extension time.Duration
}

func (d Deriver) Derive(outcome model.Outcome) []Notification {
	params := Params{
		ReferrerKey: outcome.ReferrerKey,
		InviteeKey:  outcome.InviteeKey,
		Count:       outcome.Count,
		Remaining:   outcome.Remaining,
		Threshold:   outcome.Threshold,
	}
	if outcome.Record != nil && outcome.Record.MissionEnd != nil {
		params.Deadline = *outcome.Record.MissionEnd
	}

	toReferrer := func(kind Kind) Notification {
		return Notification{RecipientKey: outcome.ReferrerKey, Kind: kind, Params: params}
	}

	switch outcome.Kind {
	case model.OutcomeProgress:
		return []Notification{toReferrer(KindProgress)}
	case model.OutcomeCompleted:
		out := []Notification{toReferrer(KindCompleted)}
		if d.AdminKey != "" {
			out = append(out, Notification{RecipientKey: d.AdminKey, Kind: KindAdminCompleted, Params: params})
		}
		return out
	case model.OutcomeDeparted:
		return []Notification{toReferrer(KindDeparted)}
	case model.OutcomeMissionWarned:
		n := toReferrer(KindMissionWarning)
		n.Params.Extension = d.Extension
		return []Notification{n}
	case model.OutcomeMissionExpired:
		return []Notification{toReferrer(KindMissionExpired)}
	case model.OutcomeMissionReactivated:
		return []Notification{toReferrer(KindMissionReactivated)}
	default:
		// ignored events and over-threshold joins are not announced
		return nil
	}
}
