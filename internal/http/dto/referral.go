package dto

import (
	"time"

	"refledger.app/bot/internal/model"
)

type IssueLinkRequest struct {
	ReferrerKey string `json:"referrer_key" binding:"required,numeric,max=20"`
}

type IssueLinkResponse struct {
	Referrer *ReferrerResponse `json:"referrer"`
	Created  bool              `json:"created"`
}

type MissionResponse struct {
	State     string    `json:"state"`
	StartedAt time.Time `json:"started_at"`
	EndsAt    time.Time `json:"ends_at"`
	Extended  bool      `json:"extended"`
}

type ReferrerResponse struct {
	ReferrerKey string           `json:"referrer_key"`
	InviteLink  string           `json:"invite_link"`
	Count       int              `json:"count"`
	Remaining   int              `json:"remaining"`
	Completed   bool             `json:"completed"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	Mission     *MissionResponse `json:"mission,omitempty"`
}

type ReferrersResponse struct {
	InProgress []*ReferrerResponse `json:"in_progress"`
	Completed  []*ReferrerResponse `json:"completed"`
}

func ToReferrerResponse(rec *model.ReferralRecord, threshold int) *ReferrerResponse {
	resp := &ReferrerResponse{
		ReferrerKey: rec.ReferrerKey,
		InviteLink:  rec.InviteLink,
		Count:       rec.Count,
		Remaining:   rec.Remaining(threshold),
		Completed:   rec.Completed,
		CompletedAt: rec.CompletedAt,
		CreatedAt:   rec.CreatedAt,
	}
	if rec.HasMission() {
		resp.Mission = &MissionResponse{
			State:     missionState(rec),
			StartedAt: *rec.MissionStart,
			EndsAt:    *rec.MissionEnd,
			Extended:  rec.Extended,
		}
	}
	return resp
}

func ToReferrersResponse(inProgress, completed []*model.ReferralRecord, threshold int) ReferrersResponse {
	resp := ReferrersResponse{
		InProgress: make([]*ReferrerResponse, 0, len(inProgress)),
		Completed:  make([]*ReferrerResponse, 0, len(completed)),
	}
	for _, rec := range inProgress {
		resp.InProgress = append(resp.InProgress, ToReferrerResponse(rec, threshold))
	}
	for _, rec := range completed {
		resp.Completed = append(resp.Completed, ToReferrerResponse(rec, threshold))
	}
	return resp
}

func missionState(rec *model.ReferralRecord) string {
	switch {
	case rec.Completed:
		return "completed"
	case rec.Expired:
		return "expired"
	case rec.Extended:
		return "extended"
	default:
		return "active"
	}
}
