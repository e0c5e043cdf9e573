package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"refledger.app/bot/common/logger"
	"refledger.app/bot/internal/ledger"
	"refledger.app/bot/internal/metrics"
	"refledger.app/bot/internal/model"
	"refledger.app/bot/internal/notify"
)

// MembershipService applies membership events to the ledger.
type MembershipService interface {
	// Apply is idempotent for replayed events. The ledger change is durable
	// when Apply returns without error; notifications are sent afterwards.
	Apply(ctx context.Context, event model.MembershipEvent) (model.Outcome, error)
}

type membershipService struct {
	ledger    *ledger.Ledger
	deriver   notify.Deriver
	notifier  Notifier
	threshold int
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

func NewMembershipService(l *ledger.Ledger, deriver notify.Deriver, notifier Notifier, threshold int, m *metrics.Metrics, log *slog.Logger) MembershipService {
	if log == nil {
		log = slog.Default()
	}
	if threshold <= 0 {
		threshold = model.DefaultThreshold
	}
	return &membershipService{
		ledger:    l,
		deriver:   deriver,
		notifier:  notifier,
		threshold: threshold,
		metrics:   m,
		logger:    log,
		now:       time.Now,
	}
}

func (s *membershipService) Apply(ctx context.Context, event model.MembershipEvent) (model.Outcome, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		InviteeKey: &event.InviteeKey,
		EventType:  logger.Ptr(string(event.Status)),
	})

	outcome, err := s.apply(ctx, event)
	if err != nil {
		return outcome, err
	}

	s.metrics.RecordOutcome(string(outcome.Kind), string(outcome.Reason))
	if outcome.Ignored() {
		s.logger.DebugContext(ctx, "membership event ignored", "reason", outcome.Reason)
		return outcome, nil
	}

	s.logger.InfoContext(ctx, "membership event applied",
		"referrer_key", outcome.ReferrerKey,
		"outcome", outcome.Kind,
		"count", outcome.Count)

	s.notifier.Dispatch(ctx, s.deriver.Derive(outcome))
	return outcome, nil
}

func (s *membershipService) apply(ctx context.Context, event model.MembershipEvent) (model.Outcome, error) {
	outcome := model.Outcome{
		Kind:       model.OutcomeIgnored,
		InviteeKey: event.InviteeKey,
		Threshold:  s.threshold,
	}

	var mutate ledger.Mutation
	switch event.Status {
	case model.MemberStatusMember:
		mutate = s.join(event.InviteeKey, &outcome)
	case model.MemberStatusLeft, model.MemberStatusKicked:
		mutate = s.leave(event.InviteeKey, &outcome)
	default:
		outcome.Reason = model.IgnoreOtherStatus
		return outcome, nil
	}

	if event.InviteLink == "" {
		outcome.Reason = model.IgnoreNoInviteLink
		return outcome, nil
	}
	res := s.ledger.ResolveInviteLink(event.InviteLink)
	if !res.Found {
		outcome.Reason = model.IgnoreUnknownInviteLink
		return outcome, nil
	}
	outcome.ReferrerKey = res.ReferrerKey

	rec, change, err := s.ledger.Update(ctx, res.ReferrerKey, mutate)
	if err != nil {
		if errors.Is(err, ledger.ErrReferrerNotFound) {
			outcome.Reason = model.IgnoreUnknownInviteLink
			return outcome, nil
		}
		return model.Outcome{}, fmt.Errorf("applying membership event: %w", err)
	}

	outcome.Record = rec
	outcome.Count = rec.Count
	outcome.Remaining = rec.Remaining(s.threshold)
	outcome.Completion = change.Completion
	if change.Completion != nil || change.AlreadyReported {
		publishReferrers(s.ledger, s.metrics)
	}
	if change.AlreadyReported && outcome.Kind == model.OutcomeCompleted {
		// The report already credits this referrer; only one completion is
		// ever announced.
		s.logger.WarnContext(ctx, "completion already reported", "referrer_key", res.ReferrerKey)
		outcome.Kind = model.OutcomeOverThreshold
	}
	return outcome, nil
}

func (s *membershipService) join(inviteeKey string, outcome *model.Outcome) ledger.Mutation {
	return func(rec *model.ReferralRecord) (ledger.Change, error) {
		if !rec.Join(inviteeKey) {
			outcome.Kind = model.OutcomeIgnored
			outcome.Reason = model.IgnoreDuplicateJoin
			return ledger.Change{}, nil
		}

		change := ledger.Change{Dirty: true}
		switch {
		case rec.Count < s.threshold:
			outcome.Kind = model.OutcomeProgress
		case rec.MarkCompleted(s.now()):
			outcome.Kind = model.OutcomeCompleted
			change.Completion = &model.CompletionEntry{
				Status:      model.CompletionStatusCompleted,
				Count:       rec.Count,
				CompletedAt: *rec.CompletedAt,
			}
		default:
			outcome.Kind = model.OutcomeOverThreshold
		}
		return change, nil
	}
}

func (s *membershipService) leave(inviteeKey string, outcome *model.Outcome) ledger.Mutation {
	return func(rec *model.ReferralRecord) (ledger.Change, error) {
		if !rec.Leave(inviteeKey) {
			outcome.Kind = model.OutcomeIgnored
			outcome.Reason = model.IgnoreNotCounted
			return ledger.Change{}, nil
		}
		outcome.Kind = model.OutcomeDeparted
		return ledger.Change{Dirty: true}, nil
	}
}
