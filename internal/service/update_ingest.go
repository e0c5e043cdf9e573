package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"refledger.app/bot/common/id"
	"refledger.app/bot/common/logger"
	"refledger.app/bot/internal/metrics"
	"refledger.app/bot/internal/model"
	"refledger.app/bot/internal/notify"
	"refledger.app/bot/internal/queue"
)

// UpdateDeduper drops platform redeliveries of the same update.
type UpdateDeduper interface {
	FirstSeen(ctx context.Context, updateID int64) (bool, error)
	Forget(ctx context.Context, updateID int64) error
}

// UpdateIngestService routes translated platform updates: commands are
// answered inline, membership events are queued for the worker.
type UpdateIngestService interface {
	Handle(ctx context.Context, update model.Update) error
}

type updateIngestService struct {
	referrals ReferralService
	platform  Platform
	renderer  *notify.Renderer
	producer  queue.Producer
	deduper   UpdateDeduper
	adminKey  string
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewUpdateIngestService(referrals ReferralService, platform Platform, renderer *notify.Renderer, producer queue.Producer, deduper UpdateDeduper, adminKey string, m *metrics.Metrics, log *slog.Logger) UpdateIngestService {
	if log == nil {
		log = slog.Default()
	}
	return &updateIngestService{
		referrals: referrals,
		platform:  platform,
		renderer:  renderer,
		producer:  producer,
		deduper:   deduper,
		adminKey:  adminKey,
		metrics:   m,
		logger:    log,
	}
}

func (s *updateIngestService) Handle(ctx context.Context, update model.Update) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{UpdateID: logger.Ptr(update.UpdateID)})

	updateType := "other"
	switch {
	case update.Command != nil:
		updateType = "command"
	case update.Membership != nil:
		updateType = "membership"
	}

	if updateType == "other" {
		s.metrics.RecordUpdate(updateType, "ignored")
		return nil
	}

	if s.deduper != nil {
		first, err := s.deduper.FirstSeen(ctx, update.UpdateID)
		if err != nil {
			// processing stays idempotent without the dedupe key
			s.logger.WarnContext(ctx, "update dedupe unavailable", "error", err)
		} else if !first {
			s.logger.DebugContext(ctx, "duplicate update dropped")
			s.metrics.RecordUpdate(updateType, "duplicate")
			return nil
		}
	}

	var err error
	if update.Command != nil {
		err = s.handleCommand(ctx, *update.Command)
	} else {
		err = s.enqueueMembership(ctx, update.UpdateID, *update.Membership)
	}

	if err != nil {
		s.metrics.RecordUpdate(updateType, "failed")
		if s.deduper != nil {
			if forgetErr := s.deduper.Forget(ctx, update.UpdateID); forgetErr != nil {
				s.logger.WarnContext(ctx, "releasing dedupe key failed", "error", forgetErr)
			}
		}
		return err
	}
	s.metrics.RecordUpdate(updateType, "accepted")
	return nil
}

func (s *updateIngestService) enqueueMembership(ctx context.Context, updateID int64, event model.MembershipEvent) error {
	task := queue.MembershipTask{
		EventID:     id.New(),
		UpdateID:    updateID,
		InviteeKey:  event.InviteeKey,
		Status:      string(event.Status),
		InviteLink:  event.InviteLink,
		Attempt:     1,
		Traceparent: logger.TraceparentOf(ctx),
	}

	if err := s.producer.Enqueue(ctx, task); err != nil {
		return fmt.Errorf("enqueueing membership event: %w", err)
	}
	return nil
}

func (s *updateIngestService) handleCommand(ctx context.Context, cmd model.Command) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ReferrerKey: logger.Ptr(cmd.SenderKey),
		EventType:   logger.Ptr(string(cmd.Name)),
	})

	var reply string
	switch cmd.Name {
	case model.CommandStart:
		reply = s.start(ctx, cmd)
	case model.CommandStatus:
		if !s.isAdmin(cmd.SenderKey) {
			reply = s.renderer.Text(notify.MsgNotAdmin)
			break
		}
		reply = s.status(ctx)
	case model.CommandReactivate:
		if !s.isAdmin(cmd.SenderKey) {
			reply = s.renderer.Text(notify.MsgNotAdmin)
			break
		}
		reply = s.reactivate(ctx, cmd.Args)
	default:
		return nil
	}

	if err := s.platform.SendMessage(ctx, cmd.ChatKey, reply); err != nil {
		s.logger.WarnContext(ctx, "command reply failed", "command", cmd.Name, "error", err)
	}
	return nil
}

func (s *updateIngestService) start(ctx context.Context, cmd model.Command) string {
	rec, created, err := s.referrals.IssueLink(ctx, cmd.SenderKey)
	if err != nil {
		s.logger.ErrorContext(ctx, "issuing invite link failed", "error", err)
		return s.renderer.Text(notify.MsgLinkFailed)
	}
	if created {
		return s.renderer.Text(notify.MsgLinkIssued, rec.InviteLink)
	}
	return s.renderer.Text(notify.MsgLinkExisting, rec.InviteLink)
}

func (s *updateIngestService) status(ctx context.Context) string {
	report := s.referrals.Status(ctx)
	rows := make([]notify.StatusRow, 0, len(report.InProgress)+len(report.Completed))
	for _, group := range [][]*model.ReferralRecord{report.InProgress, report.Completed} {
		for _, rec := range group {
			row := notify.StatusRow{
				ReferrerKey: rec.ReferrerKey,
				InviteLink:  rec.InviteLink,
				Count:       rec.Count,
				Completed:   rec.Completed,
			}
			if rec.MissionActive() {
				row.Deadline = rec.MissionEnd
			}
			rows = append(rows, row)
		}
	}
	return s.renderer.StatusReport(rows)
}

func (s *updateIngestService) reactivate(ctx context.Context, rawTarget string) string {
	rec, err := s.referrals.Reactivate(ctx, rawTarget)
	switch {
	case err == nil:
		return s.renderer.Text(notify.MsgReactivateDone, rec.ReferrerKey)
	case errors.Is(err, ErrInvalidTarget):
		return s.renderer.Text(notify.MsgReactivateUsage)
	case errors.Is(err, ErrReferrerNotFound):
		return s.renderer.Text(notify.MsgReactivateUnknown, rawTarget)
	default:
		s.logger.ErrorContext(ctx, "reactivation failed", "target", rawTarget, "error", err)
		return s.renderer.Text(notify.MsgReactivateFailed)
	}
}

func (s *updateIngestService) isAdmin(senderKey string) bool {
	return s.adminKey != "" && senderKey == s.adminKey
}
