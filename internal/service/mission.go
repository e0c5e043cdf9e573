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

var ErrReferrerNotFound = errors.New("referrer not found")

type MissionConfig struct {
	Window    time.Duration
	Extension time.Duration
	Threshold int
}

type TickResult struct {
	Checked int
	Warned  int
	Expired int
	Failed  int
}

// MissionService advances the time-boxed mission attached to each referrer:
// active, then warned with a one-time extension, then expired.
type MissionService interface {
	// Tick evaluates every referrer against now. It stops between referrers
	// when ctx is cancelled.
	Tick(ctx context.Context, now time.Time) (TickResult, error)
	// Reactivate restarts the mission window of referrerKey at now. Count,
	// members and completion are untouched.
	Reactivate(ctx context.Context, referrerKey string, now time.Time) (*model.ReferralRecord, error)
}

type missionService struct {
	ledger   *ledger.Ledger
	deriver  notify.Deriver
	notifier Notifier
	cfg      MissionConfig
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewMissionService(l *ledger.Ledger, deriver notify.Deriver, notifier Notifier, cfg MissionConfig, m *metrics.Metrics, log *slog.Logger) MissionService {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = model.DefaultThreshold
	}
	return &missionService{
		ledger:   l,
		deriver:  deriver,
		notifier: notifier,
		cfg:      cfg,
		metrics:  m,
		logger:   log,
	}
}

func (s *missionService) Tick(ctx context.Context, now time.Time) (TickResult, error) {
	var res TickResult
	defer func() {
		if res.Expired > 0 {
			publishReferrers(s.ledger, s.metrics)
		}
	}()

	for _, key := range s.ledger.Keys() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Checked++

		keyCtx := logger.WithLogFields(ctx, logger.LogFields{ReferrerKey: logger.Ptr(key)})
		outcome, err := s.advance(keyCtx, key, now)
		if err != nil {
			res.Failed++
			s.logger.ErrorContext(keyCtx, "mission transition failed", "error", err)
			continue
		}

		switch outcome.Kind {
		case model.OutcomeMissionWarned:
			res.Warned++
		case model.OutcomeMissionExpired:
			res.Expired++
		default:
			continue
		}

		s.metrics.RecordMissionTransition(string(outcome.Kind))
		s.logger.InfoContext(keyCtx, "mission transition",
			"outcome", outcome.Kind,
			"count", outcome.Count,
			"mission_end", outcome.Record.MissionEnd)
		s.notifier.Dispatch(keyCtx, s.deriver.Derive(outcome))
	}
	return res, nil
}

// advance applies at most one transition. Expiry wins when the warning was
// never delivered and the final deadline already passed.
func (s *missionService) advance(ctx context.Context, key string, now time.Time) (model.Outcome, error) {
	outcome := model.Outcome{Kind: model.OutcomeIgnored, ReferrerKey: key, Threshold: s.cfg.Threshold}

	rec, _, err := s.ledger.Update(ctx, key, func(rec *model.ReferralRecord) (ledger.Change, error) {
		if !rec.MissionActive() {
			return ledger.Change{}, nil
		}

		deadline := *rec.MissionEnd
		if !rec.Extended {
			deadline = deadline.Add(s.cfg.Extension)
		}
		if !now.Before(deadline) {
			rec.Expire()
			outcome.Kind = model.OutcomeMissionExpired
			return ledger.Change{Dirty: true}, nil
		}

		if !rec.Extended && !now.Before(*rec.MissionEnd) {
			rec.Extend(s.cfg.Extension)
			outcome.Kind = model.OutcomeMissionWarned
			return ledger.Change{Dirty: true}, nil
		}
		return ledger.Change{}, nil
	})
	if err != nil {
		if errors.Is(err, ledger.ErrReferrerNotFound) {
			return outcome, nil
		}
		return model.Outcome{}, err
	}

	outcome.Record = rec
	outcome.Count = rec.Count
	outcome.Remaining = rec.Remaining(s.cfg.Threshold)
	return outcome, nil
}

func (s *missionService) Reactivate(ctx context.Context, referrerKey string, now time.Time) (*model.ReferralRecord, error) {
	rec, _, err := s.ledger.Update(ctx, referrerKey, func(rec *model.ReferralRecord) (ledger.Change, error) {
		rec.Reactivate(now, s.cfg.Window)
		return ledger.Change{Dirty: true}, nil
	})
	if err != nil {
		if errors.Is(err, ledger.ErrReferrerNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrReferrerNotFound, referrerKey)
		}
		return nil, fmt.Errorf("reactivating mission: %w", err)
	}

	s.metrics.RecordMissionTransition(string(model.OutcomeMissionReactivated))
	publishReferrers(s.ledger, s.metrics)
	s.logger.InfoContext(ctx, "mission reactivated", "referrer_key", referrerKey, "mission_end", rec.MissionEnd)

	s.notifier.Dispatch(ctx, s.deriver.Derive(model.Outcome{
		Kind:        model.OutcomeMissionReactivated,
		ReferrerKey: referrerKey,
		Count:       rec.Count,
		Remaining:   rec.Remaining(s.cfg.Threshold),
		Threshold:   s.cfg.Threshold,
		Record:      rec,
	}))
	return rec, nil
}
