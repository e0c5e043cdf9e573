package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"refledger.app/bot/internal/ledger"
	"refledger.app/bot/internal/metrics"
	"refledger.app/bot/internal/model"
)

var ErrInvalidTarget = errors.New("invalid referrer id")

// StatusReport partitions the ledger for the admin overview. Both lists are
// sorted by referrer key.
type StatusReport struct {
	InProgress []*model.ReferralRecord
	Completed  []*model.ReferralRecord
}

type ReferralService interface {
	// IssueLink returns the referrer's link, minting one on first use.
	IssueLink(ctx context.Context, referrerKey string) (*model.ReferralRecord, bool, error)
	Get(ctx context.Context, referrerKey string) (*model.ReferralRecord, error)
	Status(ctx context.Context) StatusReport
	// Reactivate parses rawTarget as a user id and restarts that referrer's mission.
	Reactivate(ctx context.Context, rawTarget string) (*model.ReferralRecord, error)
	Export(ctx context.Context) model.LedgerExport
}

type ReferralConfig struct {
	MissionsEnabled bool
	Window          time.Duration
	Threshold       int
}

type referralService struct {
	ledger   *ledger.Ledger
	platform Platform
	missions MissionService
	cfg      ReferralConfig
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

func NewReferralService(l *ledger.Ledger, platform Platform, missions MissionService, cfg ReferralConfig, m *metrics.Metrics, log *slog.Logger) ReferralService {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = model.DefaultThreshold
	}
	return &referralService{
		ledger:   l,
		platform: platform,
		missions: missions,
		cfg:      cfg,
		metrics:  m,
		logger:   log,
		now:      time.Now,
	}
}

func (s *referralService) IssueLink(ctx context.Context, referrerKey string) (*model.ReferralRecord, bool, error) {
	if _, err := ParseUserKey(referrerKey); err != nil {
		return nil, false, err
	}

	now := s.now()
	var setup func(rec *model.ReferralRecord)
	if s.cfg.MissionsEnabled {
		setup = func(rec *model.ReferralRecord) {
			rec.StartMission(now, s.cfg.Window)
		}
	}

	rec, created, err := s.ledger.GetOrCreate(ctx, referrerKey, now, s.platform.CreateInviteLink, setup)
	if err != nil {
		return nil, false, fmt.Errorf("issuing invite link: %w", err)
	}
	if created {
		s.logger.InfoContext(ctx, "invite link issued", "referrer_key", referrerKey, "invite_link", rec.InviteLink)
		publishReferrers(s.ledger, s.metrics)
	}
	return rec, created, nil
}

func (s *referralService) Get(ctx context.Context, referrerKey string) (*model.ReferralRecord, error) {
	rec, ok := s.ledger.Get(referrerKey)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrReferrerNotFound, referrerKey)
	}
	return rec, nil
}

func (s *referralService) Status(ctx context.Context) StatusReport {
	var report StatusReport
	for _, rec := range s.ledger.Snapshot() {
		if rec.Completed {
			report.Completed = append(report.Completed, rec)
		} else {
			report.InProgress = append(report.InProgress, rec)
		}
	}
	return report
}

func (s *referralService) Reactivate(ctx context.Context, rawTarget string) (*model.ReferralRecord, error) {
	key, err := ParseUserKey(rawTarget)
	if err != nil {
		return nil, err
	}
	return s.missions.Reactivate(ctx, key, s.now())
}

func (s *referralService) Export(ctx context.Context) model.LedgerExport {
	snapshot := s.ledger.Snapshot()
	referrers := make([]model.ReferralRecord, 0, len(snapshot))
	for _, rec := range snapshot {
		referrers = append(referrers, *rec)
	}
	return model.LedgerExport{
		GeneratedAt:      s.now().UTC(),
		Threshold:        s.cfg.Threshold,
		Referrers:        referrers,
		CompletionReport: s.ledger.Report(),
	}
}

// publishReferrers refreshes the referrer gauge after any change that can
// move a referrer between states.
func publishReferrers(l *ledger.Ledger, m *metrics.Metrics) {
	c := l.Census()
	m.SetReferrers(c.InProgress, c.Completed, c.Expired)
}

// ParseUserKey validates a platform user id and returns its canonical form.
func ParseUserKey(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidTarget)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return "", fmt.Errorf("%w: %q", ErrInvalidTarget, raw)
	}
	return strconv.FormatInt(id, 10), nil
}
