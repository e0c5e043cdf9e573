package service

import (
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"refledger.app/bot/internal/ledger"
	"refledger.app/bot/internal/metrics"
	"refledger.app/bot/internal/notify"
	"refledger.app/bot/internal/queue"
)

type Config struct {
	// AdminKey is empty when no admin is configured.
	AdminKey        string
	Language        string
	Threshold       int
	MissionsEnabled bool
	Window          time.Duration
	Extension       time.Duration
}

type Deps struct {
	Ledger   *ledger.Ledger
	Platform Platform
	Producer queue.Producer
	Deduper  UpdateDeduper
	Limiter  *rate.Limiter
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

type Services struct {
	membership   MembershipService
	missions     MissionService
	referrals    ReferralService
	updateIngest UpdateIngestService
}

// NewServices expects deps.Ledger to be loaded already; it seeds the
// referrer gauge from it.
func NewServices(deps Deps, cfg Config) *Services {
	publishReferrers(deps.Ledger, deps.Metrics)

	renderer := notify.NewRenderer(cfg.Language)
	deriver := notify.Deriver{AdminKey: cfg.AdminKey, Extension: cfg.Extension}
	notifier := NewNotifier(deps.Platform, renderer, deps.Limiter, deps.Metrics, deps.Logger)

	missions := NewMissionService(deps.Ledger, deriver, notifier, MissionConfig{
		Window:    cfg.Window,
		Extension: cfg.Extension,
		Threshold: cfg.Threshold,
	}, deps.Metrics, deps.Logger)

	referrals := NewReferralService(deps.Ledger, deps.Platform, missions, ReferralConfig{
		MissionsEnabled: cfg.MissionsEnabled,
		Window:          cfg.Window,
		Threshold:       cfg.Threshold,
	}, deps.Metrics, deps.Logger)

	return &Services{
		membership: NewMembershipService(deps.Ledger, deriver, notifier, cfg.Threshold, deps.Metrics, deps.Logger),
		missions:   missions,
		referrals:  referrals,
		updateIngest: NewUpdateIngestService(referrals, deps.Platform, renderer, deps.Producer, deps.Deduper,
			cfg.AdminKey, deps.Metrics, deps.Logger),
	}
}

func (s *Services) Membership() MembershipService {
	return s.membership
}

func (s *Services) Missions() MissionService {
	return s.missions
}

func (s *Services) Referrals() ReferralService {
	return s.referrals
}

func (s *Services) UpdateIngest() UpdateIngestService {
	return s.updateIngest
}
