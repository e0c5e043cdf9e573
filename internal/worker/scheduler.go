package worker

import (
	"context"
	"log/slog"
	"time"

	"refledger.app/bot/common/logger"
	"refledger.app/bot/internal/service"
)

// MissionScheduler drives the mission lifecycle on a fixed interval.
type MissionScheduler struct {
	missions service.MissionService
	interval time.Duration
	now      func() time.Time

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func NewMissionScheduler(missions service.MissionService, interval time.Duration) *MissionScheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &MissionScheduler{
		missions:  missions,
		interval:  interval,
		now:       time.Now,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Run ticks until ctx is done or Stop is called. The first tick runs
// immediately so missions that lapsed during downtime are handled on start.
func (s *MissionScheduler) Run(ctx context.Context) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "refbot.worker.scheduler",
	})
	defer close(s.stoppedCh)

	slog.InfoContext(ctx, "mission scheduler started", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			slog.InfoContext(ctx, "mission scheduler stopping")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *MissionScheduler) Stop() {
	close(s.stopCh)
	<-s.stoppedCh
}

func (s *MissionScheduler) tick(ctx context.Context) {
	res, err := s.missions.Tick(ctx, s.now())
	if err != nil {
		slog.WarnContext(ctx, "mission tick interrupted", "error", err, "checked", res.Checked)
		return
	}
	if res.Warned > 0 || res.Expired > 0 || res.Failed > 0 {
		slog.InfoContext(ctx, "mission tick",
			"checked", res.Checked,
			"warned", res.Warned,
			"expired", res.Expired,
			"failed", res.Failed)
	}
}
