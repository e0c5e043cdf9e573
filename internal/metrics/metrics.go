// Package metrics exposes the bot's Prometheus collectors.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	initOnce sync.Once
	shared   *Metrics
)

type Metrics struct {
	outcomes      *prometheus.CounterVec
	notifications *prometheus.CounterVec
	updates       *prometheus.CounterVec
	missions      *prometheus.CounterVec
	queue         *prometheus.CounterVec
	referrers     *prometheus.GaugeVec
}

// Default returns the process-wide collectors, registering them on first use.
func Default() *Metrics {
	initOnce.Do(func() {
		m := &Metrics{
			outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "refbot_membership_outcomes_total",
				Help: "Membership events processed, by outcome kind and ignore reason.",
			}, []string{"kind", "reason"}),
			notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "refbot_notifications_total",
				Help: "Notification deliveries by kind and result.",
			}, []string{"kind", "result"}),
			updates: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "refbot_updates_total",
				Help: "Platform updates received, by type and handling result.",
			}, []string{"type", "result"}),
			missions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "refbot_mission_transitions_total",
				Help: "Mission lifecycle transitions.",
			}, []string{"transition"}),
			queue: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "refbot_queue_messages_total",
				Help: "Queue messages by result (acked, requeued, dead_lettered, reclaimed, dropped).",
			}, []string{"result"}),
			referrers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "refbot_referrers",
				Help: "Referrers in the ledger by state.",
			}, []string{"state"}),
		}
		prometheus.MustRegister(m.outcomes, m.notifications, m.updates, m.missions, m.queue, m.referrers)
		shared = m
	})
	return shared
}

func (m *Metrics) RecordOutcome(kind, reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "none"
	}
	m.outcomes.WithLabelValues(kind, reason).Inc()
}

func (m *Metrics) RecordNotification(kind string, delivered bool) {
	if m == nil {
		return
	}
	result := "delivered"
	if !delivered {
		result = "failed"
	}
	m.notifications.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) RecordUpdate(updateType, result string) {
	if m == nil {
		return
	}
	m.updates.WithLabelValues(updateType, result).Inc()
}

func (m *Metrics) RecordMissionTransition(transition string) {
	if m == nil {
		return
	}
	m.missions.WithLabelValues(transition).Inc()
}

func (m *Metrics) RecordQueue(result string) {
	if m == nil {
		return
	}
	m.queue.WithLabelValues(result).Inc()
}

// SetReferrers publishes ledger population by state.
func (m *Metrics) SetReferrers(inProgress, completed, expired int) {
	if m == nil {
		return
	}
	m.referrers.WithLabelValues("in_progress").Set(float64(inProgress))
	m.referrers.WithLabelValues("completed").Set(float64(completed))
	m.referrers.WithLabelValues("expired").Set(float64(expired))
}
