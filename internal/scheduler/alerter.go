package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/metrics"
	"github.com/hamed0406/sitewatch/internal/notify"
	"github.com/hamed0406/sitewatch/internal/repo"
)

// PolicyState is the notification state of a target after one check.
type PolicyState string

const (
	// Healthy: online, and was not down before this check.
	Healthy PolicyState = "healthy"
	// Failing: not online, consecutive failures still below the threshold.
	Failing PolicyState = "failing"
	// Alerted: not online, at or above the threshold.
	Alerted PolicyState = "alerted"
	// Recovering: online right after an offline or error check.
	Recovering PolicyState = "recovering"
)

type PolicyInput struct {
	ConsecutiveFailures  int
	FailureThreshold     int
	LastNotificationSent *time.Time
	PreviousStatus       domain.Status
	CurrentStatus        domain.Status
	Now                  time.Time
}

type Decision struct {
	State        PolicyState
	SendAlert    bool
	SendRecovery bool
	// Suppressed is set when an alert would be due but the cooldown has
	// not elapsed since the last delivered one.
	Suppressed bool
}

// Evaluate is the pure notification policy.
func Evaluate(in PolicyInput, cooldown time.Duration) Decision {
	if in.CurrentStatus == domain.StatusOnline {
		if in.PreviousStatus == domain.StatusOffline || in.PreviousStatus == domain.StatusError {
			return Decision{State: Recovering, SendRecovery: true}
		}
		return Decision{State: Healthy}
	}

	threshold := in.FailureThreshold
	if threshold < 1 {
		threshold = 1
	}
	if in.ConsecutiveFailures < threshold {
		return Decision{State: Failing}
	}
	if in.LastNotificationSent == nil || in.Now.Sub(*in.LastNotificationSent) >= cooldown {
		return Decision{State: Alerted, SendAlert: true}
	}
	return Decision{State: Alerted, Suppressed: true}
}

func InputFor(a *repo.Applied, now time.Time) PolicyInput {
	return PolicyInput{
		ConsecutiveFailures:  a.Target.ConsecutiveFailures,
		FailureThreshold:     a.Target.FailureThreshold,
		LastNotificationSent: a.Target.LastNotificationSent,
		PreviousStatus:       a.PreviousStatus,
		CurrentStatus:        a.Target.Status,
		Now:                  now,
	}
}

type notifiedMarker interface {
	MarkNotified(ctx context.Context, id domain.TargetID, at time.Time) error
}

type AlerterConfig struct {
	Cooldown    time.Duration
	SendTimeout time.Duration
}

// Alerter applies the policy to a recorded check and dispatches through the
// notifier. Delivery failures never affect the recorded outcome.
type Alerter struct {
	notifier notify.Notifier
	store    notifiedMarker
	clock    Clock
	log      *zap.Logger
	cfg      AlerterConfig
}

func NewAlerter(n notify.Notifier, store notifiedMarker, clock Clock, log *zap.Logger, cfg AlerterConfig) *Alerter {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	return &Alerter{notifier: n, store: store, clock: clock, log: log, cfg: cfg}
}

func (a *Alerter) Handle(ctx context.Context, applied *repo.Applied) Decision {
	// notification runs to completion even if the check's own deadline passed
	ctx = context.WithoutCancel(ctx)
	now := a.clock.Now()
	d := Evaluate(InputFor(applied, now), a.cfg.Cooldown)
	t := applied.Target

	switch {
	case d.SendAlert:
		a.sendAlert(ctx, t, now)
	case d.SendRecovery:
		a.sendRecovery(ctx, t, now)
	case d.Suppressed:
		metrics.AlertsSuppressed.Inc()
		a.log.Debug("alert_suppressed_cooldown",
			zap.String("target_id", string(t.ID)),
			zap.Int("consecutive_failures", t.ConsecutiveFailures),
		)
	}
	return d
}

func (a *Alerter) sendAlert(ctx context.Context, t *domain.Target, now time.Time) {
	if t.AlertDestination == "" {
		a.log.Debug("alert_no_destination", zap.String("target_id", string(t.ID)))
		return
	}
	err := a.send(ctx, t.AlertDestination, notify.AlertMessage(t, now))
	delivered := notify.Delivered(err)
	if err != nil {
		a.log.Warn("alert_delivery_failed",
			zap.String("target_id", string(t.ID)),
			zap.String("url", t.URL),
			zap.Bool("partial", delivered),
			zap.Error(err),
		)
	}
	if !delivered {
		// last_notification_sent stays put so the next eligible check retries
		metrics.RecordNotification("alert", err)
		return
	}
	metrics.RecordNotification("alert", nil)
	if err := a.store.MarkNotified(ctx, t.ID, now); err != nil {
		a.log.Error("alert_mark_notified_error", zap.String("target_id", string(t.ID)), zap.Error(err))
		return
	}
	a.log.Info("alert_sent",
		zap.String("target_id", string(t.ID)),
		zap.String("url", t.URL),
		zap.Int("consecutive_failures", t.ConsecutiveFailures),
	)
}

func (a *Alerter) sendRecovery(ctx context.Context, t *domain.Target, now time.Time) {
	if t.AlertDestination == "" {
		return
	}
	err := a.send(ctx, t.AlertDestination, notify.RecoveryMessage(t, now))
	delivered := notify.Delivered(err)
	if err != nil {
		a.log.Warn("recovery_delivery_failed",
			zap.String("target_id", string(t.ID)),
			zap.String("url", t.URL),
			zap.Bool("partial", delivered),
			zap.Error(err),
		)
	}
	if !delivered {
		metrics.RecordNotification("recovery", err)
		return
	}
	metrics.RecordNotification("recovery", nil)
	a.log.Info("recovery_sent", zap.String("target_id", string(t.ID)), zap.String("url", t.URL))
}

func (a *Alerter) send(ctx context.Context, dest string, msg notify.Message) error {
	sctx, cancel := context.WithTimeout(ctx, a.cfg.SendTimeout)
	defer cancel()
	return a.notifier.Send(sctx, dest, msg)
}
