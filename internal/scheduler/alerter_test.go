package scheduler

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/notify"
	"github.com/hamed0406/sitewatch/internal/repo"
	"github.com/hamed0406/sitewatch/internal/repo/memory"
)

func TestEvaluate(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-10 * time.Minute)
	old := now.Add(-31 * time.Minute)
	exact := now.Add(-30 * time.Minute)
	cooldown := 30 * time.Minute

	cases := []struct {
		name string
		in   PolicyInput
		want Decision
	}{
		{"online steady", PolicyInput{CurrentStatus: domain.StatusOnline, PreviousStatus: domain.StatusOnline, FailureThreshold: 3}, Decision{State: Healthy}},
		{"first check online", PolicyInput{CurrentStatus: domain.StatusOnline, PreviousStatus: domain.StatusPending, FailureThreshold: 3}, Decision{State: Healthy}},
		{"recovery from offline", PolicyInput{CurrentStatus: domain.StatusOnline, PreviousStatus: domain.StatusOffline, LastNotificationSent: &recent}, Decision{State: Recovering, SendRecovery: true}},
		{"recovery from error", PolicyInput{CurrentStatus: domain.StatusOnline, PreviousStatus: domain.StatusError}, Decision{State: Recovering, SendRecovery: true}},
		{"below threshold", PolicyInput{CurrentStatus: domain.StatusOffline, ConsecutiveFailures: 2, FailureThreshold: 3}, Decision{State: Failing}},
		{"threshold never alerted", PolicyInput{CurrentStatus: domain.StatusOffline, ConsecutiveFailures: 3, FailureThreshold: 3}, Decision{State: Alerted, SendAlert: true}},
		{"within cooldown", PolicyInput{CurrentStatus: domain.StatusOffline, ConsecutiveFailures: 5, FailureThreshold: 3, LastNotificationSent: &recent}, Decision{State: Alerted, Suppressed: true}},
		{"cooldown boundary", PolicyInput{CurrentStatus: domain.StatusOffline, ConsecutiveFailures: 5, FailureThreshold: 3, LastNotificationSent: &exact}, Decision{State: Alerted, SendAlert: true}},
		{"cooldown elapsed", PolicyInput{CurrentStatus: domain.StatusError, ConsecutiveFailures: 6, FailureThreshold: 3, LastNotificationSent: &old}, Decision{State: Alerted, SendAlert: true}},
		{"zero threshold acts as one", PolicyInput{CurrentStatus: domain.StatusOffline, ConsecutiveFailures: 1}, Decision{State: Alerted, SendAlert: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.in.Now = now
			if got := Evaluate(tc.in, cooldown); got != tc.want {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func applyN(t *testing.T, s *memory.Store, id domain.TargetID, o domain.Outcome, at time.Time) *repo.Applied {
	t.Helper()
	cur, err := s.Get(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	a, err := s.ApplyCheckResult(context.Background(), id, cur.LastCheck, o, at)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestAlerter_MarksNotifiedOnlyOnDelivery(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	tgt := newTarget("https://a.example")
	if err := store.Create(ctx, tgt); err != nil {
		t.Fatal(err)
	}
	clock := newFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	nt := &fakeNotifier{err: errors.New("telegram down")}
	al := NewAlerter(nt, store, clock, zaptest.NewLogger(t), AlerterConfig{Cooldown: 30 * time.Minute})

	var a *repo.Applied
	for i := 0; i < 3; i++ {
		a = applyN(t, store, tgt.ID, offlineOutcome(), clock.Now())
		clock.Advance(time.Minute)
	}
	if d := al.Handle(ctx, a); !d.SendAlert {
		t.Fatalf("want alert decision, got %+v", d)
	}
	got, _ := store.Get(ctx, tgt.ID)
	if got.LastNotificationSent != nil {
		t.Fatalf("failed delivery must not set last_notification_sent")
	}

	// next eligible check retries the same alert
	nt.setErr(nil)
	a = applyN(t, store, tgt.ID, offlineOutcome(), clock.Now())
	if d := al.Handle(ctx, a); !d.SendAlert {
		t.Fatalf("want retried alert, got %+v", d)
	}
	got, _ = store.Get(ctx, tgt.ID)
	if got.LastNotificationSent == nil || !got.LastNotificationSent.Equal(clock.Now()) {
		t.Fatalf("last_notification_sent = %v, want %v", got.LastNotificationSent, clock.Now())
	}
	if titles := nt.titles(); len(titles) != 1 {
		t.Fatalf("want 1 delivered message, got %v", titles)
	}
}

func TestAlerter_RecoveryIgnoresCooldown(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	tgt := newTarget("https://b.example")
	tgt.FailureThreshold = 1
	if err := store.Create(ctx, tgt); err != nil {
		t.Fatal(err)
	}
	clock := newFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	nt := &fakeNotifier{}
	al := NewAlerter(nt, store, clock, zaptest.NewLogger(t), AlerterConfig{Cooldown: time.Hour})

	al.Handle(ctx, applyN(t, store, tgt.ID, offlineOutcome(), clock.Now()))
	clock.Advance(time.Minute)
	d := al.Handle(ctx, applyN(t, store, tgt.ID, onlineOutcome(), clock.Now()))
	if d.State != Recovering || !d.SendRecovery {
		t.Fatalf("want recovery, got %+v", d)
	}
	titles := nt.titles()
	if len(titles) != 2 || titles[0] != "🚨 Website Down Alert" || titles[1] != "✅ Website Recovered" {
		t.Fatalf("unexpected messages %v", titles)
	}

	// recovery leaves the alert cooldown timestamp alone
	got, _ := store.Get(ctx, tgt.ID)
	if got.LastNotificationSent == nil || !got.LastNotificationSent.Equal(clock.Now().Add(-time.Minute)) {
		t.Fatalf("last_notification_sent moved: %v", got.LastNotificationSent)
	}
}

func TestAlerter_NoDestinationSkipsSend(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	tgt := newTarget("https://c.example")
	tgt.FailureThreshold = 1
	tgt.AlertDestination = ""
	if err := store.Create(ctx, tgt); err != nil {
		t.Fatal(err)
	}
	clock := newFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	nt := &fakeNotifier{}
	al := NewAlerter(nt, store, clock, zaptest.NewLogger(t), AlerterConfig{Cooldown: time.Hour})

	d := al.Handle(ctx, applyN(t, store, tgt.ID, offlineOutcome(), clock.Now()))
	if !d.SendAlert {
		t.Fatalf("policy should still decide to alert, got %+v", d)
	}
	if len(nt.titles()) != 0 {
		t.Fatal("nothing should be sent without a destination")
	}
	got, _ := store.Get(ctx, tgt.ID)
	if got.LastNotificationSent != nil {
		t.Fatal("last_notification_sent set without delivery")
	}
}

func TestAlerter_PartialFanOutStartsCooldown(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	tgt := newTarget("https://d.example")
	tgt.AlertDestination = "https://hooks.slack.example/x, 100123"
	if err := store.Create(ctx, tgt); err != nil {
		t.Fatal(err)
	}
	clock := newFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	slack := &fakeNotifier{}
	tg := &fakeNotifier{err: errors.New("chat not found")}
	router := &notify.Router{Slack: slack, Telegram: tg}
	al := NewAlerter(router, store, clock, zaptest.NewLogger(t), AlerterConfig{Cooldown: 30 * time.Minute})

	var alertedAt time.Time
	for i := 0; i < 8; i++ {
		d := al.Handle(ctx, applyN(t, store, tgt.ID, offlineOutcome(), clock.Now()))
		if d.SendAlert {
			if !alertedAt.IsZero() {
				t.Fatalf("second alert at check %d inside the cooldown", i+1)
			}
			alertedAt = clock.Now()
		}
		clock.Advance(time.Minute)
	}

	if n := len(slack.titles()); n != 1 {
		t.Fatalf("working destination got %d alerts, want 1", n)
	}
	got, _ := store.Get(ctx, tgt.ID)
	if got.LastNotificationSent == nil || !got.LastNotificationSent.Equal(alertedAt) {
		t.Fatalf("last_notification_sent = %v, want %v", got.LastNotificationSent, alertedAt)
	}
}

func TestAlerter_RecoveryOmitsStaleAlertTime(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	tgt := newTarget("https://e.example")
	if err := store.Create(ctx, tgt); err != nil {
		t.Fatal(err)
	}
	clock := newFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	nt := &fakeNotifier{}
	al := NewAlerter(nt, store, clock, zaptest.NewLogger(t), AlerterConfig{Cooldown: 30 * time.Minute})

	// an alert from an earlier outage
	if err := store.MarkNotified(ctx, tgt.ID, clock.Now().Add(-24*time.Hour)); err != nil {
		t.Fatal(err)
	}
	// a flap below the threshold, then back online
	al.Handle(ctx, applyN(t, store, tgt.ID, offlineOutcome(), clock.Now()))
	clock.Advance(time.Minute)
	d := al.Handle(ctx, applyN(t, store, tgt.ID, onlineOutcome(), clock.Now()))
	if !d.SendRecovery {
		t.Fatalf("want recovery, got %+v", d)
	}

	nt.mu.Lock()
	defer nt.mu.Unlock()
	if len(nt.sent) != 1 {
		t.Fatalf("want 1 message, got %d", len(nt.sent))
	}
	if text := nt.sent[0].msg.Text; strings.Contains(text, "Alerted") || strings.Contains(text, "ago") {
		t.Fatalf("recovery message refers to an earlier outage:\n%s", text)
	}
}
