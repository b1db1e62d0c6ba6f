package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/notify"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
	// fire makes After deliver immediately; otherwise it never fires.
	fire bool
}

func newFakeClock(now time.Time) *fakeClock { return &fakeClock{now: now} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	if c.fire {
		c.now = c.now.Add(d)
		ch <- c.now
	}
	return ch
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sent struct {
	dest string
	msg  notify.Message
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (f *fakeNotifier) Send(ctx context.Context, dest string, msg notify.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sent{dest: dest, msg: msg})
	return nil
}

func (f *fakeNotifier) ValidateDestination(ctx context.Context, dest string) error { return nil }

func (f *fakeNotifier) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeNotifier) titles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, s := range f.sent {
		out = append(out, s.msg.Title)
	}
	return out
}

func newTarget(url string) *domain.Target {
	return &domain.Target{
		URL:              url,
		ValidWord:        "OK",
		TimeoutSec:       30,
		CheckIntervalSec: 300,
		FailureThreshold: 3,
		Active:           true,
		Status:           domain.StatusPending,
		AlertDestination: "123456",
	}
}

func offlineOutcome() domain.Outcome {
	return domain.Outcome{Status: domain.StatusOffline, Error: "Request error: connection refused"}
}

func onlineOutcome() domain.Outcome {
	ms := 12.5
	code := 200
	return domain.Outcome{Status: domain.StatusOnline, ResponseTimeMS: &ms, StatusCode: &code}
}
