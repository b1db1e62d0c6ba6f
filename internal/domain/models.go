package domain

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

type TargetID string

// Status is the lifecycle status of a target, and the outcome status of a
// single check record (online, offline or error only).
type Status string

const (
	StatusPending Status = "pending"
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
	StatusError   Status = "error"
	StatusStopped Status = "stopped"
)

// Bounds on per-target configuration.
const (
	MinTimeoutSec  = 1
	MaxTimeoutSec  = 300
	MinIntervalSec = 60
	MaxIntervalSec = 3600
)

type Target struct {
	ID                   TargetID   `json:"id"`
	URL                  string     `json:"url"`
	Name                 string     `json:"name,omitempty"`
	ValidWord            string     `json:"valid_word"`
	TimeoutSec           int        `json:"timeout"`
	CheckIntervalSec     int        `json:"check_interval"`
	FailureThreshold     int        `json:"failure_threshold"`
	Active               bool       `json:"is_active"`
	Status               Status     `json:"status"`
	LastCheck            *time.Time `json:"last_check"`
	ResponseTimeMS       *float64   `json:"response_time"`
	LastError            string     `json:"error_message,omitempty"`
	TotalChecks          int64      `json:"total_checks"`
	FailedChecks         int64      `json:"failed_checks"`
	ConsecutiveFailures  int        `json:"consecutive_failures"`
	LastNotificationSent *time.Time `json:"last_notification_sent"`
	AlertDestination     string     `json:"alert_destination,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// CheckRecord is one immutable row of probe history.
type CheckRecord struct {
	ID             int64     `json:"id"`
	TargetID       TargetID  `json:"target_id"`
	Status         Status    `json:"status"`
	ResponseTimeMS *float64  `json:"response_time"` // nil when no response was obtained
	StatusCode     *int      `json:"status_code"`
	Error          string    `json:"error_message,omitempty"`
	CheckedAt      time.Time `json:"checked_at"`
}

// Defaults fill in zero-valued configuration on new targets.
type Defaults struct {
	Timeout          time.Duration
	CheckInterval    time.Duration
	FailureThreshold int
}

func (t *Target) ApplyDefaults(d Defaults) {
	if t.TimeoutSec == 0 {
		t.TimeoutSec = int(d.Timeout / time.Second)
	}
	if t.CheckIntervalSec == 0 {
		t.CheckIntervalSec = int(d.CheckInterval / time.Second)
	}
	if t.FailureThreshold == 0 {
		t.FailureThreshold = d.FailureThreshold
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
}

var ErrInvalidTarget = errors.New("invalid target")

func (t *Target) Validate() error {
	if !IsValidHTTPURL(t.URL) {
		return fmt.Errorf("%w: url must be absolute http(s)", ErrInvalidTarget)
	}
	if strings.TrimSpace(t.ValidWord) == "" {
		return fmt.Errorf("%w: valid_word is required", ErrInvalidTarget)
	}
	if t.TimeoutSec < MinTimeoutSec || t.TimeoutSec > MaxTimeoutSec {
		return fmt.Errorf("%w: timeout must be between %d and %d seconds", ErrInvalidTarget, MinTimeoutSec, MaxTimeoutSec)
	}
	if t.CheckIntervalSec < MinIntervalSec || t.CheckIntervalSec > MaxIntervalSec {
		return fmt.Errorf("%w: check_interval must be between %d and %d seconds", ErrInvalidTarget, MinIntervalSec, MaxIntervalSec)
	}
	if t.FailureThreshold < 1 {
		return fmt.Errorf("%w: failure_threshold must be at least 1", ErrInvalidTarget)
	}
	return nil
}

func (t *Target) Timeout() time.Duration {
	return time.Duration(t.TimeoutSec) * time.Second
}

func (t *Target) CheckInterval() time.Duration {
	return time.Duration(t.CheckIntervalSec) * time.Second
}

// Monitored reports whether the target may be selected or checked at all.
func (t *Target) Monitored() bool {
	return t.Active && t.Status != StatusStopped
}

// IsDue reports whether a check should run now.
func (t *Target) IsDue(now time.Time) bool {
	if !t.Monitored() {
		return false
	}
	if t.LastCheck == nil {
		return true
	}
	return now.Sub(*t.LastCheck) >= t.CheckInterval()
}

// DisplayName falls back to the URL when no name is configured.
func (t *Target) DisplayName() string {
	if t.Name != "" {
		return t.Name
	}
	return t.URL
}

// Clone returns a deep copy so callers can mutate it without touching
// store-owned state.
func (t *Target) Clone() *Target {
	c := *t
	if t.LastCheck != nil {
		v := *t.LastCheck
		c.LastCheck = &v
	}
	if t.ResponseTimeMS != nil {
		v := *t.ResponseTimeMS
		c.ResponseTimeMS = &v
	}
	if t.LastNotificationSent != nil {
		v := *t.LastNotificationSent
		c.LastNotificationSent = &v
	}
	return &c
}

func IsValidHTTPURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != ""
}
