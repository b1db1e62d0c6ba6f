package domain

import "time"

// Outcome is the classified result of one probe.
type Outcome struct {
	Status         Status
	ResponseTimeMS *float64
	StatusCode     *int
	Error          string
}

func (o Outcome) Online() bool { return o.Status == StatusOnline }

// ApplyOutcome folds one check outcome into the target's aggregate counters
// and returns the status the target had before, along with the history row
// that must be persisted in the same write.
func ApplyOutcome(t *Target, o Outcome, now time.Time) (Status, CheckRecord) {
	prev := t.Status

	t.Status = o.Status
	if t.LastCheck == nil || now.After(*t.LastCheck) {
		ts := now
		t.LastCheck = &ts
	}
	t.ResponseTimeMS = o.ResponseTimeMS
	t.LastError = o.Error
	t.TotalChecks++
	if o.Online() {
		t.ConsecutiveFailures = 0
	} else {
		t.FailedChecks++
		t.ConsecutiveFailures++
	}
	t.UpdatedAt = now

	rec := CheckRecord{
		TargetID:       t.ID,
		Status:         o.Status,
		ResponseTimeMS: o.ResponseTimeMS,
		StatusCode:     o.StatusCode,
		Error:          o.Error,
		CheckedAt:      now,
	}
	return prev, rec
}
