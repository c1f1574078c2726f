package models

import "time"

// Timer is a pausable countdown attached to the current phase.
//
// Clients derive the remaining time from DurationMs, ElapsedMs and ResumedAt
// without needing a synchronized clock.
type Timer struct {
	ID         string     `json:"id"`
	Phase      Phase      `json:"phase"`
	StartedAt  time.Time  `json:"started_at"`
	DurationMs int64      `json:"duration_ms"`
	ElapsedMs  int64      `json:"elapsed_ms"` // accumulated before the latest resume
	ResumedAt  *time.Time `json:"resumed_at,omitempty"`
	Running    bool       `json:"running"`
}

// NewTimer returns a timer for phase that starts counting at now.
func NewTimer(id string, phase Phase, now time.Time, d time.Duration) *Timer {
	resumed := now
	return &Timer{
		ID:         id,
		Phase:      phase,
		StartedAt:  now,
		DurationMs: d.Milliseconds(),
		ResumedAt:  &resumed,
		Running:    true,
	}
}

// Elapsed returns the total running time as of now.
func (t *Timer) Elapsed(now time.Time) time.Duration {
	elapsed := time.Duration(t.ElapsedMs) * time.Millisecond
	if t.Running && t.ResumedAt != nil && now.After(*t.ResumedAt) {
		elapsed += now.Sub(*t.ResumedAt)
	}
	return elapsed
}

// Remaining returns the time left as of now, never negative.
func (t *Timer) Remaining(now time.Time) time.Duration {
	left := time.Duration(t.DurationMs)*time.Millisecond - t.Elapsed(now)
	if left < 0 {
		return 0
	}
	return left
}

// Deadline returns when a running timer expires.
func (t *Timer) Deadline(now time.Time) time.Time {
	return now.Add(t.Remaining(now))
}

// Pause folds the running interval into ElapsedMs and stops the countdown.
func (t *Timer) Pause(now time.Time) {
	if !t.Running {
		return
	}
	t.ElapsedMs = t.Elapsed(now).Milliseconds()
	t.Running = false
}

// Resume restarts the countdown. ResumedAt is strictly increasing across
// resume cycles even when the clock has not advanced.
func (t *Timer) Resume(now time.Time) {
	if t.Running {
		return
	}
	resumed := now
	if t.ResumedAt != nil && !now.After(*t.ResumedAt) {
		resumed = t.ResumedAt.Add(time.Millisecond)
	}
	t.ResumedAt = &resumed
	t.Running = true
}

// Reset discards accumulated elapsed time and leaves the timer stopped.
func (t *Timer) Reset() {
	t.ElapsedMs = 0
	t.Running = false
}

func (t *Timer) Clone() *Timer {
	if t == nil {
		return nil
	}
	c := *t
	if t.ResumedAt != nil {
		r := *t.ResumedAt
		c.ResumedAt = &r
	}
	return &c
}
