package timer

import (
	"time"

	"github.com/mcdev12/quizhall/go/internal/models"
)

// expiryTolerance absorbs clock skew between the reaper and the process
// that runs the expiry.
const expiryTolerance = 500 * time.Millisecond

// Pause freezes the session countdown and any restore point stays as is.
func Pause(s *models.GameSession, now time.Time) []Directive {
	s.Paused = true
	if s.Timer == nil || !s.Timer.Running {
		return nil
	}
	s.Timer.Pause(now)
	return []Directive{Set(s.ID, "", s.Timer, now)}
}

// Resume restarts the session countdown for its remaining duration.
func Resume(s *models.GameSession, now time.Time) []Directive {
	s.Paused = false
	if s.Timer == nil || s.Timer.Running {
		return nil
	}
	s.Timer.Resume(now)
	return []Directive{Set(s.ID, "", s.Timer, now)}
}

// ResetForRecovery is applied to a session whose countdown was running when
// its process died. Time that passed unobserved is discarded: the countdown
// restarts from zero and the session waits paused until the host resumes.
func ResetForRecovery(s *models.GameSession, now time.Time) []Directive {
	s.Paused = true
	if s.Timer == nil {
		return []Directive{Delete(s.ID, "")}
	}
	s.Timer.Reset()
	return []Directive{Set(s.ID, "", s.Timer, now)}
}

// Committed rewrites the timer records s was persisted with: its countdown
// and the showing restore point. It undoes directives applied for a change
// that was never saved.
func Committed(s *models.GameSession, now time.Time) []Directive {
	dirs := make([]Directive, 0, 2)
	if s.Timer != nil {
		dirs = append(dirs, Set(s.ID, "", s.Timer, now))
	} else {
		dirs = append(dirs, Delete(s.ID, ""))
	}
	if s.State.ShowingRestore != nil {
		dirs = append(dirs, Set(s.ID, SuffixShowing, s.State.ShowingRestore, now))
	} else {
		dirs = append(dirs, Delete(s.ID, SuffixShowing))
	}
	return dirs
}

// IsCurrent reports whether a claimed record still describes the session's
// running countdown. Anything else is a stale firing.
func IsCurrent(s *models.GameSession, rec Record, now time.Time) bool {
	t := s.Timer
	if t == nil || s.Paused || !t.Running {
		return false
	}
	if t.ID != rec.Timer.ID || t.Phase != s.Phase {
		return false
	}
	return t.Remaining(now) <= expiryTolerance
}
