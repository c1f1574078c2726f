package timer

import (
	"strings"
	"time"

	"github.com/mcdev12/quizhall/go/internal/models"
)

const (
	keyPrefix = "timer."

	// SuffixShowing keys the paused showing countdown kept while an answer
	// is judged.
	SuffixShowing = "showing"

	// expiredGrace keeps a running record in the store a while past its
	// deadline so a reaper that was down can still claim it.
	expiredGrace = 5 * time.Minute
	// pausedTTL bounds how long a paused record outlives an abandoned session.
	pausedTTL = 24 * time.Hour
)

// Key returns the store key for a session timer. The bare key is the active
// countdown; suffixed keys are paused restore points.
func Key(sessionID, suffix string) string {
	if suffix == "" {
		return keyPrefix + sessionID
	}
	return keyPrefix + sessionID + "." + suffix
}

// ParseKey splits a timer key into session id and suffix.
func ParseKey(key string) (sessionID, suffix string, ok bool) {
	rest, found := strings.CutPrefix(key, keyPrefix)
	if !found || rest == "" {
		return "", "", false
	}
	sessionID, suffix, _ = strings.Cut(rest, ".")
	return sessionID, suffix, true
}

// Record is the persisted form of a countdown. Deadline is set only while
// the countdown runs.
type Record struct {
	SessionID string       `json:"session_id"`
	Suffix    string       `json:"suffix,omitempty"`
	Timer     models.Timer `json:"timer"`
	Deadline  *time.Time   `json:"deadline,omitempty"`
}

// Op is the kind of a timer directive.
type Op string

const (
	OpSet    Op = "SET"
	OpDelete Op = "DELETE"
)

// Directive is a timer write produced by a transition, applied before the
// session is persisted.
type Directive struct {
	Op     Op            `json:"op"`
	Key    string        `json:"key"`
	Record *Record       `json:"record,omitempty"`
	TTL    time.Duration `json:"ttl,omitempty"`
}

// Set builds a directive that stores t under (sessionID, suffix).
func Set(sessionID, suffix string, t *models.Timer, now time.Time) Directive {
	rec := &Record{SessionID: sessionID, Suffix: suffix, Timer: *t.Clone()}
	ttl := pausedTTL
	if t.Running {
		deadline := t.Deadline(now)
		rec.Deadline = &deadline
		ttl = deadline.Sub(now) + expiredGrace
	}
	return Directive{Op: OpSet, Key: Key(sessionID, suffix), Record: rec, TTL: ttl}
}

// Delete builds a directive that removes the timer under (sessionID, suffix).
func Delete(sessionID, suffix string) Directive {
	return Directive{Op: OpDelete, Key: Key(sessionID, suffix)}
}
