// Package router decides how a session's phase advances.
//
// Transitions are an explicit table keyed by (phase, trigger). A handler
// runs against a clone of the session; the clone replaces the session only
// when the handler reports success, so a nil result always means the session
// was left untouched.
package router

import (
	"cmp"
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/quizhall/go/internal/events"
	"github.com/mcdev12/quizhall/go/internal/game/timer"
	"github.com/mcdev12/quizhall/go/internal/models"
)

// Trigger is the reason a transition is attempted.
type Trigger string

const (
	TriggerUserAction   Trigger = "USER_ACTION"
	TriggerTimerExpired Trigger = "TIMER_EXPIRED"
	TriggerPlayerLeft   Trigger = "PLAYER_LEFT"
	TriggerConditionMet Trigger = "CONDITION_MET"
)

// TransitionResult is what a successful attempt produced.
type TransitionResult struct {
	From      models.Phase
	To        models.Phase
	Events    []events.Directive
	Timers    []timer.Directive
	Completed bool
}

type handler func(c *call, payload any) bool

type key struct {
	phase   models.Phase
	trigger Trigger
}

// Entry is one row of the transition table.
type Entry struct {
	Phase   models.Phase
	Trigger Trigger
}

type Router struct {
	clock clockwork.Clock
	newID func() string
	table map[key]handler

	rngMu sync.Mutex
	rng   *rand.Rand
}

type Option func(*Router)

func WithClock(clock clockwork.Clock) Option {
	return func(r *Router) { r.clock = clock }
}

// WithRand fixes the source used for tie-breaks and random assignment.
func WithRand(rng *rand.Rand) Option {
	return func(r *Router) { r.rng = rng }
}

func WithIDs(newID func() string) Option {
	return func(r *Router) { r.newID = newID }
}

func New(opts ...Option) *Router {
	r := &Router{
		clock: clockwork.NewRealClock(),
		newID: uuid.NewString,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.table = map[key]handler{
		{models.PhaseLobby, TriggerUserAction}: (*call).lobbyAction,

		{models.PhaseChoosing, TriggerUserAction}: (*call).choosingAction,
		{models.PhaseChoosing, TriggerPlayerLeft}: (*call).choosingPlayerLeft,

		{models.PhaseMediaDownloading, TriggerUserAction}:   (*call).mediaAction,
		{models.PhaseMediaDownloading, TriggerTimerExpired}: (*call).mediaTimeout,
		{models.PhaseMediaDownloading, TriggerPlayerLeft}:   (*call).mediaRecheck,
		{models.PhaseMediaDownloading, TriggerConditionMet}: (*call).mediaRecheck,

		{models.PhaseShowing, TriggerUserAction}:   (*call).showingAction,
		{models.PhaseShowing, TriggerTimerExpired}: (*call).showingTimeout,
		{models.PhaseShowing, TriggerPlayerLeft}:   (*call).showingRecheck,
		{models.PhaseShowing, TriggerConditionMet}: (*call).showingRecheck,

		{models.PhaseAnswering, TriggerUserAction}:   (*call).answeringAction,
		{models.PhaseAnswering, TriggerTimerExpired}: (*call).answeringTimeout,
		{models.PhaseAnswering, TriggerPlayerLeft}:   (*call).answeringPlayerLeft,

		{models.PhaseShowingAnswer, TriggerUserAction}:   (*call).showingAnswerAction,
		{models.PhaseShowingAnswer, TriggerTimerExpired}: (*call).finishQuestion,

		{models.PhaseSecretTransfer, TriggerUserAction}:   (*call).transferAction,
		{models.PhaseSecretTransfer, TriggerTimerExpired}: (*call).transferTimeout,
		{models.PhaseSecretTransfer, TriggerPlayerLeft}:   (*call).transferPlayerLeft,

		{models.PhaseStakeBidding, TriggerUserAction}:   (*call).stakeAction,
		{models.PhaseStakeBidding, TriggerTimerExpired}: (*call).stakeTimeout,
		{models.PhaseStakeBidding, TriggerPlayerLeft}:   (*call).stakePlayerLeft,

		{models.PhaseThemeElimination, TriggerUserAction}:   (*call).eliminationAction,
		{models.PhaseThemeElimination, TriggerTimerExpired}: (*call).eliminationTimeout,
		{models.PhaseThemeElimination, TriggerPlayerLeft}:   (*call).eliminationPlayerLeft,

		{models.PhaseFinalBidding, TriggerUserAction}:   (*call).finalBidAction,
		{models.PhaseFinalBidding, TriggerTimerExpired}: (*call).finalBidTimeout,
		{models.PhaseFinalBidding, TriggerPlayerLeft}:   (*call).finalBidPlayerLeft,

		{models.PhaseFinalAnswering, TriggerUserAction}:   (*call).finalAnswerAction,
		{models.PhaseFinalAnswering, TriggerTimerExpired}: (*call).finalAnswerTimeout,
		{models.PhaseFinalAnswering, TriggerPlayerLeft}:   (*call).finalAnswerPlayerLeft,

		{models.PhaseFinalReviewing, TriggerUserAction}: (*call).finalReviewAction,
		{models.PhaseFinalReviewing, TriggerPlayerLeft}: (*call).finalReviewPlayerLeft,
	}
	return r
}

// Supports reports whether the table has a handler for (phase, trigger).
func (r *Router) Supports(phase models.Phase, trigger Trigger) bool {
	_, ok := r.table[key{phase, trigger}]
	return ok
}

// Table lists every registered (phase, trigger) pair.
func (r *Router) Table() []Entry {
	out := make([]Entry, 0, len(r.table))
	for k := range r.table {
		out = append(out, Entry{Phase: k.phase, Trigger: k.trigger})
	}
	slices.SortFunc(out, func(a, b Entry) int {
		if c := cmp.Compare(a.Phase, b.Phase); c != 0 {
			return c
		}
		return cmp.Compare(a.Trigger, b.Trigger)
	})
	return out
}

// TryTransition applies at most one transition. It returns nil, leaving s
// unchanged, when the trigger does not apply in the current state.
func (r *Router) TryTransition(s *models.GameSession, pkg *models.Package, trigger Trigger, triggeredBy string, payload any) *TransitionResult {
	h, ok := r.table[key{s.Phase, trigger}]
	if !ok || pkg == nil {
		return nil
	}
	c := &call{
		r:       r,
		s:       s.Clone(),
		pkg:     pkg,
		now:     r.clock.Now(),
		by:      triggeredBy,
		trigger: trigger,
		res:     &TransitionResult{From: s.Phase},
	}
	if d, ok := payload.(Departure); ok {
		c.departing = d.ParticipantID
	}
	if !h(c, payload) {
		return nil
	}
	c.finish(s)
	*s = *c.s
	return c.res
}

// finish derives timer directives by comparing against the session as it was
// and announces the phase change.
func (c *call) finish(orig *models.GameSession) {
	s := c.s
	c.res.To = s.Phase

	switch {
	case s.Timer != nil && (orig.Timer == nil || orig.Timer.ID != s.Timer.ID):
		c.res.Timers = append(c.res.Timers, timer.Set(s.ID, "", s.Timer, c.now))
	case s.Timer == nil && orig.Timer != nil:
		c.res.Timers = append(c.res.Timers, timer.Delete(s.ID, ""))
	}

	before, after := orig.State.ShowingRestore, s.State.ShowingRestore
	switch {
	case after != nil && (before == nil || before.ID != after.ID):
		c.res.Timers = append(c.res.Timers, timer.Set(s.ID, timer.SuffixShowing, after, c.now))
	case after == nil && before != nil:
		c.res.Timers = append(c.res.Timers, timer.Delete(s.ID, timer.SuffixShowing))
	}

	if c.res.From != c.res.To {
		c.emit(events.KindPhaseChanged, events.PhaseChangedPayload{
			From:       c.res.From,
			To:         c.res.To,
			Round:      s.RoundIndex,
			TurnPlayer: s.TurnPlayer,
			Answering:  s.State.Answering,
			Question:   cloneRef(s.State.Question),
			Timer:      s.Timer.Clone(),
		})
	}
}

func (r *Router) pick(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	return ids[r.rng.Intn(len(ids))]
}

func (r *Router) pickInt(vals []int) (int, bool) {
	if len(vals) == 0 {
		return 0, false
	}
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	return vals[r.rng.Intn(len(vals))], true
}

func (r *Router) shuffle(ids []string) {
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	r.rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
}
