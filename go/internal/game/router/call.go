package router

import (
	"math"
	"slices"
	"time"

	"github.com/mcdev12/quizhall/go/internal/events"
	"github.com/mcdev12/quizhall/go/internal/models"
)

// call is one transition attempt. Handlers only touch c.s, the clone.
type call struct {
	r         *Router
	s         *models.GameSession
	pkg       *models.Package
	now       time.Time
	by        string
	trigger   Trigger
	departing string
	res       *TransitionResult
}

func (c *call) emit(kind events.Kind, payload any) {
	c.res.Events = append(c.res.Events, events.ToAll(c.s.ID, kind, payload))
}

func (c *call) emitTo(recipient string, kind events.Kind, payload any) {
	c.res.Events = append(c.res.Events, events.ToOne(c.s.ID, recipient, kind, payload))
}

// isRemaining reports whether id is still an active player for this attempt.
func (c *call) isRemaining(id string) bool {
	if id == "" || id == c.departing {
		return false
	}
	p := c.s.Participant(id)
	return p != nil && p.IsActivePlayer()
}

func (c *call) remaining(ids []string) []string {
	var out []string
	for _, id := range ids {
		if c.isRemaining(id) {
			out = append(out, id)
		}
	}
	return out
}

// enter switches phase and starts its countdown. A paused session gets a
// stopped countdown that starts on resume.
func (c *call) enter(phase models.Phase) {
	c.s.Phase = phase
	d := c.s.Rules.Durations.For(phase)
	if d <= 0 {
		c.s.Timer = nil
		return
	}
	t := models.NewTimer(c.r.newID(), phase, c.now, d)
	if c.s.Paused {
		t.Pause(c.now)
	}
	c.s.Timer = t
}

func (c *call) question() *models.Question {
	ref := c.s.State.Question
	if ref == nil {
		return nil
	}
	return c.pkg.Question(ref.Round, ref.Theme, ref.Index)
}

// lowestScore picks the participant with the lowest score, breaking ties
// uniformly at random.
func (c *call) lowestScore(ids []string) string {
	best := math.MaxInt
	var tied []string
	for _, id := range ids {
		p := c.s.Participant(id)
		if p == nil {
			continue
		}
		switch {
		case p.Score < best:
			best = p.Score
			tied = []string{id}
		case p.Score == best:
			tied = append(tied, id)
		}
	}
	return c.r.pick(tied)
}

// scoreOrder sorts ids by ascending score with random order among ties.
func (c *call) scoreOrder(ids []string) []string {
	order := slices.Clone(ids)
	c.r.shuffle(order)
	slices.SortStableFunc(order, func(a, b string) int {
		return c.s.Participant(a).Score - c.s.Participant(b).Score
	})
	return order
}

func (c *call) score(p *models.Participant, raw int, noRisk bool, reason string) int {
	applied := ApplyScore(p, raw, c.s.Rules, noRisk)
	c.emit(events.KindScoreChanged, events.ScoreChangedPayload{
		ParticipantID: p.ID,
		Delta:         applied,
		Score:         p.Score,
		Reason:        reason,
	})
	return applied
}

// ApplyScore changes a score by raw, bounded twice: first the delta, then the
// resulting score. No-risk questions never take points away. It returns the
// delta after the first bound.
func ApplyScore(p *models.Participant, raw int, rules models.Rules, noRisk bool) int {
	if noRisk && raw < 0 {
		raw = 0
	}
	applied := clamp(raw, -rules.MaxScoreDelta, rules.MaxScoreDelta)
	p.Score = clamp(p.Score+applied, -rules.MaxAbsoluteScore, rules.MaxAbsoluteScore)
	return applied
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

func cloneRef(q *models.QuestionRef) *models.QuestionRef {
	if q == nil {
		return nil
	}
	c := *q
	return &c
}

func without(ids []string, id string) []string {
	return slices.DeleteFunc(slices.Clone(ids), func(v string) bool { return v == id })
}
