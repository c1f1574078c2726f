package router

import (
	"maps"
	"slices"

	"github.com/mcdev12/quizhall/go/internal/events"
	"github.com/mcdev12/quizhall/go/internal/models"
)

func (c *call) eliminationAction(payload any) bool {
	p, ok := payload.(Eliminate)
	if !ok {
		return false
	}
	e := c.s.State.Elimination
	if e == nil || e.Current() != c.by || !slices.Contains(e.Remaining, p.Theme) {
		return false
	}
	c.eliminate(p.Theme, c.by, false)
	return true
}

// eliminationTimeout removes a random theme on behalf of the current player.
func (c *call) eliminationTimeout(any) bool {
	e := c.s.State.Elimination
	if e == nil {
		return false
	}
	theme, ok := c.r.pickInt(e.Remaining)
	if !ok {
		return false
	}
	c.eliminate(theme, e.Current(), true)
	return true
}

// eliminationPlayerLeft removes a random theme for a departing current
// player and passes the turn on.
func (c *call) eliminationPlayerLeft(any) bool {
	e := c.s.State.Elimination
	if e == nil || e.Current() != c.departing || len(e.Remaining) < 2 {
		return false
	}
	theme, _ := c.r.pickInt(e.Remaining)
	c.eliminate(theme, c.departing, true)
	return true
}

func (c *call) eliminate(theme int, by string, auto bool) {
	e := c.s.State.Elimination
	e.Remaining = slices.DeleteFunc(e.Remaining, func(t int) bool { return t == theme })
	c.emit(events.KindThemeEliminated, events.ThemeEliminatedPayload{
		ParticipantID: by,
		Theme:         theme,
		Remaining:     slices.Clone(e.Remaining),
		Auto:          auto,
	})
	if len(e.Remaining) <= 1 {
		c.beginFinalBidding()
		return
	}
	c.advanceElimination()
}

// advanceElimination hands the turn to the next player still present. With
// nobody left the final theme is drawn at random.
func (c *call) advanceElimination() {
	e := c.s.State.Elimination
	for step := 1; step <= len(e.Order); step++ {
		i := (e.Turn + step) % len(e.Order)
		if c.isRemaining(e.Order[i]) {
			e.Turn = i
			c.enter(models.PhaseThemeElimination)
			return
		}
	}
	c.beginFinalBidding()
}

func (c *call) beginFinalBidding() {
	st := &c.s.State
	theme, ok := c.r.pickInt(st.Elimination.Remaining)
	if !ok {
		c.finishMatch()
		return
	}
	q := c.pkg.Question(c.s.RoundIndex, theme, 0)
	if q == nil {
		c.finishMatch()
		return
	}
	c.s.Played = append(c.s.Played, q.ID)
	st.Elimination = nil
	st.Eligible = c.remaining(st.Eligible)
	st.Question = &models.QuestionRef{
		ID:       q.ID,
		Round:    c.s.RoundIndex,
		Theme:    theme,
		Price:    q.Price,
		Kind:     q.Kind,
		HasMedia: len(q.Media) > 0,
	}
	st.Final = &models.FinalRound{
		Theme:   theme,
		Bids:    make(map[string]int),
		Answers: make(map[string]string),
		Judged:  make(map[string]bool),
	}
	if len(st.Eligible) == 0 {
		c.completeFinal()
		return
	}
	c.enter(models.PhaseFinalBidding)
}

// pendingBids lists eligible players still present who have not bid.
func (c *call) pendingBids() []string {
	var out []string
	for _, id := range c.remaining(c.s.State.Eligible) {
		if _, ok := c.s.State.Final.Bids[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

func (c *call) finalBidAction(payload any) bool {
	p, ok := payload.(FinalBid)
	if !ok || c.s.State.Final == nil || !slices.Contains(c.pendingBids(), c.by) {
		return false
	}
	bidder := c.s.Participant(c.by)
	if p.Amount < 1 || p.Amount > max(bidder.Score, 1) {
		return false
	}
	c.s.State.Final.Bids[c.by] = p.Amount
	c.emit(events.KindFinalBidSubmitted, events.FinalSubmittedPayload{ParticipantID: c.by})
	if len(c.pendingBids()) == 0 {
		c.beginFinalAnswering()
	}
	return true
}

// finalBidTimeout bids the minimum for everyone who has not bid.
func (c *call) finalBidTimeout(any) bool {
	if c.s.State.Final == nil {
		return false
	}
	for _, id := range c.pendingBids() {
		c.s.State.Final.Bids[id] = 1
		c.emit(events.KindFinalBidSubmitted, events.FinalSubmittedPayload{ParticipantID: id, Auto: true})
	}
	c.beginFinalAnswering()
	return true
}

func (c *call) finalBidPlayerLeft(any) bool {
	f := c.s.State.Final
	if f == nil || !slices.Contains(c.s.State.Eligible, c.departing) {
		return false
	}
	if _, ok := f.Bids[c.departing]; ok {
		return false
	}
	f.Bids[c.departing] = 1
	c.emit(events.KindFinalBidSubmitted, events.FinalSubmittedPayload{ParticipantID: c.departing, Auto: true})
	if len(c.pendingBids()) == 0 {
		c.beginFinalAnswering()
	}
	return true
}

func (c *call) beginFinalAnswering() {
	if len(c.pendingAnswers()) == 0 {
		c.beginFinalReview()
		return
	}
	c.enter(models.PhaseFinalAnswering)
}

// pendingAnswers lists bidders still present who have not answered.
func (c *call) pendingAnswers() []string {
	f := c.s.State.Final
	var out []string
	for _, id := range c.remaining(c.s.State.Eligible) {
		_, bid := f.Bids[id]
		_, answered := f.Answers[id]
		if bid && !answered {
			out = append(out, id)
		}
	}
	return out
}

func (c *call) finalAnswerAction(payload any) bool {
	p, ok := payload.(FinalAnswer)
	if !ok || c.s.State.Final == nil || !slices.Contains(c.pendingAnswers(), c.by) {
		return false
	}
	c.s.State.Final.Answers[c.by] = p.Text
	c.emit(events.KindFinalAnswerSubmit, events.FinalSubmittedPayload{ParticipantID: c.by})
	if len(c.pendingAnswers()) == 0 {
		c.beginFinalReview()
	}
	return true
}

// finalAnswerTimeout records an empty answer for everyone still writing.
func (c *call) finalAnswerTimeout(any) bool {
	if c.s.State.Final == nil {
		return false
	}
	for _, id := range c.pendingAnswers() {
		c.s.State.Final.Answers[id] = ""
		c.emit(events.KindFinalAnswerSubmit, events.FinalSubmittedPayload{ParticipantID: id, Auto: true})
	}
	c.beginFinalReview()
	return true
}

func (c *call) finalAnswerPlayerLeft(any) bool {
	f := c.s.State.Final
	if f == nil {
		return false
	}
	_, bid := f.Bids[c.departing]
	_, answered := f.Answers[c.departing]
	if !bid || answered {
		return false
	}
	f.Answers[c.departing] = ""
	c.emit(events.KindFinalAnswerSubmit, events.FinalSubmittedPayload{ParticipantID: c.departing, Auto: true})
	if len(c.pendingAnswers()) == 0 {
		c.beginFinalReview()
	}
	return true
}

// beginFinalReview shows the answers to the host only.
func (c *call) beginFinalReview() {
	f := c.s.State.Final
	if c.allJudged() {
		c.completeFinal()
		return
	}
	c.enter(models.PhaseFinalReviewing)
	if host := c.s.Host(); host != nil {
		c.emitTo(host.ID, events.KindFinalAnswers, events.FinalAnswersPayload{
			Answers: maps.Clone(f.Answers),
			Bids:    maps.Clone(f.Bids),
		})
	}
}

func (c *call) allJudged() bool {
	f := c.s.State.Final
	for id := range f.Answers {
		if !f.Judged[id] {
			return false
		}
	}
	return true
}

func (c *call) finalReviewAction(payload any) bool {
	p, ok := payload.(FinalReview)
	f := c.s.State.Final
	if !ok || f == nil {
		return false
	}
	answer, answered := f.Answers[p.ParticipantID]
	if !answered || f.Judged[p.ParticipantID] {
		return false
	}
	correct := p.Correct && answer != ""
	raw := f.Bids[p.ParticipantID]
	if !correct {
		raw = -raw
	}
	delta := 0
	if target := c.s.Participant(p.ParticipantID); target != nil {
		delta = c.score(target, raw, false, "final")
	}
	f.Judged[p.ParticipantID] = true
	c.emit(events.KindAnswerResult, events.AnswerResultPayload{
		ParticipantID: p.ParticipantID,
		Correct:       correct,
		Delta:         delta,
	})
	if c.allJudged() {
		c.completeFinal()
	}
	return true
}

// finalReviewPlayerLeft drops a departing player's answer from review
// without scoring it.
func (c *call) finalReviewPlayerLeft(any) bool {
	f := c.s.State.Final
	if f == nil {
		return false
	}
	if _, ok := f.Answers[c.departing]; !ok || f.Judged[c.departing] {
		return false
	}
	f.Judged[c.departing] = true
	if c.allJudged() {
		c.completeFinal()
	}
	return true
}

func (c *call) completeFinal() {
	if q := c.question(); q != nil {
		c.emit(events.KindAnswerRevealed, events.AnswerRevealedPayload{QuestionID: q.ID, Answer: q.Answer})
	}
	c.startRound(c.s.RoundIndex + 1)
}
