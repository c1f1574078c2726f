package router

import (
	"slices"

	"github.com/mcdev12/quizhall/go/internal/events"
	"github.com/mcdev12/quizhall/go/internal/models"
)

func (c *call) lobbyAction(payload any) bool {
	if _, ok := payload.(StartGame); !ok {
		return false
	}
	if len(c.pkg.Rounds) == 0 {
		return false
	}
	c.s.State = models.PhaseState{}
	c.s.StartedAt = c.now
	c.emit(events.KindGameStarted, events.RoundStartedPayload{Round: 0, Name: c.pkg.Rounds[0].Name, Kind: c.pkg.Rounds[0].Kind})
	c.startRound(0)
	return true
}

func (c *call) choosingAction(payload any) bool {
	switch p := payload.(type) {
	case Pick:
		return c.pick(p)
	case SetTurn:
		if !c.isRemaining(p.ParticipantID) || c.s.TurnPlayer == p.ParticipantID {
			return false
		}
		c.s.TurnPlayer = p.ParticipantID
		c.emit(events.KindTurnChanged, events.TurnChangedPayload{ParticipantID: p.ParticipantID})
		return true
	}
	return false
}

// choosingPlayerLeft clears the turn so the host can reassign it.
func (c *call) choosingPlayerLeft(any) bool {
	if c.departing == "" || c.s.TurnPlayer != c.departing {
		return false
	}
	c.s.TurnPlayer = ""
	c.emit(events.KindTurnChanged, events.TurnChangedPayload{})
	return true
}

func (c *call) pick(p Pick) bool {
	round := c.s.RoundIndex
	if round >= len(c.pkg.Rounds) || c.pkg.Rounds[round].Kind != models.RoundStandard {
		return false
	}
	q := c.pkg.Question(round, p.Theme, p.Question)
	if q == nil || c.s.IsPlayed(q.ID) {
		return false
	}
	c.s.Played = append(c.s.Played, q.ID)

	ref := &models.QuestionRef{
		ID:       q.ID,
		Round:    round,
		Theme:    p.Theme,
		Index:    p.Question,
		Price:    q.Price,
		Kind:     q.Kind,
		HasMedia: len(q.Media) > 0,
	}
	eligible := c.remaining(c.s.ActivePlayers())
	c.s.State = models.PhaseState{Question: ref, Eligible: eligible}
	c.emit(events.KindQuestionPicked, events.QuestionPickedPayload{
		PickedBy: c.by,
		Question: *ref,
		Eligible: slices.Clone(eligible),
	})

	switch q.Kind {
	case models.QuestionStake:
		c.beginStake()
	case models.QuestionSecret:
		c.beginTransfer()
	default:
		c.reveal()
	}
	return true
}

// reveal shows the question, waiting for media downloads first if needed.
func (c *call) reveal() {
	if c.s.State.Question.HasMedia && len(c.remaining(c.s.State.Eligible)) > 0 {
		c.enter(models.PhaseMediaDownloading)
		return
	}
	c.enter(models.PhaseShowing)
}

func (c *call) mediaAction(payload any) bool {
	if _, ok := payload.(MediaReady); !ok {
		return false
	}
	st := &c.s.State
	if !slices.Contains(st.Eligible, c.by) || slices.Contains(st.MediaReady, c.by) {
		return false
	}
	st.MediaReady = append(st.MediaReady, c.by)
	c.emit(events.KindMediaReady, events.MediaReadyPayload{
		ParticipantID: c.by,
		Ready:         len(st.MediaReady),
		Total:         len(st.Eligible),
	})
	if c.allMediaReady() {
		c.showAfterMedia()
	}
	return true
}

// mediaRecheck recomputes readiness against the current roster.
func (c *call) mediaRecheck(any) bool {
	if !c.allMediaReady() {
		return false
	}
	c.showAfterMedia()
	return true
}

func (c *call) mediaTimeout(any) bool {
	c.showAfterMedia()
	return true
}

func (c *call) allMediaReady() bool {
	for _, id := range c.remaining(c.s.State.Eligible) {
		if !slices.Contains(c.s.State.MediaReady, id) {
			return false
		}
	}
	return true
}

func (c *call) showAfterMedia() {
	c.s.State.MediaReady = nil
	c.enter(models.PhaseShowing)
}

// canAnswer reports whether id may still buzz or skip on this question.
func (c *call) canAnswer(id string) bool {
	st := c.s.State
	return slices.Contains(st.Eligible, id) &&
		c.isRemaining(id) &&
		!slices.Contains(st.Answered, id) &&
		!slices.Contains(st.Skipped, id)
}

func (c *call) hasPending() bool {
	for _, id := range c.s.State.Eligible {
		if c.canAnswer(id) {
			return true
		}
	}
	return false
}

func (c *call) showingAction(payload any) bool {
	switch payload.(type) {
	case Buzz:
		if !c.canAnswer(c.by) {
			return false
		}
		c.buzz(c.by)
		return true
	case Skip:
		if !c.canAnswer(c.by) {
			return false
		}
		c.s.State.Skipped = append(c.s.State.Skipped, c.by)
		c.emit(events.KindPlayerSkipped, events.SkippedPayload{ParticipantID: c.by})
		if !c.hasPending() {
			c.revealAnswer()
		}
		return true
	}
	return false
}

// showingRecheck ends the question once nobody eligible can still answer.
func (c *call) showingRecheck(any) bool {
	if c.hasPending() {
		return false
	}
	c.revealAnswer()
	return true
}

func (c *call) showingTimeout(any) bool {
	c.revealAnswer()
	return true
}

// buzz hands the answering slot to id and keeps the showing countdown as a
// paused restore point.
func (c *call) buzz(id string) {
	st := &c.s.State
	if c.s.Timer != nil {
		restore := c.s.Timer.Clone()
		restore.Pause(c.now)
		st.ShowingRestore = restore
	}
	st.Answering = id
	st.AnswerValue = st.Question.Price
	st.SingleAnswerer = false
	c.emit(events.KindPlayerBuzzed, events.BuzzedPayload{ParticipantID: id})
	c.enter(models.PhaseAnswering)
}

// beginAnswering gives a single participant the question, as after an
// auction or a transfer.
func (c *call) beginAnswering(id string, value int) {
	st := &c.s.State
	st.Answering = id
	st.AnswerValue = value
	st.SingleAnswerer = true
	st.Stake = nil
	st.Transfer = nil
	c.enter(models.PhaseAnswering)
}

func (c *call) answeringAction(payload any) bool {
	p, ok := payload.(Review)
	if !ok {
		return false
	}
	return c.judge(p.Correct, false, false)
}

func (c *call) answeringTimeout(any) bool {
	return c.judge(false, true, false)
}

// answeringPlayerLeft scores a departing answerer zero and moves on as if
// the answer were wrong.
func (c *call) answeringPlayerLeft(any) bool {
	if c.departing == "" || c.departing != c.s.State.Answering {
		return false
	}
	return c.judge(false, false, true)
}

func (c *call) judge(correct, timedOut, zero bool) bool {
	st := &c.s.State
	id := st.Answering
	if id == "" || st.Question == nil {
		return false
	}
	raw := st.AnswerValue
	if !correct {
		raw = -raw
	}
	if zero {
		raw = 0
	}
	delta := 0
	if p := c.s.Participant(id); p != nil {
		delta = c.score(p, raw, st.Question.Kind == models.QuestionNoRisk, "answer")
	}
	c.emit(events.KindAnswerResult, events.AnswerResultPayload{
		ParticipantID: id,
		Correct:       correct,
		TimedOut:      timedOut,
		Delta:         delta,
	})

	if correct {
		c.s.TurnPlayer = id
		c.revealAnswer()
		return true
	}
	st.Answered = append(st.Answered, id)
	st.Answering = ""
	if !st.SingleAnswerer && c.hasPending() {
		c.returnToShowing()
	} else {
		c.revealAnswer()
	}
	return true
}

// returnToShowing resumes the paused showing countdown.
func (c *call) returnToShowing() {
	st := &c.s.State
	restore := st.ShowingRestore
	st.ShowingRestore = nil
	st.AnswerValue = 0
	if restore == nil {
		c.enter(models.PhaseShowing)
		return
	}
	if !c.s.Paused {
		restore.Resume(c.now)
	}
	c.s.Phase = models.PhaseShowing
	c.s.Timer = restore
}

func (c *call) revealAnswer() {
	ref := c.s.State.Question
	c.s.State = models.PhaseState{Question: ref}
	if q := c.question(); q != nil {
		c.emit(events.KindAnswerRevealed, events.AnswerRevealedPayload{QuestionID: q.ID, Answer: q.Answer})
	}
	c.enter(models.PhaseShowingAnswer)
}

func (c *call) showingAnswerAction(payload any) bool {
	if _, ok := payload.(Continue); !ok {
		return false
	}
	return c.finishQuestion(nil)
}

// finishQuestion leaves the answer screen for the board or the next round.
func (c *call) finishQuestion(any) bool {
	c.s.State = models.PhaseState{}
	if c.roundComplete() {
		c.startRound(c.s.RoundIndex + 1)
		return true
	}
	if c.s.TurnPlayer != "" && !c.isRemaining(c.s.TurnPlayer) {
		c.s.TurnPlayer = ""
		c.emit(events.KindTurnChanged, events.TurnChangedPayload{})
	}
	c.enter(models.PhaseChoosing)
	return true
}

func (c *call) roundComplete() bool {
	round := c.s.RoundIndex
	if round >= len(c.pkg.Rounds) {
		return true
	}
	for _, theme := range c.pkg.Rounds[round].Themes {
		for _, q := range theme.Questions {
			if !c.s.IsPlayed(q.ID) {
				return false
			}
		}
	}
	return true
}

// startRound enters round i, or ends the match past the last round.
func (c *call) startRound(i int) {
	if i >= len(c.pkg.Rounds) {
		c.finishMatch()
		return
	}
	round := c.pkg.Rounds[i]
	c.s.RoundIndex = i
	c.s.Played = nil
	c.s.State = models.PhaseState{}
	players := c.remaining(c.s.ActivePlayers())

	if round.Kind == models.RoundFinal {
		c.s.TurnPlayer = ""
		if len(players) == 0 {
			c.finishMatch()
			return
		}
		themes := make([]int, len(round.Themes))
		for t := range round.Themes {
			themes[t] = t
		}
		c.s.State = models.PhaseState{
			Eligible: players,
			Elimination: &models.ThemeElimination{
				Order:     c.scoreOrder(players),
				Remaining: themes,
			},
		}
		c.emit(events.KindRoundStarted, events.RoundStartedPayload{Round: i, Name: round.Name, Kind: round.Kind})
		if len(themes) <= 1 {
			c.beginFinalBidding()
			return
		}
		c.enter(models.PhaseThemeElimination)
		return
	}

	c.s.TurnPlayer = c.lowestScore(players)
	c.emit(events.KindRoundStarted, events.RoundStartedPayload{
		Round:      i,
		Name:       round.Name,
		Kind:       round.Kind,
		TurnPlayer: c.s.TurnPlayer,
	})
	c.enter(models.PhaseChoosing)
}

func (c *call) finishMatch() {
	c.s.State = models.PhaseState{}
	c.s.TurnPlayer = ""
	c.enter(models.PhaseFinished)
	c.res.Completed = true
	c.emit(events.KindGameFinished, events.GameFinishedPayload{Scores: events.Scores(c.s)})
}
