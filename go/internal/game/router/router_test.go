package router

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/quizhall/go/internal/events"
	"github.com/mcdev12/quizhall/go/internal/game/timer"
	"github.com/mcdev12/quizhall/go/internal/models"
)

func testPackage() *models.Package {
	pkg := &models.Package{
		ID:    "pkg-1",
		Title: "General",
		Rounds: []models.Round{
			{
				Name: "Warmup",
				Themes: []models.Theme{
					{Name: "Rivers", Questions: []models.Question{
						{Price: 100, Answer: "Nile"},
						{Price: 200, Answer: "Danube", Media: []models.Media{{Kind: "image", URL: "https://cdn.example/danube.png"}}},
					}},
					{Name: "Wildcards", Questions: []models.Question{
						{Price: 300, Kind: models.QuestionStake, Answer: "Oslo"},
						{Price: 400, Kind: models.QuestionSecret, Answer: "Lima"},
						{Price: 500, Kind: models.QuestionNoRisk, Answer: "Rome"},
					}},
				},
			},
			{
				Name: "Second",
				Themes: []models.Theme{
					{Name: "Peaks", Questions: []models.Question{{Price: 100, Answer: "Everest"}}},
				},
			},
			{
				Name: "Final",
				Kind: models.RoundFinal,
				Themes: []models.Theme{
					{Name: "Art", Questions: []models.Question{{Price: 0, Answer: "Monet"}}},
					{Name: "Music", Questions: []models.Question{{Price: 0, Answer: "Bach"}}},
					{Name: "Film", Questions: []models.Question{{Price: 0, Answer: "Kubrick"}}},
				},
			},
		},
	}
	pkg.Normalize()
	return pkg
}

func newTestRouter() (*Router, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC))
	n := 0
	r := New(
		WithClock(clock),
		WithRand(rand.New(rand.NewSource(7))),
		WithIDs(func() string {
			n++
			return fmt.Sprintf("timer-%d", n)
		}),
	)
	return r, clock
}

func newSession(players ...string) *models.GameSession {
	s := &models.GameSession{
		ID:        "s1",
		PackageID: "pkg-1",
		Rules:     models.DefaultRules(),
		Phase:     models.PhaseChoosing,
		Participants: []models.Participant{
			{ID: "host", Name: "Host", Role: models.RoleHost, Status: models.StatusActive},
		},
	}
	for i, id := range players {
		seat := i
		s.Participants = append(s.Participants, models.Participant{
			ID:     id,
			Name:   id,
			Role:   models.RolePlayer,
			Status: models.StatusActive,
			Seat:   &seat,
		})
	}
	if len(players) > 0 {
		s.TurnPlayer = players[0]
	}
	return s
}

func kinds(res *TransitionResult) []events.Kind {
	var out []events.Kind
	for _, e := range res.Events {
		out = append(out, e.Kind)
	}
	return out
}

func timerOp(res *TransitionResult, suffix string) *timer.Directive {
	for i := range res.Timers {
		if res.Timers[i].Key == timer.Key("s1", suffix) {
			return &res.Timers[i]
		}
	}
	return nil
}

func mustTransition(t *testing.T, r *Router, s *models.GameSession, pkg *models.Package, trigger Trigger, by string, payload any) *TransitionResult {
	t.Helper()
	res := r.TryTransition(s, pkg, trigger, by, payload)
	require.NotNil(t, res, "expected %s/%s by %q to apply", s.Phase, trigger, by)
	return res
}

func TestEveryTimedPhaseHandlesExpiry(t *testing.T) {
	r, _ := newTestRouter()
	rules := models.DefaultRules()
	for _, e := range r.Table() {
		if rules.Durations.For(e.Phase) > 0 {
			assert.True(t, r.Supports(e.Phase, TriggerTimerExpired), "phase %s has a countdown but no expiry handler", e.Phase)
		}
	}
	assert.False(t, r.Supports(models.PhaseChoosing, TriggerTimerExpired))
	assert.False(t, r.Supports(models.PhaseFinished, TriggerUserAction))
}

func TestPickWithoutMediaGoesStraightToShowing(t *testing.T) {
	r, _ := newTestRouter()
	pkg := testPackage()
	s := newSession("p1")

	res := mustTransition(t, r, s, pkg, TriggerUserAction, "host", Pick{Theme: 0, Question: 0})

	assert.Equal(t, models.PhaseChoosing, res.From)
	assert.Equal(t, models.PhaseShowing, res.To)
	assert.Equal(t, models.PhaseShowing, s.Phase)
	assert.Equal(t, []string{"p1"}, s.State.Eligible)
	assert.Equal(t, []string{"r0.t0.q0"}, s.Played)
	require.NotNil(t, s.Timer)
	assert.True(t, s.Timer.Running)
	assert.Equal(t, models.PhaseShowing, s.Timer.Phase)
	assert.Equal(t, []events.Kind{events.KindQuestionPicked, events.KindPhaseChanged}, kinds(res))

	set := timerOp(res, "")
	require.NotNil(t, set)
	assert.Equal(t, timer.OpSet, set.Op)
	require.NotNil(t, set.Record.Deadline)
	assert.Equal(t, s.Timer.ID, set.Record.Timer.ID)
}

func TestPickingAPlayedQuestionIsRejected(t *testing.T) {
	r, _ := newTestRouter()
	s := newSession("p1")
	s.Played = []string{"r0.t0.q0"}

	assert.Nil(t, r.TryTransition(s, testPackage(), TriggerUserAction, "host", Pick{Theme: 0, Question: 0}))
}

func TestWrongAnswerReturnsToShowingWhileOthersCanAnswer(t *testing.T) {
	r, clock := newTestRouter()
	pkg := testPackage()
	s := newSession("p1", "p2")

	mustTransition(t, r, s, pkg, TriggerUserAction, "host", Pick{Theme: 0, Question: 0})
	showingID := s.Timer.ID
	clock.Advance(5 * time.Second)

	res := mustTransition(t, r, s, pkg, TriggerUserAction, "p1", Buzz{})
	assert.Equal(t, models.PhaseAnswering, s.Phase)
	assert.Equal(t, "p1", s.State.Answering)
	require.NotNil(t, s.State.ShowingRestore)
	assert.Equal(t, showingID, s.State.ShowingRestore.ID)
	assert.False(t, s.State.ShowingRestore.Running)
	restore := timerOp(res, timer.SuffixShowing)
	require.NotNil(t, restore)
	assert.Equal(t, timer.OpSet, restore.Op)
	assert.Nil(t, restore.Record.Deadline)

	clock.Advance(3 * time.Second)
	res = mustTransition(t, r, s, pkg, TriggerUserAction, "host", Review{Correct: false})

	assert.Equal(t, models.PhaseShowing, s.Phase)
	assert.Empty(t, s.State.Answering)
	assert.Equal(t, []string{"p1"}, s.State.Answered)
	assert.Equal(t, -100, s.Participant("p1").Score)
	require.NotNil(t, s.Timer)
	assert.Equal(t, showingID, s.Timer.ID)
	assert.True(t, s.Timer.Running)
	assert.Equal(t, 15*time.Second, s.Timer.Remaining(clock.Now()))
	assert.Nil(t, s.State.ShowingRestore)

	active := timerOp(res, "")
	require.NotNil(t, active)
	assert.Equal(t, timer.OpSet, active.Op)
	cleared := timerOp(res, timer.SuffixShowing)
	require.NotNil(t, cleared)
	assert.Equal(t, timer.OpDelete, cleared.Op)

	assert.Nil(t, r.TryTransition(s, pkg, TriggerUserAction, "p1", Buzz{}), "a player who answered may not buzz again")
}

func TestWrongAnswerFromLastEligibleRevealsAnswer(t *testing.T) {
	r, _ := newTestRouter()
	pkg := testPackage()
	s := newSession("p1")

	mustTransition(t, r, s, pkg, TriggerUserAction, "host", Pick{Theme: 0, Question: 0})
	mustTransition(t, r, s, pkg, TriggerUserAction, "p1", Buzz{})
	res := mustTransition(t, r, s, pkg, TriggerUserAction, "host", Review{Correct: false})

	assert.Equal(t, models.PhaseShowingAnswer, s.Phase)
	assert.Equal(t, -100, s.Participant("p1").Score)
	assert.Contains(t, kinds(res), events.KindAnswerRevealed)
	assert.Nil(t, s.State.ShowingRestore)
}

func TestCorrectAnswerTakesTheTurn(t *testing.T) {
	r, _ := newTestRouter()
	pkg := testPackage()
	s := newSession("p1", "p2")

	mustTransition(t, r, s, pkg, TriggerUserAction, "host", Pick{Theme: 0, Question: 0})
	mustTransition(t, r, s, pkg, TriggerUserAction, "p2", Buzz{})
	mustTransition(t, r, s, pkg, TriggerUserAction, "host", Review{Correct: true})

	assert.Equal(t, models.PhaseShowingAnswer, s.Phase)
	assert.Equal(t, 100, s.Participant("p2").Score)
	assert.Equal(t, "p2", s.TurnPlayer)

	mustTransition(t, r, s, pkg, TriggerTimerExpired, "", nil)
	assert.Equal(t, models.PhaseChoosing, s.Phase)
	assert.Nil(t, s.Timer)
}

func TestAnswerTimeoutCountsAsWrong(t *testing.T) {
	r, _ := newTestRouter()
	pkg := testPackage()
	s := newSession("p1")

	mustTransition(t, r, s, pkg, TriggerUserAction, "host", Pick{Theme: 0, Question: 0})
	mustTransition(t, r, s, pkg, TriggerUserAction, "p1", Buzz{})
	res := mustTransition(t, r, s, pkg, TriggerTimerExpired, "", nil)

	assert.Equal(t, models.PhaseShowingAnswer, s.Phase)
	assert.Equal(t, -100, s.Participant("p1").Score)
	require.NotEmpty(t, res.Events)
	result := res.Events[1].Payload.(events.AnswerResultPayload)
	assert.True(t, result.TimedOut)
}

func TestNoRiskQuestionNeverCostsPoints(t *testing.T) {
	r, _ := newTestRouter()
	pkg := testPackage()
	s := newSession("p1")

	mustTransition(t, r, s, pkg, TriggerUserAction, "host", Pick{Theme: 1, Question: 2})
	mustTransition(t, r, s, pkg, TriggerUserAction, "p1", Buzz{})
	mustTransition(t, r, s, pkg, TriggerUserAction, "host", Review{Correct: false})

	assert.Zero(t, s.Participant("p1").Score)
}

func TestSkipByEveryoneRevealsAnswer(t *testing.T) {
	r, _ := newTestRouter()
	pkg := testPackage()
	s := newSession("p1", "p2")

	mustTransition(t, r, s, pkg, TriggerUserAction, "host", Pick{Theme: 0, Question: 0})
	mustTransition(t, r, s, pkg, TriggerUserAction, "p1", Skip{})
	assert.Equal(t, models.PhaseShowing, s.Phase)
	mustTransition(t, r, s, pkg, TriggerUserAction, "p2", Skip{})
	assert.Equal(t, models.PhaseShowingAnswer, s.Phase)
}

func TestLateJoinerIsNotEligible(t *testing.T) {
	r, _ := newTestRouter()
	pkg := testPackage()
	s := newSession("p1")

	mustTransition(t, r, s, pkg, TriggerUserAction, "host", Pick{Theme: 0, Question: 0})
	s.Participants = append(s.Participants, models.Participant{ID: "late", Role: models.RolePlayer, Status: models.StatusActive})

	assert.Nil(t, r.TryTransition(s, pkg, TriggerUserAction, "late", Buzz{}))
}

func TestStakeBiddingResolvesToLastBidder(t *testing.T) {
	r, _ := newTestRouter()
	pkg := testPackage()
	s := newSession("p1", "p2", "p3")

	mustTransition(t, r, s, pkg, TriggerUserAction, "host", Pick{Theme: 1, Question: 0})
	require.Equal(t, models.PhaseStakeBidding, s.Phase)
	require.NotNil(t, s.State.Stake)
	assert.Equal(t, []string{"p1", "p2", "p3"}, s.State.Stake.Order)
	assert.Equal(t, 300, s.State.Stake.Floor)

	assert.Nil(t, r.TryTransition(s, pkg, TriggerUserAction, "p2", Stake{Action: StakeBid, Amount: 300}), "out of turn")
	assert.Nil(t, r.TryTransition(s, pkg, TriggerUserAction, "p1", Stake{Action: StakeBid, Amount: 299}), "below floor")

	mustTransition(t, r, s, pkg, TriggerUserAction, "p1", Stake{Action: StakeBid, Amount: 300})
	assert.Equal(t, "p2", s.State.Stake.Current())
	mustTransition(t, r, s, pkg, TriggerUserAction, "p2", Stake{Action: StakePass})
	assert.Equal(t, "p3", s.State.Stake.Current())
	mustTransition(t, r, s, pkg, TriggerUserAction, "p3", Stake{Action: StakePass})

	assert.Equal(t, models.PhaseAnswering, s.Phase)
	assert.Equal(t, "p1", s.State.Answering)
	assert.Equal(t, 300, s.State.AnswerValue)
	assert.True(t, s.State.SingleAnswerer)
	assert.Nil(t, s.State.Stake)

	assert.Nil(t, r.TryTransition(s, pkg, TriggerUserAction, "p2", Stake{Action: StakeBid, Amount: 400}))

	mustTransition(t, r, s, pkg, TriggerUserAction, "host", Review{Correct: false})
	assert.Equal(t, models.PhaseShowingAnswer, s.Phase, "a stake question has a single answerer")
	assert.Equal(t, -300, s.Participant("p1").Score)
}

func TestStakeHighBidderLeavingClearsTheBid(t *testing.T) {
	r, _ := newTestRouter()
	pkg := testPackage()
	s := newSession("p1", "p2", "p3")

	mustTransition(t, r, s, pkg, TriggerUserAction, "host", Pick{Theme: 1, Question: 0})
	mustTransition(t, r, s, pkg, TriggerUserAction, "p1", Stake{Action: StakeBid, Amount: 300})

	mustTransition(t, r, s, pkg, TriggerPlayerLeft, "p1", Departure{ParticipantID: "p1"})
	assert.Equal(t, models.PhaseStakeBidding, s.Phase)
	assert.Zero(t, s.State.Stake.HighBid)
	assert.Empty(t, s.State.Stake.HighBidder)
	assert.Equal(t, "p2", s.State.Stake.Current())

	mustTransition(t, r, s, pkg, TriggerPlayerLeft, "p2", Departure{ParticipantID: "p2"})
	assert.Equal(t, models.PhaseAnswering, s.Phase)
	assert.Equal(t, "p3", s.State.Answering)
	assert.Equal(t, 300, s.State.AnswerValue)
}

func TestStakeTimeoutAwardsHighBidder(t *testing.T) {
	r, _ := newTestRouter()
	pkg := testPackage()
	s := newSession("p1", "p2", "p3")
	s.Participant("p2").Score = 900

	mustTransition(t, r, s, pkg, TriggerUserAction, "host", Pick{Theme: 1, Question: 0})
	mustTransition(t, r, s, pkg, TriggerUserAction, "p1", Stake{Action: StakePass})
	mustTransition(t, r, s, pkg, TriggerUserAction, "p2", Stake{Action: StakeAllIn})
	assert.True(t, s.State.Stake.AllIn)
	assert.Nil(t, r.TryTransition(s, pkg, TriggerUserAction, "p3", Stake{Action: StakeBid, Amount: 300}), "no plain bids after all-in")

	mustTransition(t, r, s, pkg, TriggerTimerExpired, "", nil)
	assert.Equal(t, models.PhaseAnswering, s.Phase)
	assert.Equal(t, "p2", s.State.Answering)
	assert.Equal(t, 900, s.State.AnswerValue)
}

func TestSecretQuestionTransfer(t *testing.T) {
	r, _ := newTestRouter()
	pkg := testPackage()
	s := newSession("p1", "p2", "p3")

	mustTransition(t, r, s, pkg, TriggerUserAction, "host", Pick{Theme: 1, Question: 1})
	require.Equal(t, models.PhaseSecretTransfer, s.Phase)
	assert.Equal(t, "p1", s.State.Transfer.Holder)
	assert.ElementsMatch(t, []string{"p2", "p3"}, s.State.Transfer.Candidates)

	assert.Nil(t, r.TryTransition(s, pkg, TriggerUserAction, "p2", Transfer{Target: "p3"}), "only the holder transfers")

	res := mustTransition(t, r, s, pkg, TriggerUserAction, "p1", Transfer{Target: "p3"})
	assert.Equal(t, models.PhaseAnswering, s.Phase)
	assert.Equal(t, "p3", s.State.Answering)
	assert.Equal(t, 400, s.State.AnswerValue)
	assert.Contains(t, kinds(res), events.KindSecretTransferred)
}

func TestSecretHolderLeavingAssignsRandomly(t *testing.T) {
	r, _ := newTestRouter()
	pkg := testPackage()
	s := newSession("p1", "p2", "p3")

	mustTransition(t, r, s, pkg, TriggerUserAction, "host", Pick{Theme: 1, Question: 1})
	mustTransition(t, r, s, pkg, TriggerPlayerLeft, "p1", Departure{ParticipantID: "p1"})

	assert.Equal(t, models.PhaseAnswering, s.Phase)
	assert.Contains(t, []string{"p2", "p3"}, s.State.Answering)
}

func TestMediaDownloadAdvancesWhenLastUnreadyPlayerLeaves(t *testing.T) {
	r, _ := newTestRouter()
	pkg := testPackage()
	s := newSession("p1", "p2")

	mustTransition(t, r, s, pkg, TriggerUserAction, "host", Pick{Theme: 0, Question: 1})
	require.Equal(t, models.PhaseMediaDownloading, s.Phase)
	mediaTimer := s.Timer.ID

	mustTransition(t, r, s, pkg, TriggerUserAction, "p1", MediaReady{})
	assert.Equal(t, models.PhaseMediaDownloading, s.Phase)
	assert.Nil(t, r.TryTransition(s, pkg, TriggerConditionMet, "", nil))

	res := mustTransition(t, r, s, pkg, TriggerPlayerLeft, "p2", Departure{ParticipantID: "p2"})
	assert.Equal(t, models.PhaseShowing, s.Phase)
	require.NotNil(t, s.Timer)
	assert.NotEqual(t, mediaTimer, s.Timer.ID)
	set := timerOp(res, "")
	require.NotNil(t, set)
	assert.Equal(t, timer.OpSet, set.Op)
	assert.Equal(t, s.Timer.ID, set.Record.Timer.ID)
}

func TestDepartingAnswererScoresZero(t *testing.T) {
	r, _ := newTestRouter()
	pkg := testPackage()
	s := newSession("p1", "p2")

	mustTransition(t, r, s, pkg, TriggerUserAction, "host", Pick{Theme: 0, Question: 0})
	mustTransition(t, r, s, pkg, TriggerUserAction, "p1", Buzz{})

	assert.Nil(t, r.TryTransition(s, pkg, TriggerPlayerLeft, "p2", Departure{ParticipantID: "p2"}), "only the answerer matters here")

	mustTransition(t, r, s, pkg, TriggerPlayerLeft, "p1", Departure{ParticipantID: "p1"})
	assert.Equal(t, models.PhaseShowing, s.Phase)
	assert.Zero(t, s.Participant("p1").Score)
}

func TestRejectedTriggersLeaveSessionUntouched(t *testing.T) {
	r, _ := newTestRouter()
	pkg := testPackage()

	cases := []struct {
		name    string
		setup   func(s *models.GameSession)
		trigger Trigger
		by      string
		payload any
	}{
		{name: "expiry while choosing", trigger: TriggerTimerExpired},
		{name: "wrong payload", trigger: TriggerUserAction, by: "p1", payload: Buzz{}},
		{name: "question out of range", trigger: TriggerUserAction, by: "host", payload: Pick{Theme: 9, Question: 0}},
		{name: "turn to spectator", trigger: TriggerUserAction, by: "host", payload: SetTurn{ParticipantID: "host"}},
		{name: "non turn-holder leaves", trigger: TriggerPlayerLeft, by: "p2", payload: Departure{ParticipantID: "p2"}},
		{
			name: "stake bid above ceiling",
			setup: func(s *models.GameSession) {
				s.Phase = models.PhaseStakeBidding
				s.State = models.PhaseState{
					Question: &models.QuestionRef{ID: "r0.t1.q0", Theme: 1, Price: 300, Kind: models.QuestionStake},
					Eligible: []string{"p1", "p2"},
					Stake:    &models.StakeBidding{Order: []string{"p1", "p2"}, Floor: 300},
				}
			},
			trigger: TriggerUserAction, by: "p1", payload: Stake{Action: StakeBid, Amount: 301},
		},
		{
			name: "review with nobody answering",
			setup: func(s *models.GameSession) {
				s.Phase = models.PhaseAnswering
				s.State = models.PhaseState{Question: &models.QuestionRef{ID: "r0.t0.q0", Price: 100}}
			},
			trigger: TriggerUserAction, by: "host", payload: Review{Correct: true},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newSession("p1", "p2")
			if tc.setup != nil {
				tc.setup(s)
			}
			before := s.Clone()
			assert.Nil(t, r.TryTransition(s, pkg, tc.trigger, tc.by, tc.payload))
			require.Equal(t, before, s)
		})
	}
}

func TestApplyScoreClampsDeltaThenTotal(t *testing.T) {
	rules := models.Rules{MaxScoreDelta: 1000, MaxAbsoluteScore: 5000}
	cases := []struct {
		name      string
		score     int
		raw       int
		noRisk    bool
		wantDelta int
		wantScore int
	}{
		{name: "within bounds", score: 100, raw: 200, wantDelta: 200, wantScore: 300},
		{name: "delta at limit", score: 0, raw: 1000, wantDelta: 1000, wantScore: 1000},
		{name: "delta over limit", score: 0, raw: 1500, wantDelta: 1000, wantScore: 1000},
		{name: "negative delta over limit", score: 0, raw: -2500, wantDelta: -1000, wantScore: -1000},
		{name: "total at limit", score: 4000, raw: 1000, wantDelta: 1000, wantScore: 5000},
		{name: "total over limit", score: 4500, raw: 1000, wantDelta: 1000, wantScore: 5000},
		{name: "negative total over limit", score: -4800, raw: -500, wantDelta: -500, wantScore: -5000},
		{name: "no risk zeroes loss", score: 100, raw: -500, noRisk: true, wantDelta: 0, wantScore: 100},
		{name: "no risk keeps gain", score: 100, raw: 500, noRisk: true, wantDelta: 500, wantScore: 600},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := &models.Participant{Score: tc.score}
			got := ApplyScore(p, tc.raw, rules, tc.noRisk)
			assert.Equal(t, tc.wantDelta, got)
			assert.Equal(t, tc.wantScore, p.Score)
		})
	}
}

func TestRoundEndGivesTurnToLowestScore(t *testing.T) {
	r, _ := newTestRouter()
	pkg := testPackage()
	s := newSession("p1", "p2")
	s.Participant("p1").Score = 500
	s.Participant("p2").Score = 100
	s.Phase = models.PhaseShowingAnswer
	s.Played = []string{"r0.t0.q0", "r0.t0.q1", "r0.t1.q0", "r0.t1.q1", "r0.t1.q2"}
	s.State = models.PhaseState{Question: &models.QuestionRef{ID: "r0.t1.q2", Theme: 1, Index: 2}}

	res := mustTransition(t, r, s, pkg, TriggerUserAction, "host", Continue{})

	assert.Equal(t, models.PhaseChoosing, s.Phase)
	assert.Equal(t, 1, s.RoundIndex)
	assert.Equal(t, "p2", s.TurnPlayer)
	assert.Empty(t, s.Played)
	assert.Contains(t, kinds(res), events.KindRoundStarted)
}

func TestFinalRound(t *testing.T) {
	r, _ := newTestRouter()
	pkg := testPackage()
	s := newSession("p1", "p2")
	s.Participant("p1").Score = 800
	s.Participant("p2").Score = 200
	s.RoundIndex = 1
	s.Phase = models.PhaseShowingAnswer
	s.Played = []string{"r1.t0.q0"}

	mustTransition(t, r, s, pkg, TriggerTimerExpired, "", nil)
	require.Equal(t, models.PhaseThemeElimination, s.Phase)
	assert.Equal(t, 2, s.RoundIndex)
	assert.Equal(t, []string{"p2", "p1"}, s.State.Elimination.Order, "lowest score eliminates first")
	assert.Equal(t, []int{0, 1, 2}, s.State.Elimination.Remaining)

	assert.Nil(t, r.TryTransition(s, pkg, TriggerUserAction, "p1", Eliminate{Theme: 0}), "not p1's turn")
	firstTimer := s.Timer.ID
	mustTransition(t, r, s, pkg, TriggerUserAction, "p2", Eliminate{Theme: 0})
	assert.Equal(t, "p1", s.State.Elimination.Current())
	assert.NotEqual(t, firstTimer, s.Timer.ID, "each turn gets its own countdown")

	mustTransition(t, r, s, pkg, TriggerUserAction, "p1", Eliminate{Theme: 2})
	require.Equal(t, models.PhaseFinalBidding, s.Phase)
	assert.Equal(t, 1, s.State.Final.Theme)
	assert.Equal(t, "r2.t1.q0", s.State.Question.ID)

	assert.Nil(t, r.TryTransition(s, pkg, TriggerUserAction, "p2", FinalBid{Amount: 201}), "bid above score")
	mustTransition(t, r, s, pkg, TriggerUserAction, "p2", FinalBid{Amount: 200})
	assert.Equal(t, models.PhaseFinalBidding, s.Phase)
	mustTransition(t, r, s, pkg, TriggerTimerExpired, "", nil)
	require.Equal(t, models.PhaseFinalAnswering, s.Phase)
	assert.Equal(t, 1, s.State.Final.Bids["p1"])

	mustTransition(t, r, s, pkg, TriggerUserAction, "p1", FinalAnswer{Text: "Bach"})
	res := mustTransition(t, r, s, pkg, TriggerUserAction, "p2", FinalAnswer{Text: "Mozart"})
	require.Equal(t, models.PhaseFinalReviewing, s.Phase)
	assert.Nil(t, s.Timer)

	var answers *events.Directive
	for i := range res.Events {
		if res.Events[i].Kind == events.KindFinalAnswers {
			answers = &res.Events[i]
		}
	}
	require.NotNil(t, answers)
	assert.Equal(t, events.TargetOne, answers.Target)
	assert.Equal(t, "host", answers.RecipientID)

	mustTransition(t, r, s, pkg, TriggerUserAction, "host", FinalReview{ParticipantID: "p1", Correct: true})
	assert.Equal(t, models.PhaseFinalReviewing, s.Phase)
	res = mustTransition(t, r, s, pkg, TriggerUserAction, "host", FinalReview{ParticipantID: "p2", Correct: false})

	assert.Equal(t, models.PhaseFinished, s.Phase)
	assert.True(t, res.Completed)
	assert.Equal(t, 801, s.Participant("p1").Score)
	assert.Zero(t, s.Participant("p2").Score)
	assert.Contains(t, kinds(res), events.KindGameFinished)
}

func TestFinalEliminationTurnHolderLeaving(t *testing.T) {
	r, _ := newTestRouter()
	pkg := testPackage()
	s := newSession("p1", "p2")
	s.RoundIndex = 2
	s.Phase = models.PhaseThemeElimination
	s.State = models.PhaseState{
		Eligible:    []string{"p1", "p2"},
		Elimination: &models.ThemeElimination{Order: []string{"p1", "p2"}, Remaining: []int{0, 1, 2}},
	}

	assert.Nil(t, r.TryTransition(s, pkg, TriggerPlayerLeft, "p2", Departure{ParticipantID: "p2"}))

	res := mustTransition(t, r, s, pkg, TriggerPlayerLeft, "p1", Departure{ParticipantID: "p1"})
	assert.Len(t, s.State.Elimination.Remaining, 2)
	assert.Equal(t, "p2", s.State.Elimination.Current())
	assert.Contains(t, kinds(res), events.KindThemeEliminated)
}

func TestFinalAnsweringDepartureRecordsEmptyAnswer(t *testing.T) {
	r, _ := newTestRouter()
	pkg := testPackage()
	s := newSession("p1", "p2")
	s.RoundIndex = 2
	s.Phase = models.PhaseFinalAnswering
	s.State = models.PhaseState{
		Question: &models.QuestionRef{ID: "r2.t0.q0", Round: 2},
		Eligible: []string{"p1", "p2"},
		Final: &models.FinalRound{
			Bids:    map[string]int{"p1": 1, "p2": 1},
			Answers: map[string]string{"p1": "Monet"},
			Judged:  map[string]bool{},
		},
	}

	mustTransition(t, r, s, pkg, TriggerPlayerLeft, "p2", Departure{ParticipantID: "p2"})
	assert.Equal(t, models.PhaseFinalReviewing, s.Phase)
	assert.Equal(t, "", s.State.Final.Answers["p2"])

	mustTransition(t, r, s, pkg, TriggerPlayerLeft, "p2", Departure{ParticipantID: "p2"})
	assert.True(t, s.State.Final.Judged["p2"])
	assert.Equal(t, models.PhaseFinalReviewing, s.Phase)
}

func TestStartGameFromLobby(t *testing.T) {
	r, _ := newTestRouter()
	pkg := testPackage()
	s := newSession("p1", "p2")
	s.Phase = models.PhaseLobby
	s.TurnPlayer = ""
	s.Participant("p2").Score = -100

	res := mustTransition(t, r, s, pkg, TriggerUserAction, "host", StartGame{})
	assert.Equal(t, models.PhaseChoosing, s.Phase)
	assert.Equal(t, "p2", s.TurnPlayer)
	assert.Equal(t, events.KindGameStarted, res.Events[0].Kind)
}
