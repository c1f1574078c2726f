package game

import (
	"context"
	"slices"

	"github.com/mcdev12/quizhall/go/internal/game/router"
	"github.com/mcdev12/quizhall/go/internal/models"
)

// check validates an action against the loaded session. It must not modify s.
type check func(s *models.GameSession, pkg *models.Package, actor *models.Participant) error

// play runs a gameplay action: the sender must be on the roster, the session
// must not be paused, chk must pass and the router must accept the payload.
func (a *App) play(ctx context.Context, sessionID, by string, payload any, chk check) error {
	_, err := a.mutate(ctx, sessionID, func(s *models.GameSession, pkg *models.Package, ch *change) error {
		actor, err := requireParticipant(s, by)
		if err != nil {
			return err
		}
		if s.Paused {
			return reject(CodePaused, "session is paused")
		}
		if pkg == nil {
			return reject(CodeNotApplicable, "package %s is no longer available", s.PackageID)
		}
		if chk != nil {
			if err := chk(s, pkg, actor); err != nil {
				return err
			}
		}
		return a.transition(s, pkg, ch, by, payload)
	})
	return err
}

func hostOnly(actor *models.Participant) error {
	if actor.Role != models.RoleHost {
		return reject(CodeForbidden, "only the host may do this")
	}
	return nil
}

func playerOnly(actor *models.Participant) error {
	if actor.Role != models.RolePlayer {
		return reject(CodeForbidden, "only players may do this")
	}
	return nil
}

func eligible(s *models.GameSession, id string) error {
	if !slices.Contains(s.State.Eligible, id) {
		return reject(CodeNotEligible, "%s is not playing this question", id)
	}
	return nil
}

func final(s *models.GameSession) *models.FinalRound {
	if s.State.Final == nil {
		return &models.FinalRound{}
	}
	return s.State.Final
}

// StartGame leaves the lobby and opens the first round.
func (a *App) StartGame(ctx context.Context, sessionID, by string) error {
	return a.play(ctx, sessionID, by, router.StartGame{}, func(s *models.GameSession, _ *models.Package, actor *models.Participant) error {
		if err := hostOnly(actor); err != nil {
			return err
		}
		if err := requirePhase(s, models.PhaseLobby); err != nil {
			return err
		}
		if len(s.ActivePlayers()) == 0 {
			return reject(CodeInvalid, "at least one connected player is required")
		}
		return nil
	})
}

// PickQuestion selects a question from the board. The turn-holder picks;
// the host may pick on anyone's behalf.
func (a *App) PickQuestion(ctx context.Context, sessionID, by string, theme, question int) error {
	return a.play(ctx, sessionID, by, router.Pick{Theme: theme, Question: question}, func(s *models.GameSession, pkg *models.Package, actor *models.Participant) error {
		if err := requirePhase(s, models.PhaseChoosing); err != nil {
			return err
		}
		if actor.Role != models.RoleHost && s.TurnPlayer != by {
			return reject(CodeNotYourTurn, "%s does not hold the turn", by)
		}
		q := pkg.Question(s.RoundIndex, theme, question)
		if q == nil {
			return reject(CodeInvalid, "no question %d in theme %d", question, theme)
		}
		if s.IsPlayed(q.ID) {
			return reject(CodeInvalid, "question %s was already played", q.ID)
		}
		return nil
	})
}

// SetTurnPlayer hands the turn to a connected player.
func (a *App) SetTurnPlayer(ctx context.Context, sessionID, by, target string) error {
	return a.play(ctx, sessionID, by, router.SetTurn{ParticipantID: target}, func(s *models.GameSession, _ *models.Package, actor *models.Participant) error {
		if err := hostOnly(actor); err != nil {
			return err
		}
		if err := requirePhase(s, models.PhaseChoosing); err != nil {
			return err
		}
		if p := s.Participant(target); p == nil || !p.IsActivePlayer() {
			return reject(CodeInvalid, "%s is not a connected player", target)
		}
		return nil
	})
}

// BuzzIn claims the answering slot. Only the first buzz is accepted.
func (a *App) BuzzIn(ctx context.Context, sessionID, by string) error {
	return a.play(ctx, sessionID, by, router.Buzz{}, func(s *models.GameSession, _ *models.Package, actor *models.Participant) error {
		if err := requirePhase(s, models.PhaseShowing); err != nil {
			return err
		}
		if err := playerOnly(actor); err != nil {
			return err
		}
		if err := eligible(s, by); err != nil {
			return err
		}
		if slices.Contains(s.State.Answered, by) || slices.Contains(s.State.Skipped, by) {
			return reject(CodeNotEligible, "%s already answered or skipped", by)
		}
		return nil
	})
}

// Skip gives up the current question.
func (a *App) Skip(ctx context.Context, sessionID, by string) error {
	return a.play(ctx, sessionID, by, router.Skip{}, func(s *models.GameSession, _ *models.Package, _ *models.Participant) error {
		if err := requirePhase(s, models.PhaseShowing); err != nil {
			return err
		}
		if err := eligible(s, by); err != nil {
			return err
		}
		if slices.Contains(s.State.Answered, by) || slices.Contains(s.State.Skipped, by) {
			return reject(CodeNotEligible, "%s already answered or skipped", by)
		}
		return nil
	})
}

// MediaReady reports that a player finished downloading question media.
func (a *App) MediaReady(ctx context.Context, sessionID, by string) error {
	return a.play(ctx, sessionID, by, router.MediaReady{}, func(s *models.GameSession, _ *models.Package, _ *models.Participant) error {
		if err := requirePhase(s, models.PhaseMediaDownloading); err != nil {
			return err
		}
		if err := eligible(s, by); err != nil {
			return err
		}
		if slices.Contains(s.State.MediaReady, by) {
			return reject(CodeInvalid, "%s already reported ready", by)
		}
		return nil
	})
}

// ReviewAnswer is the host's verdict on a spoken answer.
func (a *App) ReviewAnswer(ctx context.Context, sessionID, by string, correct bool) error {
	return a.play(ctx, sessionID, by, router.Review{Correct: correct}, func(s *models.GameSession, _ *models.Package, actor *models.Participant) error {
		if err := hostOnly(actor); err != nil {
			return err
		}
		return requirePhase(s, models.PhaseAnswering)
	})
}

// Continue moves on from a revealed answer.
func (a *App) Continue(ctx context.Context, sessionID, by string) error {
	return a.play(ctx, sessionID, by, router.Continue{}, func(s *models.GameSession, _ *models.Package, actor *models.Participant) error {
		if err := hostOnly(actor); err != nil {
			return err
		}
		return requirePhase(s, models.PhaseShowingAnswer)
	})
}

// TransferSecret passes a secret question to another player.
func (a *App) TransferSecret(ctx context.Context, sessionID, by, target string) error {
	return a.play(ctx, sessionID, by, router.Transfer{Target: target}, func(s *models.GameSession, _ *models.Package, _ *models.Participant) error {
		if err := requirePhase(s, models.PhaseSecretTransfer); err != nil {
			return err
		}
		t := s.State.Transfer
		if t == nil || t.Holder != by {
			return reject(CodeNotYourTurn, "%s does not hold the secret question", by)
		}
		if !slices.Contains(t.Candidates, target) {
			return reject(CodeInvalid, "%s cannot receive the question", target)
		}
		return nil
	})
}

// StakeBid places a bid, passes or goes all-in on a stake question.
func (a *App) StakeBid(ctx context.Context, sessionID, by string, action router.StakeAction, amount int) error {
	return a.play(ctx, sessionID, by, router.Stake{Action: action, Amount: amount}, func(s *models.GameSession, _ *models.Package, _ *models.Participant) error {
		if err := requirePhase(s, models.PhaseStakeBidding); err != nil {
			return err
		}
		b := s.State.Stake
		if b == nil || !slices.Contains(b.Order, by) {
			return reject(CodeNotEligible, "%s is not bidding", by)
		}
		if b.HasPassed(by) {
			return reject(CodeNotEligible, "%s already passed", by)
		}
		if b.Current() != by {
			return reject(CodeNotYourTurn, "it is %s's turn to bid", b.Current())
		}
		switch action {
		case router.StakeBid, router.StakePass, router.StakeAllIn:
		default:
			return reject(CodeInvalid, "unknown stake action %s", action)
		}
		return nil
	})
}

// EliminateTheme removes a theme from the final round board.
func (a *App) EliminateTheme(ctx context.Context, sessionID, by string, theme int) error {
	return a.play(ctx, sessionID, by, router.Eliminate{Theme: theme}, func(s *models.GameSession, _ *models.Package, _ *models.Participant) error {
		if err := requirePhase(s, models.PhaseThemeElimination); err != nil {
			return err
		}
		e := s.State.Elimination
		if e == nil || e.Current() != by {
			return reject(CodeNotYourTurn, "%s does not hold the turn", by)
		}
		if !slices.Contains(e.Remaining, theme) {
			return reject(CodeInvalid, "theme %d is not on the board", theme)
		}
		return nil
	})
}

// SubmitFinalBid places a player's final round stake.
func (a *App) SubmitFinalBid(ctx context.Context, sessionID, by string, amount int) error {
	return a.play(ctx, sessionID, by, router.FinalBid{Amount: amount}, func(s *models.GameSession, _ *models.Package, _ *models.Participant) error {
		if err := requirePhase(s, models.PhaseFinalBidding); err != nil {
			return err
		}
		if err := eligible(s, by); err != nil {
			return err
		}
		if _, ok := final(s).Bids[by]; ok {
			return reject(CodeInvalid, "%s already placed a bid", by)
		}
		return nil
	})
}

// SubmitFinalAnswer records a player's written final answer.
func (a *App) SubmitFinalAnswer(ctx context.Context, sessionID, by, text string) error {
	return a.play(ctx, sessionID, by, router.FinalAnswer{Text: text}, func(s *models.GameSession, _ *models.Package, _ *models.Participant) error {
		if err := requirePhase(s, models.PhaseFinalAnswering); err != nil {
			return err
		}
		if err := eligible(s, by); err != nil {
			return err
		}
		if _, ok := final(s).Answers[by]; ok {
			return reject(CodeInvalid, "%s already answered", by)
		}
		return nil
	})
}

// ReviewFinalAnswer is the host's verdict on one final answer.
func (a *App) ReviewFinalAnswer(ctx context.Context, sessionID, by, target string, correct bool) error {
	return a.play(ctx, sessionID, by, router.FinalReview{ParticipantID: target, Correct: correct}, func(s *models.GameSession, _ *models.Package, actor *models.Participant) error {
		if err := hostOnly(actor); err != nil {
			return err
		}
		if err := requirePhase(s, models.PhaseFinalReviewing); err != nil {
			return err
		}
		if final(s).Judged[target] {
			return reject(CodeInvalid, "%s was already judged", target)
		}
		return nil
	})
}
