// Package departure unwinds the phase-specific roles of a participant who
// stops being active.
//
// Steps run in a fixed order, each a no-op when it does not apply:
//
//  1. unresolved stake bidder auto-passes
//  2. missing final bid is submitted at the minimum
//  3. the current answerer, or a final answerer or reviewee, is settled
//  4. the turn-holder is cleared, or a final theme is auto-eliminated
//  5. the roster changes
//  6. media readiness is recomputed against the new roster
//
// Every step is a PLAYER_LEFT attempt on the same router.
package departure

import (
	"errors"
	"fmt"
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizhall/go/internal/events"
	"github.com/mcdev12/quizhall/go/internal/game/router"
	"github.com/mcdev12/quizhall/go/internal/game/timer"
	"github.com/mcdev12/quizhall/go/internal/models"
)

// ErrUnknownParticipant is returned for an id that is not on the roster.
var ErrUnknownParticipant = errors.New("participant is not in the session")

// Reason says why a participant stopped being active.
type Reason string

const (
	ReasonLeave      Reason = "LEAVE"
	ReasonDisconnect Reason = "DISCONNECT"
	ReasonKick       Reason = "KICK"
	ReasonBan        Reason = "BAN"
	ReasonDemote     Reason = "DEMOTE"
)

// Outcome aggregates every transition the departure caused.
type Outcome struct {
	Events    []events.Directive
	Timers    []timer.Directive
	Completed bool
	Removed   bool
}

func (o *Outcome) add(res *router.TransitionResult) {
	o.Events = append(o.Events, res.Events...)
	o.Timers = append(o.Timers, res.Timers...)
	o.Completed = o.Completed || res.Completed
}

type Reconciler struct {
	router *router.Router
}

func New(r *router.Router) *Reconciler {
	return &Reconciler{router: r}
}

// Depart runs every step. A disconnect keeps the participant on the roster
// as DISCONNECTED; every other reason removes them.
func (r *Reconciler) Depart(s *models.GameSession, pkg *models.Package, participantID string, reason Reason) (*Outcome, error) {
	return r.reconcile(s, pkg, participantID, func(out *Outcome) {
		r.applyDeparture(s, participantID, reason, out)
	})
}

// Withdraw runs the steps without removing the participant, who also leaves
// the lobby ready list. change, when set, is applied where the roster would
// otherwise change, so readiness is recomputed after it.
func (r *Reconciler) Withdraw(s *models.GameSession, pkg *models.Package, participantID string, change func(p *models.Participant)) (*Outcome, error) {
	return r.reconcile(s, pkg, participantID, func(*Outcome) {
		dropReady(s, participantID)
		if change == nil {
			return
		}
		if p := s.Participant(participantID); p != nil {
			change(p)
		}
	})
}

func (r *Reconciler) reconcile(s *models.GameSession, pkg *models.Package, participantID string, rosterStep func(*Outcome)) (*Outcome, error) {
	if s.Participant(participantID) == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownParticipant, participantID)
	}
	out := &Outcome{}
	left := router.Departure{ParticipantID: participantID}

	r.attempt(s, pkg, left, out, "stake", models.PhaseStakeBidding)
	r.attempt(s, pkg, left, out, "final_bid", models.PhaseFinalBidding)
	r.attempt(s, pkg, left, out, "answer", models.PhaseAnswering, models.PhaseFinalAnswering, models.PhaseFinalReviewing)
	if !r.attempt(s, pkg, left, out, "turn", models.PhaseChoosing, models.PhaseSecretTransfer, models.PhaseThemeElimination) {
		if e := s.State.Elimination; s.Phase == models.PhaseThemeElimination && e != nil && e.Current() == participantID {
			log.Warn().
				Str("session_id", s.ID).
				Str("participant_id", participantID).
				Ints("remaining", e.Remaining).
				Msg("could not auto-eliminate theme for departing player")
		}
	}

	rosterStep(out)

	r.attempt(s, pkg, left, out, "readiness", models.PhaseMediaDownloading, models.PhaseShowing)
	return out, nil
}

// attempt runs one step if the session is in one of phases and reports
// whether a transition applied.
func (r *Reconciler) attempt(s *models.GameSession, pkg *models.Package, left router.Departure, out *Outcome, step string, phases ...models.Phase) bool {
	if !slices.Contains(phases, s.Phase) {
		return false
	}
	from := s.Phase
	res := r.router.TryTransition(s, pkg, router.TriggerPlayerLeft, left.ParticipantID, left)
	if res == nil {
		return false
	}
	log.Debug().
		Str("session_id", s.ID).
		Str("participant_id", left.ParticipantID).
		Str("step", step).
		Str("from", string(from)).
		Str("to", string(res.To)).
		Msg("departure step applied")
	out.add(res)
	return true
}

func dropReady(s *models.GameSession, participantID string) {
	s.State.LobbyReady = slices.DeleteFunc(s.State.LobbyReady, func(id string) bool { return id == participantID })
}

func (r *Reconciler) applyDeparture(s *models.GameSession, participantID string, reason Reason, out *Outcome) {
	dropReady(s, participantID)

	if reason == ReasonDisconnect {
		p := s.Participant(participantID)
		p.Status = models.StatusDisconnected
		out.Events = append(out.Events, events.ToAll(s.ID, events.KindParticipantUpdated, events.ParticipantPayload{
			Participant: p.Clone(),
			Reason:      string(reason),
		}))
		return
	}

	s.RemoveParticipant(participantID)
	if reason == ReasonBan && !s.IsBanned(participantID) {
		s.Banned = append(s.Banned, participantID)
	}
	out.Removed = true
	out.Events = append(out.Events, events.ToAll(s.ID, events.KindParticipantLeft, events.ParticipantLeftPayload{
		ParticipantID: participantID,
		Reason:        string(reason),
	}))
}
