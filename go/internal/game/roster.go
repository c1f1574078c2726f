package game

import (
	"context"
	"maps"
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizhall/go/internal/events"
	"github.com/mcdev12/quizhall/go/internal/game/departure"
	"github.com/mcdev12/quizhall/go/internal/models"
)

func requireParticipant(s *models.GameSession, id string) (*models.Participant, error) {
	p := s.Participant(id)
	if p == nil {
		return nil, reject(CodeNotParticipant, "%s is not in session %s", id, s.ID)
	}
	return p, nil
}

func requireHost(s *models.GameSession, id string) (*models.Participant, error) {
	p, err := requireParticipant(s, id)
	if err != nil {
		return nil, err
	}
	if p.Role != models.RoleHost {
		return nil, reject(CodeForbidden, "only the host may do this")
	}
	return p, nil
}

func requirePhase(s *models.GameSession, phases ...models.Phase) error {
	if !slices.Contains(phases, s.Phase) {
		return reject(CodeWrongPhase, "not allowed in phase %s", s.Phase)
	}
	return nil
}

// JoinRequest attaches an identity to a session.
type JoinRequest struct {
	ParticipantID string      `json:"participant_id"`
	Name          string      `json:"name"`
	Role          models.Role `json:"role,omitempty"`
}

// Join adds a participant, or reconnects one already on the roster. The
// joiner receives a STATE_SYNC of what it may see; everyone else a roster
// event.
func (a *App) Join(ctx context.Context, sessionID string, req JoinRequest) (*models.GameSession, error) {
	if req.ParticipantID == "" {
		return nil, reject(CodeInvalid, "participant id is required")
	}
	return a.mutate(ctx, sessionID, func(s *models.GameSession, _ *models.Package, ch *change) error {
		if s.IsBanned(req.ParticipantID) {
			return reject(CodeBanned, "%s is banned from this session", req.ParticipantID)
		}

		if p := s.Participant(req.ParticipantID); p != nil {
			p.Status = models.StatusActive
			if req.Name != "" {
				p.Name = req.Name
			}
			ch.emit(events.ToAll(s.ID, events.KindParticipantUpdated, events.ParticipantPayload{
				Participant: p.Clone(),
				Reason:      "RECONNECT",
			}))
		} else {
			p, err := a.seat(s, req)
			if err != nil {
				return err
			}
			s.Participants = append(s.Participants, p)
			ch.emit(events.ToAll(s.ID, events.KindParticipantJoined, events.ParticipantPayload{Participant: p.Clone()}))
		}

		ch.emit(events.ToOne(s.ID, req.ParticipantID, events.KindStateSync, View(s, req.ParticipantID)))
		if s.Phase == models.PhaseFinalReviewing && s.Participant(req.ParticipantID).Role == models.RoleHost {
			ch.emit(finalAnswers(s, req.ParticipantID))
		}
		return nil
	})
}

func (a *App) seat(s *models.GameSession, req JoinRequest) (models.Participant, error) {
	role := req.Role
	if role == "" {
		role = models.RolePlayer
	}
	name := req.Name
	if name == "" {
		name = req.ParticipantID
	}
	p := models.Participant{
		ID:       req.ParticipantID,
		Name:     name,
		Role:     role,
		Status:   models.StatusActive,
		JoinedAt: a.clock.Now(),
	}
	switch role {
	case models.RoleHost:
		if s.Host() != nil {
			return p, reject(CodeForbidden, "session already has a host")
		}
	case models.RolePlayer:
		if s.PlayerCount() >= s.Rules.MaxPlayers {
			return p, reject(CodeSessionFull, "all %d seats are taken", s.Rules.MaxPlayers)
		}
		seat := s.FreeSeat()
		p.Seat = &seat
	case models.RoleSpectator:
	default:
		return p, reject(CodeInvalid, "unknown role %s", role)
	}
	return p, nil
}

// Disconnect marks a participant DISCONNECTED and releases any phase role
// they held. Unknown ids are ignored: the connection may outlive a kick.
func (a *App) Disconnect(ctx context.Context, sessionID, participantID string) error {
	return a.depart(ctx, sessionID, participantID, departure.ReasonDisconnect)
}

// Leave removes a participant for good.
func (a *App) Leave(ctx context.Context, sessionID, participantID string) error {
	return a.depart(ctx, sessionID, participantID, departure.ReasonLeave)
}

func (a *App) depart(ctx context.Context, sessionID, participantID string, reason departure.Reason) error {
	_, err := a.mutate(ctx, sessionID, func(s *models.GameSession, pkg *models.Package, ch *change) error {
		p := s.Participant(participantID)
		if p == nil || (reason == departure.ReasonDisconnect && p.Status == models.StatusDisconnected) {
			return errUnchanged
		}
		out, err := a.departures.Depart(s, pkg, participantID, reason)
		if err != nil {
			return err
		}
		ch.addOutcome(out)
		return nil
	})
	return err
}

// Kick removes another participant. Only the host may kick.
func (a *App) Kick(ctx context.Context, sessionID, by, target string) error {
	return a.remove(ctx, sessionID, by, target, departure.ReasonKick)
}

// Ban kicks and refuses every later join with the same id.
func (a *App) Ban(ctx context.Context, sessionID, by, target string) error {
	return a.remove(ctx, sessionID, by, target, departure.ReasonBan)
}

func (a *App) remove(ctx context.Context, sessionID, by, target string, reason departure.Reason) error {
	_, err := a.mutate(ctx, sessionID, func(s *models.GameSession, pkg *models.Package, ch *change) error {
		if _, err := requireHost(s, by); err != nil {
			return err
		}
		if by == target {
			return reject(CodeInvalid, "the host cannot %s themselves", reason)
		}
		if _, err := requireParticipant(s, target); err != nil {
			return err
		}
		out, err := a.departures.Depart(s, pkg, target, reason)
		if err != nil {
			return err
		}
		ch.addOutcome(out)
		log.Info().
			Str("session_id", s.ID).
			Str("participant_id", target).
			Str("reason", string(reason)).
			Msg("participant removed by host")
		return nil
	})
	return err
}

// ChangeRole moves a participant between player and spectator. Participants
// may change their own role; the host may change anyone's.
func (a *App) ChangeRole(ctx context.Context, sessionID, by, target string, role models.Role) error {
	_, err := a.mutate(ctx, sessionID, func(s *models.GameSession, pkg *models.Package, ch *change) error {
		actor, err := requireParticipant(s, by)
		if err != nil {
			return err
		}
		if by != target && actor.Role != models.RoleHost {
			return reject(CodeForbidden, "only the host may change another participant's role")
		}
		p, err := requireParticipant(s, target)
		if err != nil {
			return err
		}
		if p.Role == models.RoleHost {
			return reject(CodeInvalid, "the host role is released by leaving")
		}
		if p.Role == role {
			return errUnchanged
		}

		switch role {
		case models.RoleSpectator:
			out, err := a.departures.Withdraw(s, pkg, target, func(p *models.Participant) {
				p.Role = models.RoleSpectator
				p.Seat = nil
			})
			if err != nil {
				return err
			}
			ch.addOutcome(out)
		case models.RolePlayer:
			if s.PlayerCount() >= s.Rules.MaxPlayers {
				return reject(CodeSessionFull, "all %d seats are taken", s.Rules.MaxPlayers)
			}
			seat := s.FreeSeat()
			p.Role = models.RolePlayer
			p.Seat = &seat
		default:
			return reject(CodeInvalid, "cannot change role to %s", role)
		}

		ch.emit(events.ToAll(s.ID, events.KindParticipantUpdated, events.ParticipantPayload{
			Participant: s.Participant(target).Clone(),
			Reason:      "ROLE_CHANGED",
		}))
		return nil
	})
	return err
}

// ClaimHost gives the host role to a participant when nobody connected holds
// it. A disconnected host is demoted to spectator.
func (a *App) ClaimHost(ctx context.Context, sessionID, by string) error {
	_, err := a.mutate(ctx, sessionID, func(s *models.GameSession, pkg *models.Package, ch *change) error {
		p, err := requireParticipant(s, by)
		if err != nil {
			return err
		}
		if p.Role == models.RoleHost {
			return errUnchanged
		}
		if old := s.Host(); old != nil {
			if old.Status == models.StatusActive {
				return reject(CodeForbidden, "session already has a host")
			}
			old.Role = models.RoleSpectator
			ch.emit(events.ToAll(s.ID, events.KindParticipantUpdated, events.ParticipantPayload{
				Participant: old.Clone(),
				Reason:      string(departure.ReasonDemote),
			}))
		}

		out, err := a.departures.Withdraw(s, pkg, by, func(p *models.Participant) {
			p.Role = models.RoleHost
			p.Seat = nil
		})
		if err != nil {
			return err
		}
		ch.addOutcome(out)
		ch.emit(events.ToAll(s.ID, events.KindParticipantUpdated, events.ParticipantPayload{
			Participant: s.Participant(by).Clone(),
			Reason:      "HOST_CLAIMED",
		}))
		if s.Phase == models.PhaseFinalReviewing {
			ch.emit(finalAnswers(s, by))
		}
		return nil
	})
	return err
}

// SetReady toggles a player's lobby readiness.
func (a *App) SetReady(ctx context.Context, sessionID, by string, ready bool) error {
	_, err := a.mutate(ctx, sessionID, func(s *models.GameSession, _ *models.Package, ch *change) error {
		p, err := requireParticipant(s, by)
		if err != nil {
			return err
		}
		if err := requirePhase(s, models.PhaseLobby); err != nil {
			return err
		}
		if p.Role != models.RolePlayer {
			return reject(CodeForbidden, "only players can be ready")
		}
		if slices.Contains(s.State.LobbyReady, by) == ready {
			return errUnchanged
		}
		if ready {
			s.State.LobbyReady = append(s.State.LobbyReady, by)
		} else {
			s.State.LobbyReady = slices.DeleteFunc(s.State.LobbyReady, func(id string) bool { return id == by })
		}
		ch.emit(events.ToAll(s.ID, events.KindReadyChanged, events.ReadyPayload{ParticipantID: by, Ready: ready}))
		return nil
	})
	return err
}

func finalAnswers(s *models.GameSession, hostID string) events.Directive {
	payload := events.FinalAnswersPayload{}
	if f := s.State.Final; f != nil {
		payload.Answers = maps.Clone(f.Answers)
		payload.Bids = maps.Clone(f.Bids)
	}
	return events.ToOne(s.ID, hostID, events.KindFinalAnswers, payload)
}
