package models

import (
	"slices"
	"time"
)

// Phase is the current state of a session's question lifecycle.
type Phase string

const (
	PhaseLobby            Phase = "LOBBY"
	PhaseChoosing         Phase = "CHOOSING"
	PhaseMediaDownloading Phase = "MEDIA_DOWNLOADING"
	PhaseShowing          Phase = "SHOWING"
	PhaseAnswering        Phase = "ANSWERING"
	PhaseShowingAnswer    Phase = "SHOWING_ANSWER"
	PhaseSecretTransfer   Phase = "SECRET_TRANSFER"
	PhaseStakeBidding     Phase = "STAKE_BIDDING"
	PhaseThemeElimination Phase = "THEME_ELIMINATION"
	PhaseFinalBidding     Phase = "FINAL_BIDDING"
	PhaseFinalAnswering   Phase = "FINAL_ANSWERING"
	PhaseFinalReviewing   Phase = "FINAL_REVIEWING"
	PhaseFinished         Phase = "FINISHED"
)

// Ongoing reports whether a match is in progress in this phase.
func (p Phase) Ongoing() bool {
	return p != PhaseLobby && p != PhaseFinished && p != ""
}

// GameSession is one match: roster, phase, timer and per-phase scratch data.
type GameSession struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Private      bool          `json:"private"`
	PackageID    string        `json:"package_id"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	StartedAt    time.Time     `json:"started_at,omitempty"`
	Version      int64         `json:"version"`
	Rules        Rules         `json:"rules"`
	Participants []Participant `json:"participants"`
	Banned       []string      `json:"banned,omitempty"`

	Phase      Phase      `json:"phase"`
	RoundIndex int        `json:"round_index"`
	Played     []string   `json:"played,omitempty"`
	TurnPlayer string     `json:"turn_player,omitempty"`
	Paused     bool       `json:"paused"`
	Timer      *Timer     `json:"timer,omitempty"`
	State      PhaseState `json:"state"`
}

// Participant returns the roster entry with the given id, or nil.
func (s *GameSession) Participant(id string) *Participant {
	for i := range s.Participants {
		if s.Participants[i].ID == id {
			return &s.Participants[i]
		}
	}
	return nil
}

// Host returns the participant holding the host role, or nil.
func (s *GameSession) Host() *Participant {
	for i := range s.Participants {
		if s.Participants[i].Role == RoleHost {
			return &s.Participants[i]
		}
	}
	return nil
}

// ActivePlayers returns ids of connected players in roster order.
func (s *GameSession) ActivePlayers() []string {
	var ids []string
	for _, p := range s.Participants {
		if p.IsActivePlayer() {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// HasActiveParticipants reports whether anyone is still connected.
func (s *GameSession) HasActiveParticipants() bool {
	for _, p := range s.Participants {
		if p.Status == StatusActive {
			return true
		}
	}
	return false
}

// RemoveParticipant drops a participant from the roster.
func (s *GameSession) RemoveParticipant(id string) bool {
	before := len(s.Participants)
	s.Participants = slices.DeleteFunc(s.Participants, func(p Participant) bool {
		return p.ID == id
	})
	return len(s.Participants) != before
}

// IsBanned reports whether the id was banned from this session.
func (s *GameSession) IsBanned(id string) bool {
	return slices.Contains(s.Banned, id)
}

// IsPlayed reports whether a question was already played this round.
func (s *GameSession) IsPlayed(questionID string) bool {
	return slices.Contains(s.Played, questionID)
}

// FreeSeat returns the lowest seat index not taken by a player.
func (s *GameSession) FreeSeat() int {
	taken := make(map[int]bool)
	for _, p := range s.Participants {
		if p.Role == RolePlayer && p.Seat != nil {
			taken[*p.Seat] = true
		}
	}
	seat := 0
	for taken[seat] {
		seat++
	}
	return seat
}

// PlayerCount returns the number of participants in the player role.
func (s *GameSession) PlayerCount() int {
	n := 0
	for _, p := range s.Participants {
		if p.Role == RolePlayer {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of the session.
func (s *GameSession) Clone() *GameSession {
	c := *s
	c.Participants = make([]Participant, len(s.Participants))
	for i, p := range s.Participants {
		c.Participants[i] = p.Clone()
	}
	if s.Participants == nil {
		c.Participants = nil
	}
	c.Banned = slices.Clone(s.Banned)
	c.Played = slices.Clone(s.Played)
	c.Timer = s.Timer.Clone()
	c.State = s.State.Clone()
	return &c
}
