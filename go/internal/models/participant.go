package models

import "time"

// Role defines what a participant may do in a session.
type Role string

const (
	RoleHost      Role = "HOST"
	RolePlayer    Role = "PLAYER"
	RoleSpectator Role = "SPECTATOR"
)

// ConnectionStatus tracks whether a participant's push channel is open.
type ConnectionStatus string

const (
	StatusActive       ConnectionStatus = "ACTIVE"
	StatusDisconnected ConnectionStatus = "DISCONNECTED"
)

// Participant is any identity attached to a session.
type Participant struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Role     Role             `json:"role"`
	Status   ConnectionStatus `json:"status"`
	Score    int              `json:"score"`
	Seat     *int             `json:"seat,omitempty"` // players only
	Muted    bool             `json:"muted,omitempty"`
	JoinedAt time.Time        `json:"joined_at"`
}

// IsActivePlayer reports whether the participant is a connected player.
func (p Participant) IsActivePlayer() bool {
	return p.Role == RolePlayer && p.Status == StatusActive
}

func (p Participant) Clone() Participant {
	if p.Seat != nil {
		seat := *p.Seat
		p.Seat = &seat
	}
	return p
}
