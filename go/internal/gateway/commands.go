package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizhall/go/internal/events"
	"github.com/mcdev12/quizhall/go/internal/game"
	"github.com/mcdev12/quizhall/go/internal/game/router"
	"github.com/mcdev12/quizhall/go/internal/models"
	"github.com/mcdev12/quizhall/go/internal/session"
)

// Sessions is what the gateway needs from the game App.
type Sessions interface {
	Join(ctx context.Context, sessionID string, req game.JoinRequest) (*models.GameSession, error)
	Disconnect(ctx context.Context, sessionID, participantID string) error
	Leave(ctx context.Context, sessionID, participantID string) error
	Kick(ctx context.Context, sessionID, by, target string) error
	Ban(ctx context.Context, sessionID, by, target string) error
	ChangeRole(ctx context.Context, sessionID, by, target string, role models.Role) error
	ClaimHost(ctx context.Context, sessionID, by string) error
	SetReady(ctx context.Context, sessionID, by string, ready bool) error
	StartGame(ctx context.Context, sessionID, by string) error
	PickQuestion(ctx context.Context, sessionID, by string, theme, question int) error
	SetTurnPlayer(ctx context.Context, sessionID, by, target string) error
	BuzzIn(ctx context.Context, sessionID, by string) error
	Skip(ctx context.Context, sessionID, by string) error
	MediaReady(ctx context.Context, sessionID, by string) error
	ReviewAnswer(ctx context.Context, sessionID, by string, correct bool) error
	Continue(ctx context.Context, sessionID, by string) error
	TransferSecret(ctx context.Context, sessionID, by, target string) error
	StakeBid(ctx context.Context, sessionID, by string, action router.StakeAction, amount int) error
	EliminateTheme(ctx context.Context, sessionID, by string, theme int) error
	SubmitFinalBid(ctx context.Context, sessionID, by string, amount int) error
	SubmitFinalAnswer(ctx context.Context, sessionID, by, text string) error
	ReviewFinalAnswer(ctx context.Context, sessionID, by, target string, correct bool) error
	AdjustScore(ctx context.Context, sessionID, by, target string, delta int) error
	Pause(ctx context.Context, sessionID, by string) error
	Unpause(ctx context.Context, sessionID, by string) error
	GetSession(ctx context.Context, sessionID string) (*models.GameSession, error)
	CreateSession(ctx context.Context, req game.CreateRequest) (*models.GameSession, error)
	DeleteSession(ctx context.Context, sessionID, by string) error
	ListSessions(ctx context.Context, filter session.ListFilter) ([]session.Summary, error)
}

// commandTimeout bounds one client command, including the wait for the
// session lock.
const commandTimeout = 30 * time.Second

type target struct {
	ParticipantID string `json:"participant_id"`
}

type handlerFunc func(ctx context.Context, sessions Sessions, c *Connection, payload json.RawMessage) error

// commands maps client frame types to App operations.
var commands = map[string]handlerFunc{
	"LEAVE": func(ctx context.Context, s Sessions, c *Connection, _ json.RawMessage) error {
		return s.Leave(ctx, c.SessionID, c.ParticipantID)
	},
	"SET_READY": func(ctx context.Context, s Sessions, c *Connection, raw json.RawMessage) error {
		var p struct {
			Ready bool `json:"ready"`
		}
		if err := decode(raw, &p); err != nil {
			return err
		}
		return s.SetReady(ctx, c.SessionID, c.ParticipantID, p.Ready)
	},
	"CHANGE_ROLE": func(ctx context.Context, s Sessions, c *Connection, raw json.RawMessage) error {
		var p struct {
			ParticipantID string      `json:"participant_id"`
			Role          models.Role `json:"role"`
		}
		if err := decode(raw, &p); err != nil {
			return err
		}
		if p.ParticipantID == "" {
			p.ParticipantID = c.ParticipantID
		}
		return s.ChangeRole(ctx, c.SessionID, c.ParticipantID, p.ParticipantID, p.Role)
	},
	"CLAIM_HOST": func(ctx context.Context, s Sessions, c *Connection, _ json.RawMessage) error {
		return s.ClaimHost(ctx, c.SessionID, c.ParticipantID)
	},
	"KICK": func(ctx context.Context, s Sessions, c *Connection, raw json.RawMessage) error {
		var p target
		if err := decode(raw, &p); err != nil {
			return err
		}
		return s.Kick(ctx, c.SessionID, c.ParticipantID, p.ParticipantID)
	},
	"BAN": func(ctx context.Context, s Sessions, c *Connection, raw json.RawMessage) error {
		var p target
		if err := decode(raw, &p); err != nil {
			return err
		}
		return s.Ban(ctx, c.SessionID, c.ParticipantID, p.ParticipantID)
	},
	"START_GAME": func(ctx context.Context, s Sessions, c *Connection, _ json.RawMessage) error {
		return s.StartGame(ctx, c.SessionID, c.ParticipantID)
	},
	"PICK_QUESTION": func(ctx context.Context, s Sessions, c *Connection, raw json.RawMessage) error {
		var p router.Pick
		if err := decode(raw, &p); err != nil {
			return err
		}
		return s.PickQuestion(ctx, c.SessionID, c.ParticipantID, p.Theme, p.Question)
	},
	"SET_TURN": func(ctx context.Context, s Sessions, c *Connection, raw json.RawMessage) error {
		var p target
		if err := decode(raw, &p); err != nil {
			return err
		}
		return s.SetTurnPlayer(ctx, c.SessionID, c.ParticipantID, p.ParticipantID)
	},
	"BUZZ": func(ctx context.Context, s Sessions, c *Connection, _ json.RawMessage) error {
		return s.BuzzIn(ctx, c.SessionID, c.ParticipantID)
	},
	"SKIP": func(ctx context.Context, s Sessions, c *Connection, _ json.RawMessage) error {
		return s.Skip(ctx, c.SessionID, c.ParticipantID)
	},
	"MEDIA_READY": func(ctx context.Context, s Sessions, c *Connection, _ json.RawMessage) error {
		return s.MediaReady(ctx, c.SessionID, c.ParticipantID)
	},
	"REVIEW_ANSWER": func(ctx context.Context, s Sessions, c *Connection, raw json.RawMessage) error {
		var p router.Review
		if err := decode(raw, &p); err != nil {
			return err
		}
		return s.ReviewAnswer(ctx, c.SessionID, c.ParticipantID, p.Correct)
	},
	"CONTINUE": func(ctx context.Context, s Sessions, c *Connection, _ json.RawMessage) error {
		return s.Continue(ctx, c.SessionID, c.ParticipantID)
	},
	"TRANSFER_SECRET": func(ctx context.Context, s Sessions, c *Connection, raw json.RawMessage) error {
		var p router.Transfer
		if err := decode(raw, &p); err != nil {
			return err
		}
		return s.TransferSecret(ctx, c.SessionID, c.ParticipantID, p.Target)
	},
	"STAKE_BID": func(ctx context.Context, s Sessions, c *Connection, raw json.RawMessage) error {
		var p router.Stake
		if err := decode(raw, &p); err != nil {
			return err
		}
		return s.StakeBid(ctx, c.SessionID, c.ParticipantID, p.Action, p.Amount)
	},
	"ELIMINATE_THEME": func(ctx context.Context, s Sessions, c *Connection, raw json.RawMessage) error {
		var p router.Eliminate
		if err := decode(raw, &p); err != nil {
			return err
		}
		return s.EliminateTheme(ctx, c.SessionID, c.ParticipantID, p.Theme)
	},
	"FINAL_BID": func(ctx context.Context, s Sessions, c *Connection, raw json.RawMessage) error {
		var p router.FinalBid
		if err := decode(raw, &p); err != nil {
			return err
		}
		return s.SubmitFinalBid(ctx, c.SessionID, c.ParticipantID, p.Amount)
	},
	"FINAL_ANSWER": func(ctx context.Context, s Sessions, c *Connection, raw json.RawMessage) error {
		var p router.FinalAnswer
		if err := decode(raw, &p); err != nil {
			return err
		}
		return s.SubmitFinalAnswer(ctx, c.SessionID, c.ParticipantID, p.Text)
	},
	"FINAL_REVIEW": func(ctx context.Context, s Sessions, c *Connection, raw json.RawMessage) error {
		var p router.FinalReview
		if err := decode(raw, &p); err != nil {
			return err
		}
		return s.ReviewFinalAnswer(ctx, c.SessionID, c.ParticipantID, p.ParticipantID, p.Correct)
	},
	"ADJUST_SCORE": func(ctx context.Context, s Sessions, c *Connection, raw json.RawMessage) error {
		var p struct {
			ParticipantID string `json:"participant_id"`
			Delta         int    `json:"delta"`
		}
		if err := decode(raw, &p); err != nil {
			return err
		}
		return s.AdjustScore(ctx, c.SessionID, c.ParticipantID, p.ParticipantID, p.Delta)
	},
	"PAUSE": func(ctx context.Context, s Sessions, c *Connection, _ json.RawMessage) error {
		return s.Pause(ctx, c.SessionID, c.ParticipantID)
	},
	"UNPAUSE": func(ctx context.Context, s Sessions, c *Connection, _ json.RawMessage) error {
		return s.Unpause(ctx, c.SessionID, c.ParticipantID)
	},
	"SYNC": func(ctx context.Context, s Sessions, c *Connection, _ json.RawMessage) error {
		snapshot, err := s.GetSession(ctx, c.SessionID)
		if err != nil {
			return err
		}
		return c.sendDirect(events.KindStateSync, game.View(snapshot, c.ParticipantID))
	},
}

var errBadPayload = errors.New("malformed payload")

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", errBadPayload, err)
	}
	return nil
}

// Dispatcher turns client frames into App calls and answers failures with
// an ERROR frame to the sender only.
type Dispatcher struct {
	sessions Sessions
}

func NewDispatcher(sessions Sessions) *Dispatcher {
	return &Dispatcher{sessions: sessions}
}

func (d *Dispatcher) Handle(ctx context.Context, c *Connection, raw []byte) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		c.sendError(ErrorData{Code: game.CodeInvalid, Message: "malformed frame"})
		return
	}
	h, ok := commands[cmd.Type]
	if !ok {
		c.sendError(ErrorData{Code: game.CodeInvalid, Message: fmt.Sprintf("unknown command %q", cmd.Type), RequestID: cmd.RequestID})
		return
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	if err := h(ctx, d.sessions, c, cmd.Payload); err != nil {
		data := errorData(err)
		data.RequestID = cmd.RequestID
		if data.Code == codeInternal {
			log.Error().
				Err(err).
				Str("session_id", c.SessionID).
				Str("participant_id", c.ParticipantID).
				Str("command", cmd.Type).
				Msg("command failed")
		}
		c.sendError(data)
	}
}

// Disconnected is the connection manager close hook.
func (d *Dispatcher) Disconnected(sessionID, participantID string) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := d.sessions.Disconnect(ctx, sessionID, participantID); err != nil && !errors.Is(err, session.ErrNotFound) {
		log.Error().
			Err(err).
			Str("session_id", sessionID).
			Str("participant_id", participantID).
			Msg("failed to record disconnect")
	}
}

const (
	codeNotFound = "NOT_FOUND"
	codeInternal = "INTERNAL"
)

func errorData(err error) ErrorData {
	if v, ok := game.IsValidation(err); ok {
		return ErrorData{Code: v.Code, Message: v.Message}
	}
	switch {
	case errors.Is(err, errBadPayload):
		return ErrorData{Code: game.CodeInvalid, Message: err.Error()}
	case errors.Is(err, session.ErrNotFound):
		return ErrorData{Code: codeNotFound, Message: "session not found"}
	default:
		return ErrorData{Code: codeInternal, Message: "internal error"}
	}
}

// sendDirect writes a frame to this connection only, bypassing fan-out.
func (c *Connection) sendDirect(kind events.Kind, payload any) error {
	w, err := newWireEvent(events.ToOne(c.SessionID, c.ParticipantID, kind, payload), time.Now())
	if err != nil {
		return err
	}
	frame, err := w.frame()
	if err != nil {
		return err
	}
	c.trySend(frame)
	return nil
}

func (c *Connection) sendError(data ErrorData) {
	if err := c.sendDirect(events.KindError, data); err != nil {
		log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to send error frame")
	}
}
