package events

import (
	"time"

	"github.com/mcdev12/quizhall/go/internal/models"
)

// Event payload types shared between the game engine, gateway and match log

// PhaseChangedPayload is sent after every successful phase transition
type PhaseChangedPayload struct {
	From       models.Phase        `json:"from"`
	To         models.Phase        `json:"to"`
	Round      int                 `json:"round"`
	TurnPlayer string              `json:"turn_player,omitempty"`
	Answering  string              `json:"answering,omitempty"`
	Question   *models.QuestionRef `json:"question,omitempty"`
	Timer      *models.Timer       `json:"timer,omitempty"`
}

// RoundStartedPayload announces a new round
type RoundStartedPayload struct {
	Round      int              `json:"round"`
	Name       string           `json:"name"`
	Kind       models.RoundKind `json:"kind"`
	TurnPlayer string           `json:"turn_player,omitempty"`
}

// QuestionPickedPayload is sent when a question leaves the board
type QuestionPickedPayload struct {
	PickedBy string             `json:"picked_by"`
	Question models.QuestionRef `json:"question"`
	Eligible []string           `json:"eligible"`
}

// ParticipantPayload describes a roster change
type ParticipantPayload struct {
	Participant models.Participant `json:"participant"`
	Reason      string             `json:"reason,omitempty"`
}

// ParticipantLeftPayload is sent when someone leaves the roster
type ParticipantLeftPayload struct {
	ParticipantID string `json:"participant_id"`
	Reason        string `json:"reason"`
}

// BuzzedPayload is sent when a player takes the answering slot
type BuzzedPayload struct {
	ParticipantID string `json:"participant_id"`
}

// SkippedPayload is sent when a player declines to answer
type SkippedPayload struct {
	ParticipantID string `json:"participant_id"`
}

// MediaReadyPayload is sent when a participant finished downloading media
type MediaReadyPayload struct {
	ParticipantID string `json:"participant_id"`
	Ready         int    `json:"ready"`
	Total         int    `json:"total"`
}

// ScoreChangedPayload is sent whenever a score moves
type ScoreChangedPayload struct {
	ParticipantID string `json:"participant_id"`
	Delta         int    `json:"delta"`
	Score         int    `json:"score"`
	Reason        string `json:"reason"`
}

// AnswerResultPayload is the verdict on an answer
type AnswerResultPayload struct {
	ParticipantID string `json:"participant_id"`
	Correct       bool   `json:"correct"`
	TimedOut      bool   `json:"timed_out,omitempty"`
	Delta         int    `json:"delta"`
}

// AnswerRevealedPayload shows the correct answer
type AnswerRevealedPayload struct {
	QuestionID string `json:"question_id"`
	Answer     string `json:"answer"`
}

// StakeBidPayload reports an auction move
type StakeBidPayload struct {
	ParticipantID string `json:"participant_id"`
	Action        string `json:"action"`
	Amount        int    `json:"amount,omitempty"`
	Next          string `json:"next,omitempty"`
	Auto          bool   `json:"auto,omitempty"`
}

// SecretTransferredPayload reports who received a secret question
type SecretTransferredPayload struct {
	From   string `json:"from,omitempty"`
	To     string `json:"to"`
	Random bool   `json:"random,omitempty"`
}

// ThemeEliminatedPayload reports a removed final theme
type ThemeEliminatedPayload struct {
	ParticipantID string `json:"participant_id,omitempty"`
	Theme         int    `json:"theme"`
	Remaining     []int  `json:"remaining"`
	Auto          bool   `json:"auto,omitempty"`
}

// FinalSubmittedPayload reports a final bid or answer without its content
type FinalSubmittedPayload struct {
	ParticipantID string `json:"participant_id"`
	Auto          bool   `json:"auto,omitempty"`
}

// FinalAnswersPayload reveals final answers to the host
type FinalAnswersPayload struct {
	Answers map[string]string `json:"answers"`
	Bids    map[string]int    `json:"bids"`
}

// TurnChangedPayload reports the current turn-holder
type TurnChangedPayload struct {
	ParticipantID string `json:"participant_id,omitempty"`
}

// PausedPayload is sent when a session is paused or resumed
type PausedPayload struct {
	Paused bool          `json:"paused"`
	Reason string        `json:"reason,omitempty"`
	Timer  *models.Timer `json:"timer,omitempty"`
}

// ReadyPayload reports lobby readiness
type ReadyPayload struct {
	ParticipantID string `json:"participant_id"`
	Ready         bool   `json:"ready"`
}

// ErrorPayload is sent only to the participant whose action was rejected
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// FinalScore is one line of a finished match
type FinalScore struct {
	ParticipantID string `json:"participant_id"`
	Name          string `json:"name"`
	Score         int    `json:"score"`
}

// GameFinishedPayload is sent to subscribers when the match ends
type GameFinishedPayload struct {
	Scores []FinalScore `json:"scores"`
}

// MatchCompletedPayload is the completion signal for statistics collaborators
type MatchCompletedPayload struct {
	SessionID  string       `json:"session_id"`
	Title      string       `json:"title"`
	PackageID  string       `json:"package_id"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Scores     []FinalScore `json:"scores"`
}

// Scores returns the roster's players ordered as they appear.
func Scores(s *models.GameSession) []FinalScore {
	var out []FinalScore
	for _, p := range s.Participants {
		if p.Role != models.RolePlayer {
			continue
		}
		out = append(out, FinalScore{ParticipantID: p.ID, Name: p.Name, Score: p.Score})
	}
	return out
}
