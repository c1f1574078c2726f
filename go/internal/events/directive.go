package events

// Kind identifies an event delivered over the push channel.
type Kind string

const (
	KindStateSync          Kind = "STATE_SYNC"
	KindParticipantJoined  Kind = "PARTICIPANT_JOINED"
	KindParticipantUpdated Kind = "PARTICIPANT_UPDATED"
	KindParticipantLeft    Kind = "PARTICIPANT_LEFT"
	KindReadyChanged       Kind = "READY_CHANGED"
	KindGameStarted        Kind = "GAME_STARTED"
	KindRoundStarted       Kind = "ROUND_STARTED"
	KindPhaseChanged       Kind = "PHASE_CHANGED"
	KindQuestionPicked     Kind = "QUESTION_PICKED"
	KindMediaReady         Kind = "MEDIA_READY"
	KindPlayerBuzzed       Kind = "PLAYER_BUZZED"
	KindPlayerSkipped      Kind = "PLAYER_SKIPPED"
	KindAnswerResult       Kind = "ANSWER_RESULT"
	KindAnswerRevealed     Kind = "ANSWER_REVEALED"
	KindScoreChanged       Kind = "SCORE_CHANGED"
	KindStakeBid           Kind = "STAKE_BID"
	KindSecretTransferred  Kind = "SECRET_TRANSFERRED"
	KindThemeEliminated    Kind = "THEME_ELIMINATED"
	KindFinalBidSubmitted  Kind = "FINAL_BID_SUBMITTED"
	KindFinalAnswerSubmit  Kind = "FINAL_ANSWER_SUBMITTED"
	KindFinalAnswers       Kind = "FINAL_ANSWERS"
	KindTurnChanged        Kind = "TURN_CHANGED"
	KindGamePaused         Kind = "GAME_PAUSED"
	KindGameResumed        Kind = "GAME_RESUMED"
	KindGameFinished       Kind = "GAME_FINISHED"
	KindSessionDeleted     Kind = "SESSION_DELETED"
	KindError              Kind = "ERROR"
)

// Target selects the audience of a directive.
type Target string

const (
	TargetAll Target = "ALL"
	TargetOne Target = "ONE"
)

// Directive asks the transport layer to deliver one event.
type Directive struct {
	Kind        Kind   `json:"kind"`
	Payload     any    `json:"payload"`
	Target      Target `json:"target"`
	SessionID   string `json:"session_id"`
	RecipientID string `json:"recipient_id,omitempty"`
}

// ToAll addresses every subscriber of a session.
func ToAll(sessionID string, kind Kind, payload any) Directive {
	return Directive{Kind: kind, Payload: payload, Target: TargetAll, SessionID: sessionID}
}

// ToOne addresses a single participant.
func ToOne(sessionID, recipientID string, kind Kind, payload any) Directive {
	return Directive{Kind: kind, Payload: payload, Target: TargetOne, SessionID: sessionID, RecipientID: recipientID}
}
