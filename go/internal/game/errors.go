package game

import (
	"errors"
	"fmt"
)

// Rejection codes returned to the participant who sent an action.
const (
	CodeNotParticipant = "NOT_PARTICIPANT"
	CodeForbidden      = "FORBIDDEN"
	CodeWrongPhase     = "WRONG_PHASE"
	CodePaused         = "PAUSED"
	CodeNotEligible    = "NOT_ELIGIBLE"
	CodeNotYourTurn    = "NOT_YOUR_TURN"
	CodeInvalid        = "INVALID_ARGUMENT"
	CodeSessionFull    = "SESSION_FULL"
	CodeBanned         = "BANNED"
	CodeNotApplicable  = "NOT_APPLICABLE"
)

// ValidationError rejects an action before it changes anything. It goes back
// to the sender only.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func reject(code, format string, args ...any) error {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a rejection and returns it.
func IsValidation(err error) (*ValidationError, bool) {
	var v *ValidationError
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}

// errUnchanged aborts a mutation without saving.
var errUnchanged = errors.New("session unchanged")
