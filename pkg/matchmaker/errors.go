package matchmaker

import (
	"errors"
	"fmt"
)

var (
	ErrNotReady           = errors.New("participant not ready")
	ErrInvalidState       = errors.New("invalid state")
	ErrStaleTarget        = errors.New("signal target is not the current partner")
	ErrUnknownParticipant = errors.New("unknown participant")
	ErrMalformed          = errors.New("malformed event")
	ErrHubClosed          = errors.New("hub closed")
)

// Error ties a matchmaking failure to the operation and participant that
// caused it.
type Error struct {
	Op          string
	Participant ParticipantID
	Err         error
	Details     string
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s %s: %v (%s)", e.Op, e.Participant, e.Err, e.Details)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Participant, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op string, id ParticipantID, err error) *Error {
	return &Error{Op: op, Participant: id, Err: err}
}

func wrapError(op string, id ParticipantID, err error, details string) *Error {
	return &Error{Op: op, Participant: id, Err: err, Details: details}
}

// userMessage is the text reported back to a participant in an error event.
func userMessage(err error) string {
	switch {
	case errors.Is(err, ErrNotReady):
		return "set a display name before looking for a peer"
	case errors.Is(err, ErrInvalidState):
		var e *Error
		if errors.As(err, &e) && e.Details != "" {
			return e.Details
		}
		return "request not allowed in the current state"
	case errors.Is(err, ErrMalformed):
		var e *Error
		if errors.As(err, &e) && e.Details != "" {
			return "malformed event: " + e.Details
		}
		return "malformed event"
	default:
		return "request failed"
	}
}
