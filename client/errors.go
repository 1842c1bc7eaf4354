package client

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfSequence reports a negotiation message that does not fit the
	// current state, such as an answer with no local offer.
	ErrOutOfSequence = errors.New("negotiation message out of sequence")

	// ErrTransportFailure reports that the peer transport disconnected or
	// failed. No reconnection is attempted.
	ErrTransportFailure = errors.New("peer transport failed")

	ErrNotConnected    = errors.New("not connected to the signaling server")
	ErrNoSession       = errors.New("no call in progress")
	ErrChatUnavailable = errors.New("chat channel not open")
)

// Error wraps a client failure with the operation that produced it.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func opError(op string, err error) error {
	return &Error{Op: op, Err: err}
}
