package matchmaker

import (
	"time"

	"example.com/roulette/pkg/signaling"
)

// ParticipantID identifies one connected participant for the lifetime of
// its channel.
type ParticipantID string

// Status is where a participant sits in the matchmaking lifecycle.
type Status int

const (
	StatusUnset Status = iota
	StatusReady
	StatusWaiting
	StatusPaired
	StatusDisconnected
)

func (s Status) String() string {
	switch s {
	case StatusUnset:
		return "unset"
	case StatusReady:
		return "ready"
	case StatusWaiting:
		return "waiting"
	case StatusPaired:
		return "paired"
	case StatusDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Channel is the outbound half of a participant's message channel.
// Implementations must not block in Send.
type Channel interface {
	// Send queues msg for delivery and reports whether it was accepted.
	Send(msg *signaling.Message) bool

	// Live reports whether the underlying connection is still usable.
	Live() bool

	// Close tears the connection down. Safe to call more than once.
	Close()
}

// Participant is one connected end-user session.
type Participant struct {
	ID       ParticipantID
	Name     string
	Status   Status
	Channel  Channel
	JoinedAt time.Time
}

func (p *Participant) send(msg *signaling.Message) bool {
	if p.Channel == nil {
		return false
	}
	return p.Channel.Send(msg)
}
