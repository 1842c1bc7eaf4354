package client

import (
	"encoding/json"

	"example.com/roulette/pkg/signaling"
)

// State is a negotiation phase.
type State string

const (
	StateIdle           State = "idle"
	StateCreatingOffer  State = "creating-offer"
	StateOfferSent      State = "offer-sent"
	StateAwaitingAnswer State = "awaiting-answer"
	StateAnswerReceived State = "answer-received"
	StateConnected      State = "connected"
	StateClosed         State = "closed"
)

// TransportStatus mirrors the peer connection state.
type TransportStatus string

const (
	TransportNew          TransportStatus = "new"
	TransportConnecting   TransportStatus = "connecting"
	TransportConnected    TransportStatus = "connected"
	TransportDisconnected TransportStatus = "disconnected"
	TransportFailed       TransportStatus = "failed"
	TransportClosed       TransportStatus = "closed"
)

// Event is an input to Negotiation.Step.
type Event interface{ isEvent() }

type (
	// Start begins negotiation. Only the initiator acts on it.
	Start struct{}

	OfferCreated  struct{ SDP string }
	AnswerCreated struct{ SDP string }

	RemoteOffer  struct{ SDP string }
	RemoteAnswer struct{ SDP string }

	// RemoteCandidate carries an ICE candidate exactly as the peer sent it.
	RemoteCandidate struct{ Candidate json.RawMessage }

	TransportChanged struct{ Status TransportStatus }

	Close struct{}
)

func (Start) isEvent()            {}
func (OfferCreated) isEvent()     {}
func (AnswerCreated) isEvent()    {}
func (RemoteOffer) isEvent()      {}
func (RemoteAnswer) isEvent()     {}
func (RemoteCandidate) isEvent()  {}
func (TransportChanged) isEvent() {}
func (Close) isEvent()            {}

// Effect is an action the owner of a Negotiation must perform, in order.
type Effect interface{ isEffect() }

type (
	CreateOffer  struct{}
	CreateAnswer struct{}

	SetLocalDescription struct {
		Kind signaling.SignalKind
		SDP  string
	}
	SetRemoteDescription struct {
		Kind signaling.SignalKind
		SDP  string
	}

	// SendSignal sends a session description to the peer.
	SendSignal struct {
		Kind signaling.SignalKind
		SDP  string
	}

	// AddCandidates applies candidates in the given order.
	AddCandidates struct{ Candidates []json.RawMessage }

	ReportStatus struct{ Status TransportStatus }
	Warn         struct{ Err error }

	CloseTransport struct{}
)

func (CreateOffer) isEffect()          {}
func (CreateAnswer) isEffect()         {}
func (SetLocalDescription) isEffect()  {}
func (SetRemoteDescription) isEffect() {}
func (SendSignal) isEffect()           {}
func (AddCandidates) isEffect()        {}
func (ReportStatus) isEffect()         {}
func (Warn) isEffect()                 {}
func (CloseTransport) isEffect()       {}

// Negotiation is the offer/answer state of one call. It performs no I/O:
// Step returns the next state and the effects to carry out.
type Negotiation struct {
	State State
	Role  signaling.Role

	localOffer bool
	remoteSet  bool

	// Candidates received before the remote description, oldest first.
	pending []json.RawMessage
}

func NewNegotiation(role signaling.Role) Negotiation {
	return Negotiation{State: StateIdle, Role: role}
}

// Step applies ev. A closed negotiation ignores everything.
func (n Negotiation) Step(ev Event) (Negotiation, []Effect) {
	if n.State == StateClosed {
		return n, nil
	}

	switch ev := ev.(type) {
	case Start:
		if n.Role != signaling.RoleInitiator || n.State != StateIdle {
			return n, nil
		}
		n.State = StateCreatingOffer
		return n, []Effect{CreateOffer{}}

	case OfferCreated:
		if n.State != StateCreatingOffer {
			return n, outOfSequence("offer created")
		}
		n.localOffer = true
		n.State = StateOfferSent
		return n, []Effect{
			SetLocalDescription{Kind: signaling.SignalOffer, SDP: ev.SDP},
			SendSignal{Kind: signaling.SignalOffer, SDP: ev.SDP},
		}

	case RemoteOffer:
		if n.Role != signaling.RoleResponder || n.remoteSet {
			return n, outOfSequence("remote offer")
		}
		n.remoteSet = true
		n.State = StateAwaitingAnswer
		effects := []Effect{SetRemoteDescription{Kind: signaling.SignalOffer, SDP: ev.SDP}}
		n, effects = n.flush(effects)
		return n, append(effects, CreateAnswer{})

	case AnswerCreated:
		if n.State != StateAwaitingAnswer {
			return n, outOfSequence("answer created")
		}
		n.State = StateAnswerReceived
		return n, []Effect{
			SetLocalDescription{Kind: signaling.SignalAnswer, SDP: ev.SDP},
			SendSignal{Kind: signaling.SignalAnswer, SDP: ev.SDP},
		}

	case RemoteAnswer:
		if !n.localOffer || n.remoteSet {
			return n, outOfSequence("remote answer")
		}
		n.remoteSet = true
		if n.State != StateConnected {
			n.State = StateAnswerReceived
		}
		effects := []Effect{SetRemoteDescription{Kind: signaling.SignalAnswer, SDP: ev.SDP}}
		return n.flush(effects)

	case RemoteCandidate:
		if !n.remoteSet {
			pending := make([]json.RawMessage, len(n.pending), len(n.pending)+1)
			copy(pending, n.pending)
			n.pending = append(pending, ev.Candidate)
			return n, nil
		}
		return n, []Effect{AddCandidates{Candidates: []json.RawMessage{ev.Candidate}}}

	case TransportChanged:
		effects := []Effect{ReportStatus{Status: ev.Status}}
		switch ev.Status {
		case TransportConnected:
			n.State = StateConnected
		case TransportDisconnected, TransportFailed:
			effects = append(effects, Warn{Err: opError("transport "+string(ev.Status), ErrTransportFailure)})
		}
		return n, effects

	case Close:
		n.State = StateClosed
		n.pending = nil
		return n, []Effect{CloseTransport{}}
	}

	return n, nil
}

// Pending returns how many candidates are waiting for the remote
// description.
func (n Negotiation) Pending() int {
	return len(n.pending)
}

func (n Negotiation) flush(effects []Effect) (Negotiation, []Effect) {
	if len(n.pending) == 0 {
		return n, effects
	}
	effects = append(effects, AddCandidates{Candidates: n.pending})
	n.pending = nil
	return n, effects
}

func outOfSequence(op string) []Effect {
	return []Effect{Warn{Err: opError(op, ErrOutOfSequence)}}
}
