package signaling

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Message is the envelope for every WebSocket frame exchanged between a
// participant and the server, in both directions.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Participant to server events.
const (
	TypeSetIdentity = "set-identity"
	TypeFindPeer    = "find-peer"
	TypeHangUp      = "hang-up"
)

// Server to participant events.
const (
	TypeWelcome     = "welcome"
	TypeIdentitySet = "identity-set"
	TypeWaiting     = "waiting"
	TypeCallStarted = "call-started"
	TypePeerGone    = "peer-gone"
	TypeError       = "error"
)

// Events used in both directions.
const (
	TypeSignal      = "signal"
	TypeChatMessage = "chat-message"
)

// Role decides which side of a pairing creates the first offer.
type Role string

const (
	RoleInitiator Role = "initiator"
	RoleResponder Role = "responder"
)

// SetIdentityPayload carries the one-time display name.
type SetIdentityPayload struct {
	Name string `json:"name"`
}

// SignalRequest is a handshake message a participant asks the server to
// forward to its partner.
type SignalRequest struct {
	To      string          `json:"to"`
	Type    SignalKind      `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ChatRequest is a chat line sent to the server for the current partner.
type ChatRequest struct {
	Text string `json:"text"`
}

// WelcomePayload tells a freshly connected participant its own identifier.
type WelcomePayload struct {
	ID string `json:"id"`
}

// IdentitySetPayload acknowledges set-identity.
type IdentitySetPayload struct {
	Name string `json:"name"`
}

// CallStartedPayload announces a new pairing.
type CallStartedPayload struct {
	PeerID   string `json:"peerId"`
	PeerName string `json:"peerName"`
	Role     Role   `json:"role"`
	Room     string `json:"room"`
}

// SignalRelay is a handshake message forwarded by the server.
type SignalRelay struct {
	From       string          `json:"from"`
	SenderName string          `json:"senderName"`
	Type       SignalKind      `json:"type"`
	Payload    json.RawMessage `json:"payload"`
}

// ChatRelay is a chat line fanned out to both members of a pairing.
type ChatRelay struct {
	Sender   string `json:"sender"`
	SenderID string `json:"senderId"`
	Text     string `json:"text"`
}

// PeerGonePayload tells a participant its partner left.
type PeerGonePayload struct {
	Reason string `json:"reason,omitempty"`
}

// ErrorPayload reports a rejected request.
type ErrorPayload struct {
	Message string `json:"message"`
}

// NewMessage builds a Message with payload marshalled as JSON. A nil
// payload produces a frame with no payload field.
func NewMessage(t string, payload any) (*Message, error) {
	msg := &Message{Type: t}
	if payload == nil {
		return msg, nil
	}
	b, err := marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	msg.Payload = b
	return msg, nil
}

// Encode renders m as a single text frame. Unlike json.Marshal it leaves
// <, > and & unescaped, so relayed session descriptions keep their text.
func Encode(m *Message) ([]byte, error) {
	return marshal(m)
}

func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// MustMessage is NewMessage for payload types that always marshal.
func MustMessage(t string, payload any) *Message {
	msg, err := NewMessage(t, payload)
	if err != nil {
		panic(err)
	}
	return msg
}

// Decode unmarshals the payload into v. A missing payload is an error.
func (m *Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s: missing payload", m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("%s: decode payload: %w", m.Type, err)
	}
	return nil
}
