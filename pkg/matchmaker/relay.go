package matchmaker

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"example.com/roulette/pkg/signaling"
)

// MaxChatLength is the longest chat line relayed, in runes.
const MaxChatLength = 2000

// Relay forwards handshake and chat messages between the two members of a
// pairing and nobody else.
type Relay struct {
	registry *Registry
	store    Store
	logger   *slog.Logger
}

func NewRelay(registry *Registry, store Store, logger *slog.Logger) *Relay {
	return &Relay{registry: registry, store: store, logger: logger}
}

// Relay forwards payload from sender to target when target is the
// sender's current partner. The payload is never interpreted; it arrives
// with the same JSON value, with insignificant whitespace dropped.
func (r *Relay) Relay(sender, target ParticipantID, kind signaling.SignalKind, payload json.RawMessage) error {
	from := r.registry.Lookup(sender)
	if from == nil {
		return newError("relay", sender, ErrUnknownParticipant)
	}
	if !kind.Valid() {
		return wrapError("relay", sender, ErrMalformed, fmt.Sprintf("signal type %q is not offer, answer or candidate", kind))
	}

	pairing, paired := r.store.PairingOf(sender)
	partner, _ := pairing.Partner(sender)
	if !paired || partner != target {
		r.logger.Warn("dropping signal for non-partner",
			"from", sender, "to", target, "type", kind, "partner", partner)
		return wrapError("relay", sender, ErrStaleTarget, "to "+string(target))
	}

	to := r.registry.Lookup(target)
	if to == nil {
		r.logger.Warn("dropping signal for departed partner", "from", sender, "to", target, "type", kind)
		return wrapError("relay", sender, ErrStaleTarget, "to "+string(target))
	}

	msg, err := signaling.NewMessage(signaling.TypeSignal, signaling.SignalRelay{
		From:       string(sender),
		SenderName: from.Name,
		Type:       kind,
		Payload:    payload,
	})
	if err != nil {
		return wrapError("relay", sender, ErrMalformed, err.Error())
	}

	if !to.send(msg) {
		r.logger.Warn("signal not delivered", "from", sender, "to", target, "type", kind)
	}
	r.logger.Debug("signal relayed", "from", sender, "to", target, "type", kind, "room", pairing.Room)
	return nil
}

// RelayChat sends text to both members of the sender's pairing, the sender
// included so every client renders the same transcript.
func (r *Relay) RelayChat(sender ParticipantID, text string) error {
	from := r.registry.Lookup(sender)
	if from == nil {
		return newError("relay chat", sender, ErrUnknownParticipant)
	}

	pairing, ok := r.store.PairingOf(sender)
	if !ok {
		r.logger.Debug("chat without pairing ignored", "participant", sender)
		return nil
	}

	if strings.TrimSpace(text) == "" {
		return nil
	}
	if utf8.RuneCountInString(text) > MaxChatLength {
		return wrapError("relay chat", sender, ErrInvalidState, "chat message is too long")
	}

	msg := signaling.MustMessage(signaling.TypeChatMessage, signaling.ChatRelay{
		Sender:   from.Name,
		SenderID: string(sender),
		Text:     text,
	})
	for _, id := range []ParticipantID{pairing.A, pairing.B} {
		if p := r.registry.Lookup(id); p != nil {
			p.send(msg)
		}
	}
	r.logger.Debug("chat relayed", "room", pairing.Room, "sender", sender)
	return nil
}
