package matchmaker

import (
	"log/slog"
	"time"

	"example.com/roulette/pkg/signaling"
)

// Reason explains why a pairing ended. It is forwarded to the partner in
// the peer-gone event.
type Reason string

const (
	ReasonHangUp       Reason = "hang-up"
	ReasonNext         Reason = "next"
	ReasonDisconnected Reason = "disconnected"
)

// Matchmaker pairs waiting participants and tears pairings down. Like the
// Registry it relies on the Hub for serialization.
type Matchmaker struct {
	registry *Registry
	store    Store
	logger   *slog.Logger
	now      func() time.Time
}

// NewMatchmaker wires a matchmaker to registry so that unregistering a
// participant always ends its pairing or queue entry first.
func NewMatchmaker(registry *Registry, store Store, logger *slog.Logger) *Matchmaker {
	m := &Matchmaker{
		registry: registry,
		store:    store,
		logger:   logger,
		now:      time.Now,
	}
	registry.OnGone(func(id ParticipantID) {
		m.EndPairing(id, ReasonDisconnected)
	})
	return m
}

// RequestPairing pairs id with the longest waiting live participant, or
// enqueues it when nobody is waiting. An existing pairing is torn down
// first, which is what makes "next" a single step.
func (m *Matchmaker) RequestPairing(id ParticipantID) error {
	p := m.registry.Lookup(id)
	if p == nil {
		return newError("request pairing", id, ErrUnknownParticipant)
	}
	if p.Name == "" {
		return newError("request pairing", id, ErrNotReady)
	}

	m.teardown(id, ReasonNext)
	m.store.RemoveWaiting(id)

	for attempts := m.store.WaitingLen(); attempts > 0; attempts-- {
		candidateID, ok := m.store.Dequeue()
		if !ok {
			break
		}
		if candidateID == id {
			continue
		}

		candidate := m.registry.Lookup(candidateID)
		if candidate == nil || candidate.Channel == nil || !candidate.Channel.Live() {
			m.logger.Info("discarding dead waiter", "participant", candidateID)
			if candidate != nil {
				candidate.Status = StatusReady
			}
			continue
		}

		m.pair(p, candidate)
		return nil
	}

	m.store.Enqueue(id)
	p.Status = StatusWaiting
	p.send(signaling.MustMessage(signaling.TypeWaiting, nil))
	m.logger.Info("participant waiting", "participant", id, "name", p.Name, "pool", m.store.WaitingLen())
	return nil
}

// pair matches initiator, who just asked, with responder, who was waiting.
func (m *Matchmaker) pair(initiator, responder *Participant) {
	pairing := Pairing{
		A:     initiator.ID,
		B:     responder.ID,
		Room:  string(initiator.ID) + "_" + string(responder.ID),
		Since: m.now(),
	}
	m.store.Pair(pairing)
	initiator.Status = StatusPaired
	responder.Status = StatusPaired

	initiator.send(signaling.MustMessage(signaling.TypeCallStarted, signaling.CallStartedPayload{
		PeerID:   string(responder.ID),
		PeerName: responder.Name,
		Role:     signaling.RoleInitiator,
		Room:     pairing.Room,
	}))
	responder.send(signaling.MustMessage(signaling.TypeCallStarted, signaling.CallStartedPayload{
		PeerID:   string(initiator.ID),
		PeerName: initiator.Name,
		Role:     signaling.RoleResponder,
		Room:     pairing.Room,
	}))

	m.logger.Info("call started",
		"room", pairing.Room,
		"initiator", initiator.ID, "initiator_name", initiator.Name,
		"responder", responder.ID, "responder_name", responder.Name)
}

// EndPairing ends id's pairing, notifying the partner, or takes id out of
// the waiting pool. It reports whether anything changed; being in neither
// state is not an error because hang-up and disconnect race with pairing.
func (m *Matchmaker) EndPairing(id ParticipantID, reason Reason) bool {
	if m.teardown(id, reason) {
		return true
	}
	if m.store.RemoveWaiting(id) {
		if p := m.registry.Lookup(id); p != nil {
			p.Status = StatusReady
		}
		m.logger.Info("participant left waiting pool", "participant", id, "reason", reason)
		return true
	}
	return false
}

// OnParticipantGone handles channel loss: the pairing or queue entry is
// ended and the participant is removed from the registry.
func (m *Matchmaker) OnParticipantGone(id ParticipantID) {
	if m.registry.Lookup(id) == nil {
		m.EndPairing(id, ReasonDisconnected)
		return
	}
	m.registry.Unregister(id)
}

// PartnerOf returns id's current partner.
func (m *Matchmaker) PartnerOf(id ParticipantID) (ParticipantID, bool) {
	pairing, ok := m.store.PairingOf(id)
	if !ok {
		return "", false
	}
	return pairing.Partner(id)
}

func (m *Matchmaker) teardown(id ParticipantID, reason Reason) bool {
	pairing, ok := m.store.Unpair(id)
	if !ok {
		return false
	}

	if p := m.registry.Lookup(id); p != nil {
		p.Status = StatusReady
	}

	partnerID, _ := pairing.Partner(id)
	if partner := m.registry.Lookup(partnerID); partner != nil {
		partner.Status = StatusReady
		partner.send(signaling.MustMessage(signaling.TypePeerGone, signaling.PeerGonePayload{
			Reason: string(reason),
		}))
	}

	m.logger.Info("call ended", "room", pairing.Room, "participant", id, "partner", partnerID, "reason", reason)
	return true
}
