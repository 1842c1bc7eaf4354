package matchmaker

import (
	"context"
	"errors"
	"log/slog"

	"example.com/roulette/pkg/signaling"
)

// Stats is a snapshot of matchmaking state.
type Stats struct {
	Participants int `json:"participants"`
	Waiting      int `json:"waiting"`
	Pairings     int `json:"pairings"`
}

type registration struct {
	channel Channel
	reply   chan ParticipantID
}

type inbound struct {
	from ParticipantID
	msg  *signaling.Message
}

// Hub is the single goroutine that owns all matchmaking state. Transports
// talk to it through Register, Dispatch and Unregister; every participant
// event is applied as one atomic step.
type Hub struct {
	registry   *Registry
	store      Store
	matchmaker *Matchmaker
	relay      *Relay
	logger     *slog.Logger

	register   chan registration
	unregister chan ParticipantID
	inbound    chan inbound
	stats      chan chan Stats

	// done is closed when Run returns.
	done chan struct{}
}

// NewHub builds a hub over store. Run must be started before any other
// method is used.
func NewHub(store Store, logger *slog.Logger) *Hub {
	registry := NewRegistry(logger)
	return &Hub{
		registry:   registry,
		store:      store,
		matchmaker: NewMatchmaker(registry, store, logger),
		relay:      NewRelay(registry, store, logger),
		logger:     logger,
		register:   make(chan registration),
		unregister: make(chan ParticipantID, 64),
		inbound:    make(chan inbound, 256),
		stats:      make(chan chan Stats),
		done:       make(chan struct{}),
	}
}

// Run processes events until ctx is cancelled. Remaining connections are
// closed on the way out.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for _, p := range h.registry.Participants() {
				if p.Channel != nil {
					p.Channel.Close()
				}
			}
			h.logger.Info("hub stopped", "participants", h.registry.Len())
			return

		case reg := <-h.register:
			p := h.registry.Register(reg.channel)
			reg.reply <- p.ID
			p.send(signaling.MustMessage(signaling.TypeWelcome, signaling.WelcomePayload{ID: string(p.ID)}))

		case id := <-h.unregister:
			h.matchmaker.OnParticipantGone(id)

		case in := <-h.inbound:
			h.handle(in.from, in.msg)

		case reply := <-h.stats:
			h.drain()
			reply <- Stats{
				Participants: h.registry.Len(),
				Waiting:      h.store.WaitingLen(),
				Pairings:     len(h.store.Pairings()),
			}
		}
	}
}

// drain applies every event already buffered.
func (h *Hub) drain() {
	for {
		select {
		case id := <-h.unregister:
			h.matchmaker.OnParticipantGone(id)
		case in := <-h.inbound:
			h.handle(in.from, in.msg)
		default:
			return
		}
	}
}

// Register adds ch as a new participant and returns its identifier. The
// participant is sent a welcome event carrying that identifier.
func (h *Hub) Register(ctx context.Context, ch Channel) (ParticipantID, error) {
	reply := make(chan ParticipantID, 1)
	select {
	case h.register <- registration{channel: ch, reply: reply}:
	case <-ctx.Done():
		return "", ctx.Err()
	case <-h.done:
		return "", ErrHubClosed
	}
	return <-reply, nil
}

// Dispatch queues an inbound frame from id.
func (h *Hub) Dispatch(id ParticipantID, msg *signaling.Message) {
	select {
	case h.inbound <- inbound{from: id, msg: msg}:
	case <-h.done:
	}
}

// Unregister queues channel loss for id.
func (h *Hub) Unregister(id ParticipantID) {
	select {
	case h.unregister <- id:
	case <-h.done:
	}
}

// Stats returns a snapshot taken after every event queued before the call
// has been processed.
func (h *Hub) Stats(ctx context.Context) (Stats, error) {
	reply := make(chan Stats, 1)
	select {
	case h.stats <- reply:
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	case <-h.done:
		return Stats{}, ErrHubClosed
	}
	return <-reply, nil
}

func (h *Hub) handle(id ParticipantID, msg *signaling.Message) {
	p := h.registry.Lookup(id)
	if p == nil {
		h.logger.Debug("event from departed participant dropped", "participant", id, "type", msg.Type)
		return
	}

	switch msg.Type {
	case signaling.TypeSetIdentity:
		var payload signaling.SetIdentityPayload
		if err := msg.Decode(&payload); err != nil {
			h.reject(p, wrapError("set identity", id, ErrMalformed, err.Error()))
			return
		}
		if err := h.registry.SetName(id, payload.Name); err != nil {
			h.reject(p, err)
			return
		}
		p.send(signaling.MustMessage(signaling.TypeIdentitySet, signaling.IdentitySetPayload{Name: p.Name}))

	case signaling.TypeFindPeer:
		if err := h.matchmaker.RequestPairing(id); err != nil {
			h.reject(p, err)
		}

	case signaling.TypeSignal:
		var req signaling.SignalRequest
		if err := msg.Decode(&req); err != nil {
			h.reject(p, wrapError("signal", id, ErrMalformed, err.Error()))
			return
		}
		if err := h.relay.Relay(id, ParticipantID(req.To), req.Type, req.Payload); err != nil {
			if errors.Is(err, ErrStaleTarget) {
				return
			}
			h.reject(p, err)
		}

	case signaling.TypeChatMessage:
		var req signaling.ChatRequest
		if err := msg.Decode(&req); err != nil {
			h.reject(p, wrapError("chat", id, ErrMalformed, err.Error()))
			return
		}
		if err := h.relay.RelayChat(id, req.Text); err != nil {
			h.reject(p, err)
		}

	case signaling.TypeHangUp:
		h.matchmaker.EndPairing(id, ReasonHangUp)

	default:
		h.reject(p, wrapError("dispatch", id, ErrMalformed, "unknown event "+msg.Type))
	}
}

func (h *Hub) reject(p *Participant, err error) {
	h.logger.Info("request rejected", "participant", p.ID, "error", err)
	p.send(signaling.MustMessage(signaling.TypeError, signaling.ErrorPayload{Message: userMessage(err)}))
}
