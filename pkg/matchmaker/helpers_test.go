package matchmaker

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"example.com/roulette/pkg/signaling"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeChannel records every message sent to a participant.
type fakeChannel struct {
	mu     sync.Mutex
	msgs   []*signaling.Message
	dead   bool
	closed bool
}

func (c *fakeChannel) Send(msg *signaling.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dead {
		return false
	}
	c.msgs = append(c.msgs, msg)
	return true
}

func (c *fakeChannel) Live() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.dead
}

func (c *fakeChannel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.dead = true
}

func (c *fakeChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeChannel) kill() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dead = true
}

func (c *fakeChannel) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.msgs))
	for i, m := range c.msgs {
		out[i] = m.Type
	}
	return out
}

func (c *fakeChannel) count(t string) int {
	n := 0
	for _, got := range c.types() {
		if got == t {
			n++
		}
	}
	return n
}

func (c *fakeChannel) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = nil
}

// last decodes the most recent message of type t into v.
func (c *fakeChannel) last(t *testing.T, msgType string, v any) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.msgs) - 1; i >= 0; i-- {
		if c.msgs[i].Type == msgType {
			if v == nil {
				return
			}
			if err := c.msgs[i].Decode(v); err != nil {
				t.Fatalf("decode %s: %v", msgType, err)
			}
			return
		}
	}
	t.Fatalf("no %s message received", msgType)
}

// fixture is a registry, store and matchmaker wired together the way the
// hub wires them.
type fixture struct {
	registry   *Registry
	store      *MemoryStore
	matchmaker *Matchmaker
	relay      *Relay
}

func newFixture() *fixture {
	logger := discardLogger()
	registry := NewRegistry(logger)
	store := NewMemoryStore()
	return &fixture{
		registry:   registry,
		store:      store,
		matchmaker: NewMatchmaker(registry, store, logger),
		relay:      NewRelay(registry, store, logger),
	}
}

// join registers a participant and names it.
func (f *fixture) join(t *testing.T, name string) (ParticipantID, *fakeChannel) {
	t.Helper()
	ch := &fakeChannel{}
	p := f.registry.Register(ch)
	if name != "" {
		if err := f.registry.SetName(p.ID, name); err != nil {
			t.Fatalf("SetName(%q): %v", name, err)
		}
	}
	return p.ID, ch
}

func (f *fixture) findPeer(t *testing.T, id ParticipantID) {
	t.Helper()
	if err := f.matchmaker.RequestPairing(id); err != nil {
		t.Fatalf("RequestPairing(%s): %v", id, err)
	}
}

// checkConsistency verifies pairing symmetry, single membership and pool
// consistency.
func (f *fixture) checkConsistency(t *testing.T) {
	t.Helper()

	seen := make(map[ParticipantID]bool)
	for _, pairing := range f.store.Pairings() {
		for _, id := range []ParticipantID{pairing.A, pairing.B} {
			if seen[id] {
				t.Fatalf("participant %s is in two pairings", id)
			}
			seen[id] = true

			partner, ok := f.matchmaker.PartnerOf(id)
			if !ok {
				t.Fatalf("participant %s has no partner entry", id)
			}
			back, ok := f.matchmaker.PartnerOf(partner)
			if !ok || back != id {
				t.Fatalf("pairing not symmetric: %s -> %s -> %s", id, partner, back)
			}
			if p := f.registry.Lookup(id); p == nil || p.Status != StatusPaired {
				t.Fatalf("paired participant %s has wrong registry state", id)
			}
		}
		if pairing.A == pairing.B {
			t.Fatalf("participant %s paired with itself", pairing.A)
		}
	}

	queued := make(map[ParticipantID]bool)
	for _, id := range f.store.Waiting() {
		if queued[id] {
			t.Fatalf("participant %s queued twice", id)
		}
		queued[id] = true
		if seen[id] {
			t.Fatalf("paired participant %s is in the waiting pool", id)
		}
	}
	if len(queued) != f.store.WaitingLen() {
		t.Fatalf("waiting len %d, distinct entries %d", f.store.WaitingLen(), len(queued))
	}
}
