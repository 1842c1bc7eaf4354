package matchmaker

import (
	"errors"
	"math/rand"
	"testing"

	"example.com/roulette/pkg/signaling"
)

func TestRequestPairing_RequiresName(t *testing.T) {
	f := newFixture()
	id, ch := f.join(t, "")

	err := f.matchmaker.RequestPairing(id)
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("RequestPairing error = %v, want ErrNotReady", err)
	}
	if f.store.IsWaiting(id) {
		t.Fatal("unnamed participant entered the pool")
	}
	if len(ch.types()) != 0 {
		t.Fatalf("unexpected messages %v", ch.types())
	}
}

func TestRequestPairing_UnknownParticipant(t *testing.T) {
	f := newFixture()
	if err := f.matchmaker.RequestPairing("ghost"); !errors.Is(err, ErrUnknownParticipant) {
		t.Fatalf("RequestPairing error = %v, want ErrUnknownParticipant", err)
	}
}

func TestRequestPairing_NewestArrivalIsInitiator(t *testing.T) {
	f := newFixture()
	x, xch := f.join(t, "Alice")
	y, ych := f.join(t, "Bob")

	f.findPeer(t, x)
	if got := xch.types(); len(got) != 1 || got[0] != signaling.TypeWaiting {
		t.Fatalf("Alice got %v, want [waiting]", got)
	}
	if f.registry.Lookup(x).Status != StatusWaiting {
		t.Fatalf("Alice status = %v, want waiting", f.registry.Lookup(x).Status)
	}

	f.findPeer(t, y)

	var toX, toY signaling.CallStartedPayload
	xch.last(t, signaling.TypeCallStarted, &toX)
	ych.last(t, signaling.TypeCallStarted, &toY)

	if toX.PeerID != string(y) || toX.PeerName != "Bob" || toX.Role != signaling.RoleResponder {
		t.Errorf("Alice call-started = %+v, want peer Bob as responder", toX)
	}
	if toY.PeerID != string(x) || toY.PeerName != "Alice" || toY.Role != signaling.RoleInitiator {
		t.Errorf("Bob call-started = %+v, want peer Alice as initiator", toY)
	}
	if toX.Room != toY.Room || toX.Room != string(y)+"_"+string(x) {
		t.Errorf("rooms = %q / %q", toX.Room, toY.Room)
	}
	if ych.count(signaling.TypeWaiting) != 0 {
		t.Error("Bob was told to wait")
	}
	f.checkConsistency(t)
}

func TestRequestPairing_FIFO(t *testing.T) {
	f := newFixture()
	a, _ := f.join(t, "A")
	b, _ := f.join(t, "B")
	c, cch := f.join(t, "C")

	// Two unmatched waiters can only exist side by side when queued
	// directly, so seed the pool in arrival order.
	f.store.Enqueue(a)
	f.registry.Lookup(a).Status = StatusWaiting
	f.store.Enqueue(b)
	f.registry.Lookup(b).Status = StatusWaiting

	f.findPeer(t, c)

	var started signaling.CallStartedPayload
	cch.last(t, signaling.TypeCallStarted, &started)
	if started.PeerID != string(a) {
		t.Fatalf("C paired with %s, want A (%s)", started.PeerID, a)
	}
	if !f.store.IsWaiting(b) {
		t.Fatal("B left the pool")
	}
	f.checkConsistency(t)
}

func TestRequestPairing_SkipsDeadWaiters(t *testing.T) {
	f := newFixture()
	dead, deadCh := f.join(t, "Dead")
	alive, _ := f.join(t, "Alive")
	caller, callerCh := f.join(t, "Caller")

	f.store.Enqueue(dead)
	f.store.Enqueue(alive)
	deadCh.kill()

	f.findPeer(t, caller)

	var started signaling.CallStartedPayload
	callerCh.last(t, signaling.TypeCallStarted, &started)
	if started.PeerID != string(alive) {
		t.Fatalf("paired with %s, want the live waiter", started.PeerID)
	}
	if f.store.IsWaiting(dead) {
		t.Fatal("dead waiter left in pool")
	}
	f.checkConsistency(t)
}

func TestRequestPairing_OnlyDeadWaitersEnqueuesCaller(t *testing.T) {
	f := newFixture()
	dead, deadCh := f.join(t, "Dead")
	caller, callerCh := f.join(t, "Caller")

	f.findPeer(t, dead)
	deadCh.kill()
	f.findPeer(t, caller)

	if got := callerCh.types(); len(got) != 1 || got[0] != signaling.TypeWaiting {
		t.Fatalf("caller got %v, want [waiting]", got)
	}
	if w := f.store.Waiting(); len(w) != 1 || w[0] != caller {
		t.Fatalf("pool = %v, want [caller]", w)
	}
	f.checkConsistency(t)
}

func TestRequestPairing_RepeatWhileWaitingIsIdempotent(t *testing.T) {
	f := newFixture()
	a, ach := f.join(t, "A")

	f.findPeer(t, a)
	f.findPeer(t, a)

	if f.store.WaitingLen() != 1 {
		t.Fatalf("WaitingLen = %d, want 1", f.store.WaitingLen())
	}
	if n := ach.count(signaling.TypeWaiting); n != 2 {
		t.Fatalf("waiting acks = %d, want 2", n)
	}
	f.checkConsistency(t)
}

func TestRequestPairing_NextNotifiesFormerPartnerOnce(t *testing.T) {
	f := newFixture()
	a, ach := f.join(t, "A")
	b, bch := f.join(t, "B")
	f.findPeer(t, a)
	f.findPeer(t, b)
	ach.reset()
	bch.reset()

	// B presses next with nobody else around.
	f.findPeer(t, b)

	if n := ach.count(signaling.TypePeerGone); n != 1 {
		t.Fatalf("A got %d peer-gone, want 1", n)
	}
	var gone signaling.PeerGonePayload
	ach.last(t, signaling.TypePeerGone, &gone)
	if gone.Reason != string(ReasonNext) {
		t.Errorf("reason = %q, want %q", gone.Reason, ReasonNext)
	}
	if bch.count(signaling.TypePeerGone) != 0 {
		t.Error("B was told its own pairing ended")
	}
	if got := bch.types(); len(got) != 1 || got[0] != signaling.TypeWaiting {
		t.Fatalf("B got %v, want [waiting]", got)
	}
	if _, ok := f.matchmaker.PartnerOf(a); ok {
		t.Fatal("A still has a partner")
	}
	if f.registry.Lookup(a).Status != StatusReady {
		t.Fatalf("A status = %v, want ready", f.registry.Lookup(a).Status)
	}
	f.checkConsistency(t)

	// A looks again and lands with B, in a fresh pairing.
	f.findPeer(t, a)
	var started signaling.CallStartedPayload
	ach.last(t, signaling.TypeCallStarted, &started)
	if started.PeerID != string(b) || started.Role != signaling.RoleInitiator {
		t.Fatalf("A call-started = %+v", started)
	}
	f.checkConsistency(t)
}

func TestRequestPairing_NextMatchesWaitingStranger(t *testing.T) {
	f := newFixture()
	a, ach := f.join(t, "A")
	b, _ := f.join(t, "B")
	c, cch := f.join(t, "C")
	f.findPeer(t, a)
	f.findPeer(t, b)
	f.findPeer(t, c)
	ach.reset()

	f.findPeer(t, b)

	var started signaling.CallStartedPayload
	cch.last(t, signaling.TypeCallStarted, &started)
	if started.PeerID != string(b) {
		t.Fatalf("C paired with %s, want B", started.PeerID)
	}
	if got := ach.types(); len(got) != 1 || got[0] != signaling.TypePeerGone {
		t.Fatalf("A got %v, want exactly [peer-gone]", got)
	}
	f.checkConsistency(t)
}

func TestEndPairing_HangUp(t *testing.T) {
	f := newFixture()
	x, xch := f.join(t, "X")
	y, ych := f.join(t, "Y")
	f.findPeer(t, x)
	f.findPeer(t, y)
	xch.reset()
	ych.reset()

	if !f.matchmaker.EndPairing(x, ReasonHangUp) {
		t.Fatal("EndPairing reported no change")
	}
	if f.matchmaker.EndPairing(x, ReasonHangUp) {
		t.Fatal("second EndPairing reported a change")
	}

	if n := ych.count(signaling.TypePeerGone); n != 1 {
		t.Fatalf("Y got %d peer-gone, want 1", n)
	}
	if len(xch.types()) != 0 {
		t.Fatalf("X got %v after its own hang-up", xch.types())
	}

	// X immediately looks again and must not see Y's stale pairing.
	f.findPeer(t, x)
	if got := xch.types(); len(got) != 1 || got[0] != signaling.TypeWaiting {
		t.Fatalf("X got %v, want [waiting]", got)
	}
	if _, ok := f.matchmaker.PartnerOf(y); ok {
		t.Fatal("Y still paired")
	}
	f.checkConsistency(t)
}

func TestEndPairing_WaitingAndIdle(t *testing.T) {
	f := newFixture()
	a, ach := f.join(t, "A")
	idle, idleCh := f.join(t, "Idle")

	f.findPeer(t, a)
	ach.reset()

	if !f.matchmaker.EndPairing(a, ReasonHangUp) {
		t.Fatal("EndPairing on waiter reported no change")
	}
	if f.store.IsWaiting(a) {
		t.Fatal("A still waiting")
	}
	if len(ach.types()) != 0 {
		t.Fatalf("A got %v", ach.types())
	}

	if f.matchmaker.EndPairing(idle, ReasonHangUp) {
		t.Fatal("EndPairing on idle participant reported a change")
	}
	if len(idleCh.types()) != 0 {
		t.Fatalf("idle participant got %v", idleCh.types())
	}
}

func TestOnParticipantGone_WhileWaiting(t *testing.T) {
	f := newFixture()
	a, _ := f.join(t, "A")
	b, bch := f.join(t, "B")
	f.findPeer(t, a)

	f.matchmaker.OnParticipantGone(a)

	if f.store.IsWaiting(a) {
		t.Fatal("departed participant still waiting")
	}
	if f.registry.Lookup(a) != nil {
		t.Fatal("departed participant still registered")
	}
	if len(bch.types()) != 0 {
		t.Fatalf("bystander got %v", bch.types())
	}

	// The next caller waits instead of pairing with the departed one.
	f.findPeer(t, b)
	if got := bch.types(); len(got) != 1 || got[0] != signaling.TypeWaiting {
		t.Fatalf("B got %v, want [waiting]", got)
	}
}

func TestOnParticipantGone_WhilePaired(t *testing.T) {
	f := newFixture()
	a, _ := f.join(t, "A")
	b, bch := f.join(t, "B")
	f.findPeer(t, a)
	f.findPeer(t, b)
	bch.reset()

	f.matchmaker.OnParticipantGone(a)
	f.matchmaker.OnParticipantGone(a)

	if n := bch.count(signaling.TypePeerGone); n != 1 {
		t.Fatalf("B got %d peer-gone, want 1", n)
	}
	var gone signaling.PeerGonePayload
	bch.last(t, signaling.TypePeerGone, &gone)
	if gone.Reason != string(ReasonDisconnected) {
		t.Errorf("reason = %q", gone.Reason)
	}
	if len(f.store.Pairings()) != 0 {
		t.Fatalf("pairings left: %v", f.store.Pairings())
	}
	if _, ok := f.matchmaker.PartnerOf(b); ok {
		t.Fatal("B still has a partner")
	}
	f.checkConsistency(t)
}

func TestOnParticipantGone_Unnamed(t *testing.T) {
	f := newFixture()
	a, _ := f.join(t, "")
	f.matchmaker.OnParticipantGone(a)
	if f.registry.Lookup(a) != nil {
		t.Fatal("unnamed participant still registered")
	}
}

// TestMatchmaker_RandomChurn drives many participants through random
// find-peer, hang-up and disconnect sequences and checks the pairing
// consistency after every step.
func TestMatchmaker_RandomChurn(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	f := newFixture()

	type member struct {
		id ParticipantID
		ch *fakeChannel
	}
	var members []member
	names := []string{"Ana", "Ben", "Cid", "Dee", "Eve", "Fay", "Gus", "Hal"}
	for _, name := range names {
		id, ch := f.join(t, name)
		members = append(members, member{id, ch})
	}

	for step := 0; step < 2000; step++ {
		m := members[rng.Intn(len(members))]
		if f.registry.Lookup(m.id) == nil {
			continue
		}

		before := make(map[ParticipantID]int)
		for _, other := range members {
			before[other.id] = other.ch.count(signaling.TypePeerGone)
		}
		partner, wasPaired := f.matchmaker.PartnerOf(m.id)

		switch op := rng.Intn(10); {
		case op < 6:
			f.findPeer(t, m.id)
		case op < 9:
			f.matchmaker.EndPairing(m.id, ReasonHangUp)
		default:
			f.matchmaker.OnParticipantGone(m.id)
			id, ch := f.join(t, names[rng.Intn(len(names))])
			members = append(members, member{id, ch})
		}

		for _, other := range members {
			delta := other.ch.count(signaling.TypePeerGone) - before[other.id]
			want := 0
			if wasPaired && other.id == partner {
				want = 1
			}
			if delta != want {
				t.Fatalf("step %d: %s got %d peer-gone, want %d", step, other.id, delta, want)
			}
		}
		f.checkConsistency(t)
	}
}
