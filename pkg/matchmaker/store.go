package matchmaker

import "time"

// Pairing is an active one-on-one match. A and B are unordered for
// lookup purposes; A is the initiator.
type Pairing struct {
	A     ParticipantID
	B     ParticipantID
	Room  string
	Since time.Time
}

// Partner returns the other member of the pairing.
func (p Pairing) Partner(id ParticipantID) (ParticipantID, bool) {
	switch id {
	case p.A:
		return p.B, true
	case p.B:
		return p.A, true
	default:
		return "", false
	}
}

// Store holds the waiting pool and the active pairing map.
// Implementations need not be safe for concurrent use.
type Store interface {
	// Enqueue appends id to the tail of the waiting pool. Enqueueing an id
	// that is already waiting is a no-op.
	Enqueue(id ParticipantID)

	// Dequeue pops the head of the waiting pool.
	Dequeue() (ParticipantID, bool)

	// RemoveWaiting drops id from the pool and reports whether it was there.
	RemoveWaiting(id ParticipantID) bool

	IsWaiting(id ParticipantID) bool
	WaitingLen() int

	// Waiting lists the pool from head to tail.
	Waiting() []ParticipantID

	// Pair records p under both of its members.
	Pair(p Pairing)

	// PairingOf returns the pairing id belongs to.
	PairingOf(id ParticipantID) (Pairing, bool)

	// Unpair deletes both directions of the pairing id belongs to.
	Unpair(id ParticipantID) (Pairing, bool)

	// Pairings lists each active pairing once.
	Pairings() []Pairing
}

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is the process-local Store.
type MemoryStore struct {
	queue   []ParticipantID
	queued  map[ParticipantID]struct{}
	pairing map[ParticipantID]Pairing
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		queued:  make(map[ParticipantID]struct{}),
		pairing: make(map[ParticipantID]Pairing),
	}
}

func (s *MemoryStore) Enqueue(id ParticipantID) {
	if _, ok := s.queued[id]; ok {
		return
	}
	s.queue = append(s.queue, id)
	s.queued[id] = struct{}{}
}

func (s *MemoryStore) Dequeue() (ParticipantID, bool) {
	if len(s.queue) == 0 {
		return "", false
	}
	id := s.queue[0]
	s.queue[0] = ""
	s.queue = s.queue[1:]
	delete(s.queued, id)
	return id, true
}

func (s *MemoryStore) RemoveWaiting(id ParticipantID) bool {
	if _, ok := s.queued[id]; !ok {
		return false
	}
	delete(s.queued, id)
	for i, queued := range s.queue {
		if queued == id {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			break
		}
	}
	return true
}

func (s *MemoryStore) IsWaiting(id ParticipantID) bool {
	_, ok := s.queued[id]
	return ok
}

func (s *MemoryStore) WaitingLen() int {
	return len(s.queue)
}

func (s *MemoryStore) Waiting() []ParticipantID {
	out := make([]ParticipantID, len(s.queue))
	copy(out, s.queue)
	return out
}

func (s *MemoryStore) Pair(p Pairing) {
	s.pairing[p.A] = p
	s.pairing[p.B] = p
}

func (s *MemoryStore) PairingOf(id ParticipantID) (Pairing, bool) {
	p, ok := s.pairing[id]
	return p, ok
}

func (s *MemoryStore) Unpair(id ParticipantID) (Pairing, bool) {
	p, ok := s.pairing[id]
	if !ok {
		return Pairing{}, false
	}
	delete(s.pairing, p.A)
	delete(s.pairing, p.B)
	return p, true
}

func (s *MemoryStore) Pairings() []Pairing {
	out := make([]Pairing, 0, len(s.pairing)/2)
	for id, p := range s.pairing {
		if id == p.A {
			out = append(out, p)
		}
	}
	return out
}
