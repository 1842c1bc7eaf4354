package matchmaker

import (
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxNameLength is the longest display name accepted, in runes.
const MaxNameLength = 32

// GoneHook runs while a participant is being unregistered, before it is
// forgotten.
type GoneHook func(id ParticipantID)

// Registry tracks every connected participant. It is not safe for
// concurrent use; the Hub serializes all access.
type Registry struct {
	participants map[ParticipantID]*Participant
	hooks        []GoneHook
	logger       *slog.Logger
	now          func() time.Time
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		participants: make(map[ParticipantID]*Participant),
		logger:       logger,
		now:          time.Now,
	}
}

// OnGone adds a hook invoked by Unregister.
func (r *Registry) OnGone(hook GoneHook) {
	r.hooks = append(r.hooks, hook)
}

// Register creates a participant with a fresh identifier for ch.
func (r *Registry) Register(ch Channel) *Participant {
	p := &Participant{
		ID:       ParticipantID(uuid.NewString()),
		Status:   StatusUnset,
		Channel:  ch,
		JoinedAt: r.now(),
	}
	r.participants[p.ID] = p
	r.logger.Debug("participant registered", "participant", p.ID)
	return p
}

// SetName assigns the display name. It can succeed only once per
// participant.
func (r *Registry) SetName(id ParticipantID, name string) error {
	p, ok := r.participants[id]
	if !ok {
		return newError("set name", id, ErrUnknownParticipant)
	}
	if p.Name != "" {
		return wrapError("set name", id, ErrInvalidState, "display name already set")
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return wrapError("set name", id, ErrInvalidState, "display name must not be empty")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return wrapError("set name", id, ErrInvalidState, "display name is too long")
	}

	p.Name = name
	p.Status = StatusReady
	r.logger.Info("display name set", "participant", id, "name", name)
	return nil
}

// Lookup returns the participant or nil.
func (r *Registry) Lookup(id ParticipantID) *Participant {
	return r.participants[id]
}

// Len is the number of registered participants.
func (r *Registry) Len() int {
	return len(r.participants)
}

// Participants returns every registered participant in no particular
// order.
func (r *Registry) Participants() []*Participant {
	out := make([]*Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, p)
	}
	return out
}

// Unregister removes every trace of the participant. Unknown IDs are
// ignored.
func (r *Registry) Unregister(id ParticipantID) {
	p, ok := r.participants[id]
	if !ok {
		return
	}

	for _, hook := range r.hooks {
		hook(id)
	}

	p.Status = StatusDisconnected
	delete(r.participants, id)
	r.logger.Debug("participant unregistered", "participant", id)
}
