package matchmaker

import (
	"errors"
	"strings"
	"testing"
)

func TestRegistry_SetName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{name: "plain", input: "Alice", want: "Alice"},
		{name: "trimmed", input: "  Bob \t", want: "Bob"},
		{name: "empty", input: "", wantErr: ErrInvalidState},
		{name: "whitespace", input: " \n\t ", wantErr: ErrInvalidState},
		{name: "too long", input: strings.Repeat("x", MaxNameLength+1), wantErr: ErrInvalidState},
		{name: "multibyte at limit", input: strings.Repeat("é", MaxNameLength), want: strings.Repeat("é", MaxNameLength)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry(discardLogger())
			p := r.Register(&fakeChannel{})

			err := r.SetName(p.ID, tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("SetName error = %v, want %v", err, tt.wantErr)
				}
				if p.Status != StatusUnset || p.Name != "" {
					t.Fatalf("rejected name changed state: status=%v name=%q", p.Status, p.Name)
				}
				return
			}
			if err != nil {
				t.Fatalf("SetName: %v", err)
			}
			if p.Name != tt.want {
				t.Errorf("Name = %q, want %q", p.Name, tt.want)
			}
			if p.Status != StatusReady {
				t.Errorf("Status = %v, want ready", p.Status)
			}
		})
	}
}

func TestRegistry_SetNameOnlyOnce(t *testing.T) {
	r := NewRegistry(discardLogger())
	p := r.Register(&fakeChannel{})

	if err := r.SetName(p.ID, "Alice"); err != nil {
		t.Fatalf("first SetName: %v", err)
	}
	err := r.SetName(p.ID, "Mallory")
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second SetName error = %v, want ErrInvalidState", err)
	}
	if p.Name != "Alice" {
		t.Errorf("Name = %q after rejected rename", p.Name)
	}
}

func TestRegistry_SetNameUnknown(t *testing.T) {
	r := NewRegistry(discardLogger())
	if err := r.SetName("ghost", "Alice"); !errors.Is(err, ErrUnknownParticipant) {
		t.Fatalf("SetName error = %v, want ErrUnknownParticipant", err)
	}
}

func TestRegistry_RegisterAssignsDistinctIDs(t *testing.T) {
	r := NewRegistry(discardLogger())
	seen := make(map[ParticipantID]bool)
	for i := 0; i < 100; i++ {
		p := r.Register(&fakeChannel{})
		if p.ID == "" || seen[p.ID] {
			t.Fatalf("duplicate or empty id %q", p.ID)
		}
		seen[p.ID] = true
	}
	if r.Len() != 100 {
		t.Fatalf("Len = %d, want 100", r.Len())
	}
}

func TestRegistry_UnregisterRunsHooksOnce(t *testing.T) {
	r := NewRegistry(discardLogger())
	var gone []ParticipantID
	r.OnGone(func(id ParticipantID) { gone = append(gone, id) })

	p := r.Register(&fakeChannel{})
	r.Unregister(p.ID)
	r.Unregister(p.ID)

	if len(gone) != 1 || gone[0] != p.ID {
		t.Fatalf("hooks ran for %v, want [%s]", gone, p.ID)
	}
	if r.Lookup(p.ID) != nil {
		t.Fatal("participant still registered")
	}
	if p.Status != StatusDisconnected {
		t.Fatalf("Status = %v, want disconnected", p.Status)
	}
}
