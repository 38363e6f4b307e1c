package chat

import (
	"testing"

	"github.com/crewdesk/relay/internal/store"
)

func TestCanonicalID(t *testing.T) {
	tests := []struct {
		desc string
		in   any
		want string
	}{
		{"raw id string", "alice", "alice"},
		{"expanded record", store.ParticipantRecord{ID: "alice", Name: "Alice"}, "alice"},
		{"expanded record pointer", &store.ParticipantRecord{ID: "alice"}, "alice"},
		{"decoded json with _id", map[string]any{"_id": "alice", "name": "Alice"}, "alice"},
		{"decoded json with id", map[string]any{"id": "alice"}, "alice"},
		{"unknown shape", 42, ""},
		{"json without id", map[string]any{"name": "Alice"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			if got := CanonicalID(tt.in); got != tt.want {
				t.Errorf("CanonicalID(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestIsParticipantAcrossRepresentations(t *testing.T) {
	// One membership set, both ways the store hands it back.
	raw := []any{"alice", "bob"}
	expanded := []any{
		store.ParticipantRecord{ID: "alice", Name: "Alice"},
		store.ParticipantRecord{ID: "bob", Name: "Bob"},
	}

	for _, participants := range [][]any{raw, expanded} {
		if !IsParticipant(participants, "alice") {
			t.Errorf("alice should be a participant of %v", participants)
		}
		if IsParticipant(participants, "carol") {
			t.Errorf("carol should not be a participant of %v", participants)
		}
	}

	if IsParticipant(raw, "") {
		t.Error("empty user id must never match")
	}
}
