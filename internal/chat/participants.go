package chat

import (
	"github.com/crewdesk/relay/internal/store"
)

// CanonicalID reduces any representation of a participant to its identity
// string. Upstream fetches return participants either as raw id strings or
// as records expanded against the users table (and, over the wire, as
// decoded JSON maps); every participation check must compare through this
// one conversion so the two representations never diverge.
func CanonicalID(p any) string {
	switch v := p.(type) {
	case string:
		return v
	case store.ParticipantRecord:
		return v.ID
	case *store.ParticipantRecord:
		return v.ID
	case map[string]any:
		if id, ok := v["_id"].(string); ok {
			return id
		}
		if id, ok := v["id"].(string); ok {
			return id
		}
	}
	return ""
}

// IsParticipant reports whether userID is in the participant set,
// regardless of how the set is represented.
func IsParticipant(participants []any, userID string) bool {
	if userID == "" {
		return false
	}
	for _, p := range participants {
		if CanonicalID(p) == userID {
			return true
		}
	}
	return false
}
