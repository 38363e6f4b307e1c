package store

import "github.com/crewdesk/relay/protocol"

// User is a known principal.
type User struct {
	ID     string
	Name   string
	Role   string
	Active bool
}

// Conversation is a direct or group thread. Participants may be raw
// identity strings or expanded records depending on how the row was
// fetched; participation checks must go through chat.CanonicalID.
type Conversation struct {
	ID             string `json:"id"`
	Kind           string `json:"kind"` // "direct" or "group"
	Name           string `json:"name,omitempty"`
	Participants   []any  `json:"participants"`
	LastMessageID  string `json:"lastMessageId,omitempty"`
	LastActivityAt int64  `json:"lastActivityAt"`
	Active         bool   `json:"active"`
	CreatedAt      int64  `json:"createdAt"`
}

// Message rows round-trip through the wire type unchanged.
type Message = protocol.Message

// Attachment follows Message through the wire package.
type Attachment = protocol.Attachment

// Delivery statuses, mirrored from the wire package for store callers.
const (
	StatusSending   = protocol.StatusSending
	StatusSent      = protocol.StatusSent
	StatusDelivered = protocol.StatusDelivered
	StatusRead      = protocol.StatusRead
	StatusFailed    = protocol.StatusFailed
)
