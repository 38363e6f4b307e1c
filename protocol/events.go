package protocol

// Kind names a wire event. Client and server agree on these strings; the
// colon-separated form groups related events by prefix.
type Kind string

// Client to server events.
const (
	KindConversationJoin  Kind = "conversation:join"
	KindConversationLeave Kind = "conversation:leave"
	KindConversationOpen  Kind = "conversation:open"
	KindMessageSend       Kind = "message:send"
	KindMessageRead       Kind = "message:read"
	KindMessageReact      Kind = "message:react"
	KindMessageDelete     Kind = "message:delete"
	KindTypingStart       Kind = "typing:start"
	KindTypingStop        Kind = "typing:stop"
)

// Server to client events. KindMessageRead is used in both directions.
const (
	KindMessageNew         Kind = "message:new"
	KindMessageReaction    Kind = "message:reaction"
	KindMessageDeleted     Kind = "message:deleted"
	KindUserOnline         Kind = "user:online"
	KindUserOffline        Kind = "user:offline"
	KindConversationJoined Kind = "conversation:joined"
	KindUploadProgress     Kind = "upload:progress"
	KindUploadComplete     Kind = "upload:complete"
	KindUploadError        Kind = "upload:error"
	KindError              Kind = "error"
)

// Reason codes carried by error events.
type Reason string

const (
	// Handshake reasons. Fatal to the connection attempt.
	ReasonNoCredential      Reason = "NoCredential"
	ReasonCredentialInvalid Reason = "CredentialInvalid"
	ReasonCredentialExpired Reason = "CredentialExpired"
	ReasonPrincipalInactive Reason = "PrincipalInactive"

	// Per-event reasons. The connection stays open.
	ReasonNotParticipant Reason = "NotParticipant"
	ReasonEmptyMessage   Reason = "EmptyMessage"
	ReasonBadRequest     Reason = "BadRequest"
	ReasonRateLimited    Reason = "RateLimited"
	ReasonStoreFailure   Reason = "StoreFailure"
)

// Attachment is a pre-validated attachment descriptor. The media pipeline
// produces these; the messaging core never touches the bytes.
type Attachment struct {
	StoredName   string `json:"storedName"`
	OriginalName string `json:"originalName"`
	MimeType     string `json:"mimeType"`
	Size         int64  `json:"size"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
}

// Message delivery statuses in advancement order. A message's status only
// moves forward through these; "failed" is terminal.
const (
	StatusSending   = "sending"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusFailed    = "failed"
)

// Message is the wire form of one committed message, shared by the server
// store and the client library.
type Message struct {
	ID             string              `json:"id"`
	ConversationID string              `json:"conversationId"`
	SenderID       string              `json:"senderId"`
	Content        string              `json:"content"`
	Kind           string              `json:"type"`
	Attachments    []Attachment        `json:"attachments,omitempty"`
	ReplyTo        string              `json:"replyTo,omitempty"`
	Mentions       []string            `json:"mentions,omitempty"`
	Reactions      map[string][]string `json:"reactions,omitempty"`
	Status         string              `json:"status"`
	ReadBy         map[string]int64    `json:"readBy,omitempty"`
	Deleted        bool                `json:"deleted,omitempty"`
	DeletedAt      int64               `json:"deletedAt,omitempty"`
	CreatedAt      int64               `json:"createdAt"`
	UpdatedAt      int64               `json:"updatedAt"`
}

// ConversationJoin asks to join a conversation room.
type ConversationJoin struct {
	ConversationID string `json:"conversationId"`
}

// ConversationLeave asks to leave a conversation room.
type ConversationLeave struct {
	ConversationID string `json:"conversationId"`
}

// ConversationOpen asks for a direct conversation with another identity,
// creating it if none exists.
type ConversationOpen struct {
	PeerID string `json:"peerId"`
}

// MessageSend carries a new message.
type MessageSend struct {
	ConversationID string       `json:"conversationId"`
	Content        string       `json:"content"`
	Type           string       `json:"type,omitempty"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	ReplyTo        string       `json:"replyTo,omitempty"`
	Mentions       []string     `json:"mentions,omitempty"`
}

// MessageRead marks a message as read by the sender of the event.
type MessageRead struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
}

// MessageReact adds or removes an emoji reaction.
type MessageReact struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
	Action    string `json:"action"` // "add" or "remove"
}

// MessageDelete soft-deletes a message. Only the sender may delete.
type MessageDelete struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
}

// Typing is the payload for typing:start and typing:stop in both directions.
// UserID is filled by the server on fan-out.
type Typing struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId,omitempty"`
}

// MessageNew announces a committed message to a conversation room.
type MessageNew struct {
	ConversationID string   `json:"conversationId"`
	Message        *Message `json:"message"`
}

// ReadNotice announces an advanced read state.
type ReadNotice struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	Status         string `json:"status"`
}

// ReactionNotice announces the updated reaction map of a message.
type ReactionNotice struct {
	MessageID string              `json:"messageId"`
	Emoji     string              `json:"emoji"`
	Action    string              `json:"action"`
	UserID    string              `json:"userId"`
	Reactions map[string][]string `json:"reactions"`
}

// DeletedNotice announces a soft-deleted message.
type DeletedNotice struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
}

// Presence announces a principal going online or offline.
type Presence struct {
	UserID string `json:"userId"`
}

// ConversationJoined confirms room membership to the requester.
type ConversationJoined struct {
	ConversationID string `json:"conversationId"`
}

// UploadProgress relays attachment processing progress to a conversation.
type UploadProgress struct {
	ConversationID string `json:"conversationId"`
	UploadID       string `json:"uploadId"`
	Percent        int    `json:"percent"`
}

// UploadComplete relays a finished upload with its final descriptor.
type UploadComplete struct {
	ConversationID string     `json:"conversationId"`
	UploadID       string     `json:"uploadId"`
	Attachment     Attachment `json:"attachment"`
}

// UploadError relays a failed upload.
type UploadError struct {
	ConversationID string `json:"conversationId"`
	UploadID       string `json:"uploadId"`
	Message        string `json:"message"`
}

// ErrorEvent reports a rejected event or handshake to one connection.
type ErrorEvent struct {
	Reason  Reason `json:"reason"`
	Message string `json:"message"`
}
