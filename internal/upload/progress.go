// Package upload is the messaging-core side of the attachment pipeline
// boundary. The pipeline itself (thumbnailing, transcoding, metadata) lives
// elsewhere; it reports progress through a Publisher and hands over a
// finished descriptor. The router relays these events verbatim to the
// conversation room.
package upload

import (
	"time"

	"github.com/crewdesk/relay/internal/bus"
	"github.com/crewdesk/relay/protocol"
)

// Publisher emits upload progress events onto the bus.
type Publisher struct {
	bus *bus.Bus
}

// NewPublisher creates a publisher over the given bus.
func NewPublisher(b *bus.Bus) *Publisher {
	return &Publisher{bus: b}
}

// Progress reports a percentage for an in-flight upload.
func (p *Publisher) Progress(conversationID, uploadID string, percent int) {
	p.bus.Publish(bus.Event{
		Kind:      "upload.progress",
		Timestamp: time.Now(),
		Payload: protocol.UploadProgress{
			ConversationID: conversationID,
			UploadID:       uploadID,
			Percent:        percent,
		},
	})
}

// Complete reports a finished upload with its final descriptor.
func (p *Publisher) Complete(conversationID, uploadID string, att protocol.Attachment) {
	p.bus.Publish(bus.Event{
		Kind:      "upload.complete",
		Timestamp: time.Now(),
		Payload: protocol.UploadComplete{
			ConversationID: conversationID,
			UploadID:       uploadID,
			Attachment:     att,
		},
	})
}

// Error reports a failed upload.
func (p *Publisher) Error(conversationID, uploadID, message string) {
	p.bus.Publish(bus.Event{
		Kind:      "upload.error",
		Timestamp: time.Now(),
		Payload: protocol.UploadError{
			ConversationID: conversationID,
			UploadID:       uploadID,
			Message:        message,
		},
	})
}
