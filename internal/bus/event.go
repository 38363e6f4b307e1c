package bus

import "time"

// Event is an in-process notification published on the bus. Kind is a
// dot-separated name ("upload.progress", "server.stopping") so subscribers
// can filter by namespace prefix.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
