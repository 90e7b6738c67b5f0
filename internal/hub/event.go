package hub

import "time"

// TestMessage is the fixed message carried by every produced event.
const TestMessage = "Test"

// Event is the record published onto a channel by the producer function.
// Field names are kept as-is on the wire.
type Event struct {
	Message string    `json:"Message"`
	Date    time.Time `json:"Date"`
}

// NewEvent returns the fixed test event stamped with the given time in UTC.
func NewEvent(at time.Time) Event {
	return Event{Message: TestMessage, Date: at.UTC()}
}
