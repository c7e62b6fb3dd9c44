package stream

import "time"

// EventType identifies the kind of payload carried by an Event.
type EventType string

const (
	EventStdout    EventType = "stdout"
	EventStderr    EventType = "stderr"
	EventStatus    EventType = "status"
	EventConnected EventType = "connected"
	EventHistory   EventType = "history"
)

// Event is one unit of output broadcast to the subscribers of a job.
// IDs are stringified integers, strictly increasing per job starting at 1;
// they double as the replay cursor for reconnecting clients.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Data      string    `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}
