package bus

import "time"

// Notification kinds pushed to real-time listeners.
const (
	KindNewMessage          = "new_message"
	KindConversationUpdated = "conversation_updated"
	KindMessageStatus       = "message_status_update"
)

// Event represents a domain notification published on the bus.
// Conversation scopes delivery for every kind except KindConversationUpdated.
type Event struct {
	Kind         string
	Conversation string
	Timestamp    time.Time
	Payload      any
}

// Broadcast reports whether the event goes to every listener regardless of membership.
func (e Event) Broadcast() bool {
	return e.Kind == KindConversationUpdated
}

// StatusUpdate is the payload of a KindMessageStatus event.
type StatusUpdate struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Publisher is implemented by anything that can fan out events: the in-process Bus
// or a relay that shares events between processes.
type Publisher interface {
	Publish(evt Event)
}
