package repository

// Topics for entry events on the message bus.
const (
	TopicEntryCreated  = "entries.created"
	TopicEntryConsumed = "entries.consumed"
)

// MessageBus publishes entry events. Satisfied by *nats.Conn.
type MessageBus interface {
	Publish(topic string, data []byte) error
}
