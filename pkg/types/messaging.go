package types

import (
	"time"
)

// ConsumedMessage is one message delivered from the work queue or an event
// subscription. The Ack/Nack closures carry the broker's delivery token, so
// the processing side never sees broker-specific types.
type ConsumedMessage struct {
	// ID is the unique identifier for the message from the source broker.
	ID string
	// Payload is the raw byte content of the message.
	Payload []byte
	// Attributes holds the message's key/value metadata, e.g. the dedupe key
	// or the storage event fields.
	Attributes map[string]string
	// PublishTime is the timestamp when the message was originally published.
	PublishTime time.Time
	// Ack acknowledges that the message has been fully handled. It is
	// terminal for this delivery.
	Ack func()
	// Nack signals that handling failed and the message should be redelivered
	// or dead-lettered by the broker.
	Nack func()
}
