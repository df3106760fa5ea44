package notify

import "context"

// Notification is one message for the downstream notification bus. The
// attributes carry structured metadata subscribers can filter on, e.g. a
// numeric price threshold.
type Notification struct {
	Subject    string
	Body       []byte
	Attributes map[string]string
}

// Publisher is the notification bus boundary.
type Publisher interface {
	// Publish delivers one notification. It blocks until the bus has
	// accepted the message or ctx expires.
	Publish(ctx context.Context, n Notification) error
	// Stop flushes pending messages and releases the publisher's resources.
	Stop()
}
