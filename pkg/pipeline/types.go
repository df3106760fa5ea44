package pipeline

import (
	"context"

	"github.com/illmade-knight/go-catalog/pkg/types"
)

// MessageConsumer is the interface for a message source. It is responsible
// for fetching raw messages from the broker and exposing them on a channel.
type MessageConsumer interface {
	// Messages returns a read-only channel from which messages are consumed.
	Messages() <-chan types.ConsumedMessage
	// Start initiates the consumption of messages.
	Start(ctx context.Context) error
	// Stop gracefully ceases message consumption.
	Stop() error
	// Done returns a channel that is closed when the consumer has fully stopped.
	Done() <-chan struct{}
}

// BatchHandler handles one delivered batch. The handler owns settlement: it
// must Ack or Nack every message in the batch before returning.
type BatchHandler func(ctx context.Context, batch []types.ConsumedMessage)
