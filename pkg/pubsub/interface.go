package pubsub

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a closed PubSub.
var ErrClosed = errors.New("pubsub: closed")

// Message is a raw payload travelling on a shared channel.
type Message struct {
	Channel string
	// Key is a partitioning hint. Drivers with ordered partitions (Kafka)
	// keep messages with the same key in order; Redis ignores it.
	Key     string
	Payload []byte
}

// Publisher publishes messages to the shared bus.
type Publisher interface {
	Publish(ctx context.Context, msg *Message) error
}

// Subscriber subscribes to a channel on the shared bus.
//
// The returned stream is infinite and not restartable: it is closed when
// ctx is cancelled or the underlying subscription fails, and a new call to
// Subscribe yields a fresh stream without replay of missed messages.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan *Message, error)
}

// PubSub combines Publisher and Subscriber interfaces.
type PubSub interface {
	Publisher
	Subscriber
	Close() error
}
