package messagequeue

import (
	"context"
	"errors"
)

// ErrClosed is returned when the queue has been closed.
var ErrClosed = errors.New("message queue is closed")

// Handler processes one message. A returned error asks the broker to redeliver
// the message once; a second failure drops it.
type Handler func(ctx context.Context, body []byte) error

// MessageQueue defines the interface for message queue services.
type MessageQueue interface {
	Publish(ctx context.Context, queueName string, body []byte) error
	// Consume delivers messages from queueName to handler until ctx is done.
	Consume(ctx context.Context, queueName string, handler Handler) error
	Close() error
}
