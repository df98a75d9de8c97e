package jobqueue

import (
	"context"
	"time"
)

const (
	// DefaultWait instructs a wait operation to use the timeout configured on the backend.
	// When the backend has no timeout configured the wait blocks until a message arrives
	// or the supplied context is done.
	DefaultWait time.Duration = 0
	// NoWait instructs a wait operation to make a single attempt and return straight away.
	NoWait time.Duration = -1
)

// Message represents a single job pulled from a queue.
type Message struct {
	// ID identifies the delivery, it is used to finish or abort the message.
	// it is only valid until the message is finished, aborted or the backend is shutdown.
	ID string `json:"id"`
	// Payload the decoded payload which was supplied on submit.
	Payload interface{} `json:"payload"`
	// CorrelationID the identifier returned from submit when the message was published.
	CorrelationID string `json:"correlation_id,omitempty"`
	// Redelivered whether the message has been delivered previously.
	Redelivered bool `json:"redelivered"`
}

// Queue represents a single named job queue on a backend.
type Queue interface {
	// Name returns the name of the queue.
	Name() string
	// Submit encodes and publishes a payload, returning an identifier which
	// can be used to correlate the submitted job.
	Submit(ctx context.Context, payload interface{}, opts ...SubmitOption) (string, error)
	// WaitAndTake waits for the next message and removes it from the queue straight away,
	// regardless of what the caller goes on to do with it.
	// a nil message and nil error is returned when nothing arrived in time.
	WaitAndTake(ctx context.Context, timeout time.Duration) (*Message, error)
	// WaitAndReserve waits for the next message, the message is kept on the queue until
	// Finish or Abort is called with its ID.
	// a nil message and nil error is returned when nothing arrived in time.
	WaitAndReserve(ctx context.Context, timeout time.Duration) (*Message, error)
	// Release puts a reserved message back onto the queue.
	Release(ctx context.Context, messageID string, opts ...ReleaseOption) error
	// Abort rejects a reserved message.
	Abort(ctx context.Context, messageID string) error
	// Finish acknowledges a reserved message, removing it from the queue.
	Finish(ctx context.Context, messageID string) error
	// Peek returns up to limit messages without reserving them.
	Peek(ctx context.Context, limit int) ([]*Message, error)
	// Count returns the amount of messages currently ready on the queue.
	Count(ctx context.Context) (int, error)
	// SetUp performs any provisioning required by the backend.
	SetUp(ctx context.Context) error
	// Flush removes all messages from the queue.
	Flush(ctx context.Context) error
	// Shutdown releases all resources held by the queue.
	Shutdown() error
}
