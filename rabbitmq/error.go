package rabbitmq

import (
	"context"
	"errors"

	"github.com/rabbitmq/amqp091-go"
)

var (
	// ErrInvalidConfig is returned when a Config cannot be used to construct a queue.
	ErrInvalidConfig = errors.New("rabbitmq: invalid config")
	// ErrMalformedPayload is returned when a delivery body is not valid JSON.
	ErrMalformedPayload = errors.New("rabbitmq: malformed payload")
)

// notifier helper interface which wraps notification methods
// which are usually shared by different types.
type notifier interface {
	// NotifyClose the internal amqp091 function defined on both
	// channels and connections which set up notifications for errors.
	NotifyClose(rcv chan *amqp091.Error) chan *amqp091.Error
}

// watchClose waits for a close notification from n and passes any close initiated
// by the broker to fn. graceful closes (a nil error or a closed receiver) are ignored.
// the watch stops early when ctx is done.
func watchClose(ctx context.Context, n notifier, fn func(e *amqp091.Error)) {
	// buffered so amqp091 never blocks on us after ctx is done.
	rcv := n.NotifyClose(make(chan *amqp091.Error, 1))

	go func() {
		select {
		case <-ctx.Done():
		case e, ok := <-rcv:
			if ok && e != nil {
				fn(e)
			}
		}
	}()
}
