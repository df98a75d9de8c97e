package rabbitmq

import (
	"context"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// channel represents a wrapped amqp091 channel.
// every queue operation is funnelled through a single channel.
type channel struct {
	mu  sync.RWMutex // mu a guarding mutex for the internal channel.
	log *zap.Logger

	ctx    context.Context    // bound to the lifetime of the channel.
	cancel context.CancelFunc // stops the close watcher.

	// closed represents whether we have called closed specifically on our channel.
	closed bool

	closeOnce sync.Once
	closeErr  error

	Channel amqp091Channel // the currently active channel.
}

// wrapChannel wraps ch and starts watching it for closes.
func wrapChannel(ch amqp091Channel, log *zap.Logger) *channel {
	if log == nil {
		log = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &channel{
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		Channel: ch,
	}

	watchClose(ctx, ch, func(e *amqp091.Error) {
		c.log.Error("channel closed by broker",
			zap.Int("code", e.Code),
			zap.String("reason", e.Reason),
			zap.Bool("server", e.Server),
		)
	})

	return c
}

// QoS attempts to set the prefetch count and size for consumers on the channel.
func (c *channel) QoS(ctx context.Context, count, size int, global bool) error {
	return c.onChannel(ctx, func(ch amqp091Channel) error {
		return ch.Qos(count, size, global)
	})
}

// DeclareQueue attempts to declare a queue, when passive the queue is only inspected.
func (c *channel) DeclareQueue(
	ctx context.Context,
	name string,
	passive, durable, autoDelete, exclusive bool,
	args amqp091.Table,
) (amqp091.Queue, error) {
	var q amqp091.Queue
	err := c.onChannel(ctx, func(ch amqp091Channel) error {
		var qErr error
		if passive {
			q, qErr = ch.QueueDeclarePassive(name, durable, autoDelete, exclusive, false, args)
		} else {
			q, qErr = ch.QueueDeclare(name, durable, autoDelete, exclusive, false, args)
		}
		return qErr
	})
	return q, err
}

// BindQueue attempts to bind a queue to an exchange.
func (c *channel) BindQueue(ctx context.Context, queue, exchange, routingKey string) error {
	return c.onChannel(ctx, func(ch amqp091Channel) error {
		return ch.QueueBind(queue, routingKey, exchange, false, nil)
	})
}

// DeclareExchange attempts to declare an exchange.
func (c *channel) DeclareExchange(ctx context.Context, ex ExchangeConfig) error {
	return c.onChannel(ctx, func(ch amqp091Channel) error {
		if ex.Passive {
			return ch.ExchangeDeclarePassive(ex.Name, string(ex.Type), ex.Durable, ex.AutoDelete, false, false, nil)
		}
		return ch.ExchangeDeclare(ex.Name, string(ex.Type), ex.Durable, ex.AutoDelete, false, false, nil)
	})
}

// Publish attempts to publish a message onto an exchange with the supplied routing key.
// when no content type is set it is detected from the body.
func (c *channel) Publish(ctx context.Context, exchange, routingKey string, msg amqp091.Publishing) error {
	if msg.ContentType == "" {
		msg.ContentType = mimetype.Detect(msg.Body).String()
	}

	return c.onChannel(ctx, func(ch amqp091Channel) error {
		return ch.PublishWithContext(ctx, exchange, routingKey, false, false, msg)
	})
}

// Get attempts to pull a single message from a queue. ok is false when the queue is empty.
func (c *channel) Get(ctx context.Context, queue string, autoAck bool) (d amqp091.Delivery, ok bool, err error) {
	err = c.onChannel(ctx, func(ch amqp091Channel) error {
		var gErr error
		d, ok, gErr = ch.Get(queue, autoAck)
		return gErr
	})
	return d, ok, err
}

// Ack acknowledges a single delivery.
func (c *channel) Ack(ctx context.Context, tag uint64) error {
	return c.onChannel(ctx, func(ch amqp091Channel) error {
		return ch.Ack(tag, false)
	})
}

// Nack negatively acknowledges a single delivery.
func (c *channel) Nack(ctx context.Context, tag uint64, requeue bool) error {
	return c.onChannel(ctx, func(ch amqp091Channel) error {
		return ch.Nack(tag, false, requeue)
	})
}

// Purge removes all ready messages from a queue, returning how many were removed.
func (c *channel) Purge(ctx context.Context, queue string) (int, error) {
	var n int
	err := c.onChannel(ctx, func(ch amqp091Channel) error {
		var pErr error
		n, pErr = ch.QueuePurge(queue, false)
		return pErr
	})
	return n, err
}

// ConsumeOne registers a consumer under consumerName, waits for a single delivery and
// deregisters the consumer again. the delivery is not acknowledged.
//
// a non-positive wait blocks until a delivery arrives or ctx is done.
// a nil delivery and nil error is returned when wait elapsed.
func (c *channel) ConsumeOne(
	ctx context.Context,
	queue, consumerName string,
	wait time.Duration,
) (*amqp091.Delivery, error) {
	var deliveries <-chan amqp091.Delivery
	err := c.onChannel(ctx, func(ch amqp091Channel) error {
		var cErr error
		deliveries, cErr = ch.Consume(queue, consumerName, false, false, false, false, nil)
		return cErr
	})
	if err != nil {
		return nil, err
	}

	var timeout <-chan time.Time
	if wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		timeout = t.C
	}

	var (
		d        amqp091.Delivery
		received bool
		open     = true
	)

	select {
	case d, open = <-deliveries:
		received = open
	case <-timeout:
	case <-ctx.Done():
		err = ctx.Err()
	}

	c.cancelConsume(consumerName, deliveries)

	switch {
	case err != nil:
		return nil, err
	case !open:
		// the delivery channel is only closed when the channel itself has gone away.
		return nil, amqp091.ErrClosed
	case !received:
		return nil, nil
	}

	return &d, nil
}

// cancelConsume deregisters a consumer and requeues anything which was delivered
// to it after we stopped listening.
func (c *channel) cancelConsume(consumerName string, deliveries <-chan amqp091.Delivery) {
	err := c.onChannel(c.ctx, func(ch amqp091Channel) error {
		return ch.Cancel(consumerName, false)
	})
	if err != nil {
		// without a successful cancel the delivery channel is never closed. anything
		// outstanding returns to the queue once the channel closes.
		return
	}

	// amqp091 closes the delivery channel once the consumer is cancelled.
	for d := range deliveries {
		logError(c.log, "could not requeue late delivery", c.Nack(c.ctx, d.DeliveryTag, true))
	}
}

// Close closes the channel, only the first call reaches the broker.
func (c *channel) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		alreadyClosed := isClosed(c.Channel)

		c.closed = true
		if c.cancel != nil {
			c.cancel()
		}

		if !alreadyClosed {
			c.closeErr = c.Channel.Close()
		}
	})

	return c.closeErr
}

// IsClosed wraps the original IsClosed function.
func (c *channel) IsClosed() bool {
	if c == nil {
		return true
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return true
	}

	return isClosed(c.Channel)
}

// onChannel helper function to perform an action on the raw amqp091 channel.
func (c *channel) onChannel(ctx context.Context, fn func(ch amqp091Channel) error) error {
	if c.IsClosed() {
		return amqp091.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.RLock()
	err := fn(c.Channel)
	c.mu.RUnlock()

	logError(c.log, "channel operation failed", err)
	return err
}
