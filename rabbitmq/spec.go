package rabbitmq

import (
	"context"
	"io"

	"github.com/rabbitmq/amqp091-go"
)

// the file contains interfaces for the base amqp091 library, this is so we can easily override in tests, and it also
// limits the functionality to what we need.

// dialConfig is the dialer function to use to connect to amqp091 with config
var dialConfig = func(addr string, c amqp091.Config) (amqp091Connection, error) { //nolint // config has to be non-pointer to conform to amqp091.
	conn, err := amqp091.DialConfig(addr, c)
	if err != nil {
		return nil, err
	}
	return &rawConnection{conn}, nil
}

// see: github.com/rabbitmq/amqp091-go/channel.go
type amqp091Channel interface {
	io.Closer
	notifier

	IsClosed() bool
	Qos(count, size int, global bool) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error)
	QueueDeclarePassive(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error)
	QueueBind(queue, routingKey, exchange string, noWait bool, args amqp091.Table) error
	QueuePurge(name string, noWait bool) (int, error)
	ExchangeDeclare(name, typ string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	ExchangeDeclarePassive(name, typ string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, routingKey string, mandatory, immediate bool, msg amqp091.Publishing) error
	Get(queue string, autoAck bool) (amqp091.Delivery, bool, error)
	Consume(
		queue, consumerName string,
		autoAck, exclusive, noLocal, noWait bool,
		args amqp091.Table,
	) (<-chan amqp091.Delivery, error)
	Cancel(consumerName string, noWait bool) error
	Ack(tag uint64, multiple bool) error
	Nack(tag uint64, multiple, requeue bool) error
}

// see: github.com/rabbitmq/amqp091-go/connection.go
type amqp091Connection interface {
	io.Closer
	notifier

	IsClosed() bool
	Channel() (amqp091Channel, error)
}

// rawConnection adapts *amqp091.Connection so that Channel returns our narrower interface.
type rawConnection struct {
	*amqp091.Connection
}

// Channel opens a new channel on the underlying connection.
func (c *rawConnection) Channel() (amqp091Channel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}
