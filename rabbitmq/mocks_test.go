package rabbitmq

import (
	"context"

	"github.com/rabbitmq/amqp091-go"
)

type errorFunc func() error

type mockAMQPChannelHandlers struct {
	Close                  errorFunc
	Qos                    func(count, size int, global bool) error
	QueueBind              func(queue, routingKey, exchange string) error
	QueuePurge             func(name string) (int, error)
	ExchangeDeclare        func(name, typ string, durable, autoDelete bool) error
	ExchangeDeclarePassive func(name, typ string) error
	Publish                func(exchange, routingKey string, msg amqp091.Publishing) error
	Get                    func(queue string, autoAck bool) (amqp091.Delivery, bool, error)
	Cancel                 func(consumerName string) error
	Ack                    func(tag uint64) error
	Nack                   func(tag uint64, requeue bool) error
	IsClosed               func() bool
	QueueDeclare           func(name string, durable, autoDelete, exclusive bool, args amqp091.Table) (amqp091.Queue, error)
	QueueDeclarePassive    func(name string) (amqp091.Queue, error)
	Consume                func(queue, consumerName string, autoAck bool) (<-chan amqp091.Delivery, error)
	NotifyClose            func(ch chan *amqp091.Error) chan *amqp091.Error
}

// newDefaultAMQPChannelHandlers generates a default set of handlers.
func newDefaultAMQPChannelHandlers() mockAMQPChannelHandlers {
	return mockAMQPChannelHandlers{
		Close:                  func() error { return nil },
		Qos:                    func(_, _ int, _ bool) error { return nil },
		QueueBind:              func(_, _, _ string) error { return nil },
		QueuePurge:             func(_ string) (int, error) { return 0, nil },
		ExchangeDeclare:        func(_, _ string, _, _ bool) error { return nil },
		ExchangeDeclarePassive: func(_, _ string) error { return nil },
		Publish:                func(_, _ string, _ amqp091.Publishing) error { return nil },
		Get:                    func(_ string, _ bool) (amqp091.Delivery, bool, error) { return amqp091.Delivery{}, false, nil },
		Cancel:                 func(_ string) error { return nil },
		Ack:                    func(_ uint64) error { return nil },
		Nack:                   func(_ uint64, _ bool) error { return nil },
		IsClosed:               func() bool { return false },
		QueueDeclare: func(name string, _, _, _ bool, _ amqp091.Table) (amqp091.Queue, error) {
			return amqp091.Queue{Name: name}, nil
		},
		QueueDeclarePassive: func(name string) (amqp091.Queue, error) {
			return amqp091.Queue{Name: name}, nil
		},
		Consume: func(_, _ string, _ bool) (<-chan amqp091.Delivery, error) {
			ch := make(chan amqp091.Delivery)
			close(ch)
			return ch, nil
		},
		// don't close or send a message as this is seen as a close from the broker.
		NotifyClose: func(ch chan *amqp091.Error) chan *amqp091.Error { return ch },
	}
}

type mockAMQPChannel struct {
	h mockAMQPChannelHandlers
}

func (m *mockAMQPChannel) Close() error {
	return m.h.Close()
}
func (m *mockAMQPChannel) IsClosed() bool {
	return m.h.IsClosed()
}
func (m *mockAMQPChannel) Qos(count, size int, global bool) error {
	return m.h.Qos(count, size, global)
}
func (m *mockAMQPChannel) QueueDeclare(name string, durable, autoDelete, exclusive, _ bool, args amqp091.Table) (amqp091.Queue, error) {
	return m.h.QueueDeclare(name, durable, autoDelete, exclusive, args)
}
func (m *mockAMQPChannel) QueueDeclarePassive(name string, _, _, _, _ bool, _ amqp091.Table) (amqp091.Queue, error) {
	return m.h.QueueDeclarePassive(name)
}
func (m *mockAMQPChannel) QueueBind(queue, routingKey, exchange string, _ bool, _ amqp091.Table) error {
	return m.h.QueueBind(queue, routingKey, exchange)
}
func (m *mockAMQPChannel) QueuePurge(name string, _ bool) (int, error) {
	return m.h.QueuePurge(name)
}
func (m *mockAMQPChannel) ExchangeDeclare(name, typ string, durable, autoDelete, _, _ bool, _ amqp091.Table) error {
	return m.h.ExchangeDeclare(name, typ, durable, autoDelete)
}
func (m *mockAMQPChannel) ExchangeDeclarePassive(name, typ string, _, _, _, _ bool, _ amqp091.Table) error {
	return m.h.ExchangeDeclarePassive(name, typ)
}
func (m *mockAMQPChannel) PublishWithContext(_ context.Context, exchange, routingKey string, _, _ bool, msg amqp091.Publishing) error {
	return m.h.Publish(exchange, routingKey, msg)
}
func (m *mockAMQPChannel) Get(queue string, autoAck bool) (amqp091.Delivery, bool, error) {
	return m.h.Get(queue, autoAck)
}
func (m *mockAMQPChannel) Consume(queue, consumerName string, autoAck, _, _, _ bool, _ amqp091.Table) (<-chan amqp091.Delivery, error) {
	return m.h.Consume(queue, consumerName, autoAck)
}
func (m *mockAMQPChannel) Cancel(consumerName string, _ bool) error {
	return m.h.Cancel(consumerName)
}
func (m *mockAMQPChannel) Ack(tag uint64, _ bool) error {
	return m.h.Ack(tag)
}
func (m *mockAMQPChannel) Nack(tag uint64, _, requeue bool) error {
	return m.h.Nack(tag, requeue)
}
func (m *mockAMQPChannel) NotifyClose(rcv chan *amqp091.Error) chan *amqp091.Error {
	return m.h.NotifyClose(rcv)
}

type mockAMQPConnectionHandlers struct {
	Close       errorFunc
	IsClosed    func() bool
	Channel     func() (amqp091Channel, error)
	NotifyClose func(ch chan *amqp091.Error) chan *amqp091.Error
}

// newDefaultAMQPConnectionHandlers generates a default set of handlers.
func newDefaultAMQPConnectionHandlers() mockAMQPConnectionHandlers {
	return mockAMQPConnectionHandlers{
		Close:    func() error { return nil },
		IsClosed: func() bool { return false },
		Channel: func() (amqp091Channel, error) {
			return &mockAMQPChannel{h: newDefaultAMQPChannelHandlers()}, nil
		},
		NotifyClose: func(ch chan *amqp091.Error) chan *amqp091.Error { return ch },
	}
}

type mockAMQPConnection struct {
	h mockAMQPConnectionHandlers
}

func (m *mockAMQPConnection) Close() error {
	return m.h.Close()
}
func (m *mockAMQPConnection) IsClosed() bool {
	return m.h.IsClosed()
}
func (m *mockAMQPConnection) Channel() (amqp091Channel, error) {
	return m.h.Channel()
}
func (m *mockAMQPConnection) NotifyClose(rcv chan *amqp091.Error) chan *amqp091.Error {
	return m.h.NotifyClose(rcv)
}

// setupDial swaps the package dialer for the duration of a test.
func setupDial(dialer func(addr string, c amqp091.Config) (amqp091Connection, error)) func() {
	original := dialConfig
	dialConfig = dialer
	return func() {
		dialConfig = original
	}
}
