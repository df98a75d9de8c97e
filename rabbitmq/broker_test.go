package rabbitmq

import (
	"context"
	"sync"
	"testing"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeBroker is an in-memory single queue implementation of amqp091Channel.
// consumers get at most one unacknowledged delivery at a time, matching a prefetch of 1.
type fakeBroker struct {
	mu sync.Mutex

	nextTag   uint64
	ready     []amqp091.Delivery
	unacked   map[uint64]string // delivery tag -> consumer name, empty for basic.get.
	inflight  map[string]int
	consumers map[string]chan amqp091.Delivery
	deliv     map[uint64]amqp091.Delivery
	published []amqp091.Publishing
	closed    bool
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		unacked:   make(map[uint64]string),
		inflight:  make(map[string]int),
		consumers: make(map[string]chan amqp091.Delivery),
		deliv:     make(map[uint64]amqp091.Delivery),
	}
}

// unackedCount returns how many deliveries are awaiting an ack or nack.
func (b *fakeBroker) unackedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.unacked)
}

// consumerCount returns how many consumers are registered.
func (b *fakeBroker) consumerCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.consumers)
}

// lastPublished returns the last publishing received.
func (b *fakeBroker) lastPublished() amqp091.Publishing {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.published[len(b.published)-1]
}

func (b *fakeBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *fakeBroker) IsClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *fakeBroker) NotifyClose(rcv chan *amqp091.Error) chan *amqp091.Error { return rcv }
func (b *fakeBroker) Qos(_, _ int, _ bool) error                            { return nil }
func (b *fakeBroker) QueueBind(_, _, _ string, _ bool, _ amqp091.Table) error {
	return nil
}
func (b *fakeBroker) ExchangeDeclare(_, _ string, _, _, _, _ bool, _ amqp091.Table) error {
	return nil
}
func (b *fakeBroker) ExchangeDeclarePassive(_, _ string, _, _, _, _ bool, _ amqp091.Table) error {
	return nil
}

func (b *fakeBroker) QueueDeclare(name string, _, _, _, _ bool, _ amqp091.Table) (amqp091.Queue, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return amqp091.Queue{Name: name, Messages: len(b.ready), Consumers: len(b.consumers)}, nil
}

func (b *fakeBroker) QueueDeclarePassive(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error) {
	return b.QueueDeclare(name, durable, autoDelete, exclusive, noWait, args)
}

func (b *fakeBroker) QueuePurge(_ string, _ bool) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.ready)
	b.ready = nil
	return n, nil
}

func (b *fakeBroker) PublishWithContext(_ context.Context, _, _ string, _, _ bool, msg amqp091.Publishing) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, msg)
	b.ready = append(b.ready, amqp091.Delivery{
		ContentType:   msg.ContentType,
		Headers:       msg.Headers,
		CorrelationId: msg.CorrelationId,
		MessageId:     msg.MessageId,
		Body:          msg.Body,
	})
	b.dispatch()
	return nil
}

func (b *fakeBroker) Get(_ string, autoAck bool) (amqp091.Delivery, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.ready) == 0 {
		return amqp091.Delivery{}, false, nil
	}

	d := b.pop()
	if !autoAck {
		b.unacked[d.DeliveryTag] = ""
	}
	return d, true, nil
}

func (b *fakeBroker) Consume(_, consumerName string, _, _, _, _ bool, _ amqp091.Table) (<-chan amqp091.Delivery, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan amqp091.Delivery, 1)
	b.consumers[consumerName] = ch
	b.dispatch()
	return ch, nil
}

func (b *fakeBroker) Cancel(consumerName string, _ bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.consumers[consumerName]; ok {
		delete(b.consumers, consumerName)
		close(ch)
	}
	return nil
}

func (b *fakeBroker) Ack(tag uint64, _ bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	consumer, ok := b.unacked[tag]
	if !ok {
		return &amqp091.Error{Code: amqp091.PreconditionFailed, Reason: "PRECONDITION_FAILED - unknown delivery tag"}
	}
	delete(b.unacked, tag)
	delete(b.deliv, tag)
	b.inflight[consumer]--
	b.dispatch()
	return nil
}

func (b *fakeBroker) Nack(tag uint64, _, requeue bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	consumer, ok := b.unacked[tag]
	if !ok {
		return &amqp091.Error{Code: amqp091.PreconditionFailed, Reason: "PRECONDITION_FAILED - unknown delivery tag"}
	}
	d := b.deliv[tag]
	delete(b.unacked, tag)
	delete(b.deliv, tag)
	b.inflight[consumer]--

	if requeue {
		d.Redelivered = true
		b.ready = append([]amqp091.Delivery{d}, b.ready...)
	}
	b.dispatch()
	return nil
}

// pop removes the first ready message and assigns it a new delivery tag. must hold mu.
func (b *fakeBroker) pop() amqp091.Delivery {
	d := b.ready[0]
	b.ready = b.ready[1:]
	b.nextTag++
	d.DeliveryTag = b.nextTag
	b.deliv[d.DeliveryTag] = d
	return d
}

// dispatch hands ready messages to idle consumers. must hold mu.
func (b *fakeBroker) dispatch() {
	for name, ch := range b.consumers {
		if len(b.ready) == 0 {
			return
		}
		if b.inflight[name] > 0 {
			continue
		}
		d := b.pop()
		b.unacked[d.DeliveryTag] = name
		b.inflight[name]++
		ch <- d
	}
}

// newTestQueue constructs a Queue through New where the dialled connection hands out ch.
func newTestQueue(t *testing.T, ch amqp091Channel, cfg Config, opts ...Option) *Queue {
	t.Helper()

	h := newDefaultAMQPConnectionHandlers()
	h.Channel = func() (amqp091Channel, error) { return ch, nil }

	restore := setupDial(func(_ string, _ amqp091.Config) (amqp091Connection, error) {
		return &mockAMQPConnection{h: h}, nil
	})
	defer restore()

	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	q, err := New(context.Background(), "jobs", cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Shutdown() })
	return q
}
