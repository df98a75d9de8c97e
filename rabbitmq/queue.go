package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/jacklaaa89/jobqueue"
)

// backendName is reported in unsupported operation errors.
const backendName = "rabbitmq"

// errEmpty signals an empty poll to the backoff loop.
var errEmpty = errors.New("rabbitmq: queue empty")

// compile time check that Queue satisfies the generic contract.
var _ jobqueue.Queue = (*Queue)(nil)

// Queue implements jobqueue.Queue using RabbitMQ as the queue backend.
//
// A Queue owns one connection and one channel which are opened by New and released by
// Shutdown. Calls are not expected to be made concurrently, use a Queue per worker.
type Queue struct {
	name    string
	cfg     Config
	log     *zap.Logger
	metrics *Metrics
	newID   func() string // newID generates correlation ids and consumer tags.

	conn *connection
	ch   *channel

	shutdownOnce sync.Once
	shutdownErr  error
}

// Option configures optional collaborators of a Queue.
type Option func(q *Queue)

// WithLogger sets the logger, the default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.log = l
		}
	}
}

// WithMetrics records operation outcomes on m.
func WithMetrics(m *Metrics) Option {
	return func(q *Queue) { q.metrics = m }
}

// New connects to the broker, opens a channel and declares the queue name using cfg.
// when an exchange is configured it is declared and the queue is bound to it.
//
// declaring an existing queue with matching properties is a no-op, a mismatch is returned
// as an error. nothing is retried, every opened resource is released on failure.
func New(ctx context.Context, name string, cfg Config, opts ...Option) (*Queue, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: queue name is required", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	q := &Queue{
		name:  name,
		cfg:   cfg.withDefaults(),
		log:   zap.NewNop(),
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.log = q.log.With(zap.String("queue", name))

	if q.cfg.Client.Insist {
		q.log.Debug("insist is not supported by AMQP 0-9-1 and is ignored")
	}

	conn, err := dial(ctx, q.cfg, "jobqueue-"+name, q.log)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", q.cfg.addr(), err)
	}

	ch, err := conn.Channel()
	if err != nil {
		logError(q.log, "could not close connection", conn.Close())
		return nil, fmt.Errorf("open channel: %w", err)
	}

	q.conn, q.ch = conn, ch

	if err := q.declare(ctx); err != nil {
		logError(q.log, "could not shutdown after failed declare", q.Shutdown())
		return nil, err
	}

	q.log.Debug("queue ready", zap.String("addr", q.cfg.addr()), zap.String("vhost", q.cfg.Client.Vhost))
	return q, nil
}

// declare sets the channel QoS and declares the exchange, queue and binding.
func (q *Queue) declare(ctx context.Context) error {
	if err := q.ch.QoS(ctx, prefetchCount, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	ex := q.cfg.Exchange
	if ex != nil {
		if err := q.ch.DeclareExchange(ctx, *ex); err != nil {
			return fmt.Errorf("declare exchange %q: %w", ex.Name, err)
		}
	}

	_, err := q.ch.DeclareQueue(ctx, q.name, q.cfg.Passive, q.cfg.Durable, q.cfg.AutoDelete, q.cfg.Exclusive, q.cfg.Arguments)
	if err != nil {
		return fmt.Errorf("declare queue %q: %w", q.name, err)
	}

	if ex != nil {
		if err := q.ch.BindQueue(ctx, q.name, ex.Name, q.name); err != nil {
			return fmt.Errorf("bind queue %q to exchange %q: %w", q.name, ex.Name, err)
		}
	}

	return nil
}

// Name returns the name of the queue.
func (q *Queue) Name() string { return q.name }

// Submit publishes payload as JSON and returns the correlation id attached to the message.
// the broker does not confirm the publish.
func (q *Queue) Submit(ctx context.Context, payload interface{}, opts ...jobqueue.SubmitOption) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		q.metrics.observe(q.name, "submit", err)
		return "", fmt.Errorf("encode payload: %w", err)
	}

	o := jobqueue.ResolveSubmitOptions(opts...)
	id := q.newID()

	msg := amqp091.Publishing{
		CorrelationId: id,
		MessageId:     id,
		Timestamp:     time.Now().UTC(),
		Priority:      o.Priority,
		Body:          body,
	}
	if len(o.Headers) > 0 {
		msg.Headers = amqp091.Table(o.Headers)
	}
	if o.TTL > 0 {
		msg.Expiration = strconv.FormatInt(o.TTL.Milliseconds(), 10)
	}
	if q.cfg.Durable {
		msg.DeliveryMode = amqp091.Persistent
	}

	err = q.ch.Publish(ctx, q.cfg.exchangeName(), q.name, msg)
	q.metrics.observe(q.name, "submit", err)
	if err != nil {
		return "", err
	}

	return id, nil
}

// WaitAndTake polls the queue until a message arrives or timeout elapses. the message
// is acknowledged by the broker as it is handed over, so it is never redelivered.
//
// see resolveWait for how timeout is interpreted. nil, nil is returned when no message arrived.
func (q *Queue) WaitAndTake(ctx context.Context, timeout time.Duration) (*jobqueue.Message, error) {
	start := time.Now()

	var d amqp091.Delivery
	err := backoff.Retry(func() error {
		var (
			ok   bool
			gErr error
		)
		d, ok, gErr = q.ch.Get(ctx, q.name, true)
		if gErr != nil {
			return backoff.Permanent(gErr)
		}
		if !ok {
			return errEmpty
		}
		return nil
	}, newPollBackoff(ctx, q.resolveWait(timeout)))

	if errors.Is(err, errEmpty) {
		q.metrics.observeWait(q.name, "take", false, nil, time.Since(start))
		return nil, nil
	}
	if err != nil {
		q.metrics.observeWait(q.name, "take", false, err, time.Since(start))
		return nil, err
	}

	m, err := (&message{d}).decode()
	q.metrics.observeWait(q.name, "take", err == nil, err, time.Since(start))
	return m, err
}

// WaitAndReserve waits for the next message without acknowledging it. the caller has to
// Finish or Abort the returned message using its ID.
//
// a short lived consumer is registered for a single delivery and cancelled again on every
// path out of the wait. see resolveWait for how timeout is interpreted.
// nil, nil is returned when no message arrived.
func (q *Queue) WaitAndReserve(ctx context.Context, timeout time.Duration) (*jobqueue.Message, error) {
	start := time.Now()

	d, err := q.reserve(ctx, q.resolveWait(timeout))
	if err != nil || d == nil {
		q.metrics.observeWait(q.name, "reserve", false, err, time.Since(start))
		return nil, err
	}

	m, err := (&message{*d}).decode()
	if err != nil {
		// a body we cannot decode will never succeed, hand it to the broker's dead-letter policy.
		logError(q.log, "could not reject malformed message", q.ch.Nack(ctx, d.DeliveryTag, false))
	}

	q.metrics.observeWait(q.name, "reserve", err == nil, err, time.Since(start))
	return m, err
}

// reserve returns the next unacknowledged delivery or nil when wait elapsed.
func (q *Queue) reserve(ctx context.Context, wait time.Duration) (*amqp091.Delivery, error) {
	if wait < 0 {
		d, ok, err := q.ch.Get(ctx, q.name, false)
		if err != nil || !ok {
			return nil, err
		}
		return &d, nil
	}

	return q.ch.ConsumeOne(ctx, q.name, q.consumerName(), wait)
}

// consumerName generates a unique consumer tag for a single reservation.
func (q *Queue) consumerName() string {
	return q.name + ".reserve." + q.newID()
}

// resolveWait converts the timeout supplied to a wait operation into the wait to apply:
//   - positive: wait at most timeout.
//   - jobqueue.DefaultWait: wait Config.DefaultTimeout, or until ctx is done if that is zero.
//   - negative (jobqueue.NoWait): a single attempt without waiting.
func (q *Queue) resolveWait(timeout time.Duration) time.Duration {
	switch {
	case timeout > 0:
		return timeout
	case timeout < 0:
		return jobqueue.NoWait
	default:
		return q.cfg.DefaultTimeout
	}
}

// Release is not supported, use Abort to return a message to the queue.
func (q *Queue) Release(_ context.Context, _ string, _ ...jobqueue.ReleaseOption) error {
	err := &jobqueue.UnsupportedError{Backend: backendName, Op: "release"}
	q.metrics.observe(q.name, "release", err)
	return err
}

// Abort rejects a reserved message, the broker requeues it.
func (q *Queue) Abort(ctx context.Context, messageID string) error {
	tag, err := parseMessageID(messageID)
	if err == nil {
		err = q.ch.Nack(ctx, tag, true)
	}

	q.metrics.observe(q.name, "abort", err)
	return err
}

// Finish acknowledges a reserved message, removing it from the queue for good.
func (q *Queue) Finish(ctx context.Context, messageID string) error {
	tag, err := parseMessageID(messageID)
	if err == nil {
		err = q.ch.Ack(ctx, tag)
	}

	q.metrics.observe(q.name, "finish", err)
	return err
}

// Peek is not supported for any limit, there is no way to read a message
// without reserving it.
func (q *Queue) Peek(_ context.Context, _ int) ([]*jobqueue.Message, error) {
	err := &jobqueue.UnsupportedError{Backend: backendName, Op: "peek"}
	q.metrics.observe(q.name, "peek", err)
	return nil, err
}

// Count returns the amount of ready messages reported by a passive declare.
func (q *Queue) Count(ctx context.Context) (int, error) {
	s, err := q.ch.DeclareQueue(ctx, q.name, true, q.cfg.Durable, q.cfg.AutoDelete, q.cfg.Exclusive, q.cfg.Arguments)
	q.metrics.observe(q.name, "count", err)
	if err != nil {
		return 0, err
	}
	return s.Messages, nil
}

// SetUp does nothing, the queue is declared by New.
func (q *Queue) SetUp(_ context.Context) error { return nil }

// Flush purges every ready message from the queue.
func (q *Queue) Flush(ctx context.Context) error {
	n, err := q.ch.Purge(ctx, q.name)
	q.metrics.observe(q.name, "flush", err)
	if err == nil {
		q.log.Debug("queue flushed", zap.Int("purged", n))
	}
	return err
}

// Shutdown closes the channel and then the connection. it is safe to call more than
// once, later calls return the result of the first one.
func (q *Queue) Shutdown() error {
	q.shutdownOnce.Do(func() {
		var errs []error
		if q.ch != nil {
			if err := q.ch.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close channel: %w", err))
			}
		}
		if q.conn != nil {
			if err := q.conn.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close connection: %w", err))
			}
		}
		q.shutdownErr = errors.Join(errs...)
	})

	return q.shutdownErr
}
