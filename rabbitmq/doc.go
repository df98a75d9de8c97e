// Package rabbitmq implements jobqueue.Queue on top of a RabbitMQ broker using the
// amqp091 client.
//
// Each Queue owns one connection and one channel with a prefetch of 1. Payloads are
// encoded as JSON and published through the configured exchange (or the default exchange)
// using the queue name as the routing key.
//
// Reserved messages are identified by their delivery tag, which is only meaningful on the
// channel that received it. For that reason a Queue never reconnects: when the broker closes
// the connection or channel it is logged and every later call fails with amqp091.ErrClosed,
// the caller is expected to Shutdown and construct a new Queue. Anything reserved but not
// finished at that point is redelivered by the broker.
//
// Release and Peek are not supported and return an error matching jobqueue.ErrUnsupported.
package rabbitmq
