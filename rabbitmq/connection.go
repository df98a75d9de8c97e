package rabbitmq

import (
	"context"
	"sync"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// connection represents an amqp091 connection which is exclusively owned by a single queue.
// it is never re-dialed; a broker initiated close is logged and every later operation fails.
type connection struct {
	mu  sync.RWMutex // variable guard.
	log *zap.Logger

	ctx    context.Context    // bound to the lifetime of the connection.
	cancel context.CancelFunc // stops the close watcher.
	closed bool               // whether Close has been called.

	closeOnce sync.Once
	closeErr  error

	Connection amqp091Connection // the connection.
}

// dial attempts to connect to the broker described by cfg.
func dial(ctx context.Context, cfg Config, connectionName string, log *zap.Logger) (*connection, error) {
	conn, err := dialConfig(cfg.addr(), cfg.amqpConfig(ctx, connectionName))
	if err != nil {
		return nil, err
	}

	return wrapConnection(conn, log), nil
}

// wrapConnection helper function to wrap an amqp091 connection and start watching it for closes.
func wrapConnection(conn amqp091Connection, log *zap.Logger) *connection {
	if log == nil {
		log = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &connection{
		log:        log,
		ctx:        ctx,
		cancel:     cancel,
		Connection: conn,
	}

	watchClose(ctx, conn, func(e *amqp091.Error) {
		c.log.Error("connection closed by broker",
			zap.Int("code", e.Code),
			zap.String("reason", e.Reason),
			zap.Bool("server", e.Server),
		)
	})

	return c
}

// Channel initialises a new channel from the connection.
func (c *connection) Channel() (*channel, error) {
	if c.IsClosed() {
		return nil, amqp091.ErrClosed
	}

	c.mu.RLock()
	ch, err := c.Connection.Channel()
	c.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	return wrapChannel(ch, c.log), nil
}

// Close closes the underlying connection. only the first call reaches the broker,
// later calls return the result of the first one.
func (c *connection) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		// a connection the broker already tore down has nothing left to release.
		alreadyClosed := isClosed(c.Connection)

		c.closed = true
		if c.cancel != nil {
			c.cancel()
		}

		if !alreadyClosed {
			c.closeErr = c.Connection.Close()
		}
	})

	return c.closeErr
}

// IsClosed wraps the original IsClosed function.
func (c *connection) IsClosed() bool {
	if c == nil {
		return true
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return true
	}

	return isClosed(c.Connection)
}
