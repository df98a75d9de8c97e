package rabbitmq

import (
	"context"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// closer represents any stream which can be closed
// this is either a channel or the overall connection.
type closer interface {
	io.Closer

	IsClosed() bool // IsClosed determines if a channel or connection is closed.
}

// isClosed helper function to check whether a connection or channel is closed.
func isClosed(ch closer) bool {
	return ch == nil || ch.IsClosed()
}

// logError helper function to log an error.
func logError(log *zap.Logger, msg string, err error) {
	if err == nil || log == nil {
		return
	}

	log.Warn(msg, zap.Error(err))
}

// newPollBackoff the function to generate the backoff policy used while polling
// a variable in order to reduce the backoff in tests.
var newPollBackoff = defaultPollBackoff

// defaultPollBackoff generates the backoff used between polls of an empty queue.
// a negative wait makes a single attempt, a zero wait polls until ctx is done.
func defaultPollBackoff(ctx context.Context, wait time.Duration) backoff.BackOff {
	if wait < 0 {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 25 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = 0

	if wait == 0 {
		return backoff.WithContext(b, ctx)
	}

	return backoff.WithContext(&deadlineBackOff{BackOff: b, deadline: time.Now().Add(wait)}, ctx)
}

// deadlineBackOff clamps the wrapped backoff so the final attempt happens at the deadline
// and no attempt is made after it.
type deadlineBackOff struct {
	backoff.BackOff
	deadline time.Time
}

// NextBackOff returns the time to wait before the next attempt or backoff.Stop.
func (b *deadlineBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}

	remaining := time.Until(b.deadline)
	if remaining <= 0 {
		return backoff.Stop
	}
	if next > remaining {
		return remaining
	}
	return next
}
