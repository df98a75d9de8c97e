package jobqueue

import "time"

// SubmitOptions the resolved options for a single submit.
type SubmitOptions struct {
	Priority uint8                  // Priority 0 when unset; only honoured by priority queues.
	TTL      time.Duration          // TTL the per-message expiration, 0 means none.
	Headers  map[string]interface{} // Headers additional headers to attach to the message.
}

// SubmitOption applies a setting to a submit.
type SubmitOption func(o *SubmitOptions)

// WithPriority sets the message priority.
func WithPriority(p uint8) SubmitOption {
	return func(o *SubmitOptions) { o.Priority = p }
}

// WithTTL sets how long the message may wait on the queue before it expires.
func WithTTL(ttl time.Duration) SubmitOption {
	return func(o *SubmitOptions) { o.TTL = ttl }
}

// WithHeaders merges the supplied headers into the message headers.
func WithHeaders(h map[string]interface{}) SubmitOption {
	return func(o *SubmitOptions) {
		if o.Headers == nil {
			o.Headers = make(map[string]interface{}, len(h))
		}
		for k, v := range h {
			o.Headers[k] = v
		}
	}
}

// ResolveSubmitOptions applies opts in order.
func ResolveSubmitOptions(opts ...SubmitOption) SubmitOptions {
	var o SubmitOptions
	for _, fn := range opts {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

// ReleaseOptions the resolved options for a release.
type ReleaseOptions struct {
	Delay time.Duration // Delay before the message becomes available again.
}

// ReleaseOption applies a setting to a release.
type ReleaseOption func(o *ReleaseOptions)

// WithDelay sets the delay before a released message becomes available.
func WithDelay(d time.Duration) ReleaseOption {
	return func(o *ReleaseOptions) { o.Delay = d }
}
