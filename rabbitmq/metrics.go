package rabbitmq

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jacklaaa89/jobqueue"
)

const (
	// Namespace is the prefix for every metric exported by this package.
	Namespace = "jobqueue"

	// Status label values.
	StatusSuccess     = "success"
	StatusError       = "error"
	StatusEmpty       = "empty"
	StatusUnsupported = "unsupported"
)

// Metrics records the outcome of queue operations.
// a nil *Metrics is valid and records nothing.
type Metrics struct {
	operations *prometheus.CounterVec   // by queue, operation, status
	waits      *prometheus.HistogramVec // by queue, operation
}

// NewMetrics creates a new Metrics instance and registers it with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "operations_total",
			Help:      "Total number of queue operations by outcome.",
		}, []string{"queue", "operation", "status"}),
		waits: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "wait_duration_seconds",
			Help:      "Time spent waiting for a message in take and reserve.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"queue", "operation"}),
	}

	for _, c := range []prometheus.Collector{m.operations, m.waits} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// observe records the outcome of a single operation.
func (m *Metrics) observe(queue, op string, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(queue, op, statusOf(err)).Inc()
}

// observeWait records the outcome of a wait operation and how long it took.
func (m *Metrics) observeWait(queue, op string, found bool, err error, took time.Duration) {
	if m == nil {
		return
	}

	status := statusOf(err)
	if err == nil && !found {
		status = StatusEmpty
	}

	m.operations.WithLabelValues(queue, op, status).Inc()
	m.waits.WithLabelValues(queue, op).Observe(took.Seconds())
}

func statusOf(err error) string {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, jobqueue.ErrUnsupported):
		return StatusUnsupported
	default:
		return StatusError
	}
}
