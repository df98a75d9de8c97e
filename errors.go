package jobqueue

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupported is matched by every UnsupportedError using errors.Is.
	ErrUnsupported = errors.New("jobqueue: operation not supported by backend")
	// ErrInvalidMessageID is returned when a message id was not produced by the backend.
	ErrInvalidMessageID = errors.New("jobqueue: invalid message id")
)

// UnsupportedError is returned when a backend cannot perform an operation at all.
// it is a limitation of the backend, retrying will never succeed.
type UnsupportedError struct {
	Backend string // Backend the name of the backend, i.e. rabbitmq
	Op      string // Op the operation which was attempted.
}

// Error implements the error interface.
func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("jobqueue: %s not implemented by %s backend", e.Op, e.Backend)
}

// Is allows errors.Is(err, ErrUnsupported).
func (e *UnsupportedError) Is(target error) bool {
	return target == ErrUnsupported
}

// IsUnsupported reports whether err signals a backend limitation.
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupported)
}
