package sigqueue

import (
	"errors"
	"fmt"
	"time"
)

// Standard errors.
var (
	// ErrConcurrentAwait is returned when a coroutine awaits a queue that
	// already has a waiting coroutine. The right to read the next emission
	// belongs to one coroutine at a time; a second await is a contract
	// violation, reported synchronously rather than silently serialized.
	ErrConcurrentAwait = errors.New("sigqueue: queue already has a waiting coroutine")

	// ErrQueueReleased is returned when awaiting a queue whose subscription
	// has already been released (a consumed latch, or a cancelled queue).
	ErrQueueReleased = errors.New("sigqueue: queue has been released")

	// ErrCanceled resumes a coroutine whose wait was ended by Cancel. It is
	// distinct from an emission and from every failure condition, so the
	// coroutine can exit its await cleanly.
	ErrCanceled = errors.New("sigqueue: wait canceled")

	// ErrLateEmission is routed to [Reactor.ReportUncaught] when an
	// emission reaches a latch that was already satisfied or released.
	// There is no awaiting caller to surface it to.
	ErrLateEmission = errors.New("sigqueue: emission delivered to a released or already-satisfied latch")
)

// TimeoutError is the failure produced when the timer side of a
// [WithTimeout] race wins. It records the configured duration.
type TimeoutError struct {
	After time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("sigqueue: timeout expired (%s)", e.After)
}

// Timeout reports true, for compatibility with net-style timeout checks.
func (e *TimeoutError) Timeout() bool { return true }

// SourceError wraps a failure reported by an event source in place of a
// normal emission. It is delivered as a failed resume at the await point.
type SourceError struct {
	Err error
}

// Error implements the error interface.
func (e *SourceError) Error() string {
	return fmt.Sprintf("sigqueue: event source failed: %v", e.Err)
}

// Unwrap returns the source's failure for use with [errors.Is] and
// [errors.As].
func (e *SourceError) Unwrap() error { return e.Err }

// PanicError wraps a panic value recovered from a coroutine body. It is
// routed to [Reactor.ReportUncaught], as a panicking coroutine has no
// caller.
type PanicError struct {
	Value any
}

// Error implements the error interface.
func (e PanicError) Error() string {
	return fmt.Sprintf("sigqueue: coroutine panicked: %v", e.Value)
}

// Unwrap returns the underlying error if the panic value is an error type,
// enabling [errors.Is] and [errors.As] through the cause chain. If the
// value is not an error (e.g. a string), Unwrap returns nil.
func (e PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
