package sigqueue

import (
	"time"
)

// Reactor is the scheduling capability consumed by every primitive in this
// package. It abstracts a single-threaded event dispatcher: all callbacks
// passed to ScheduleNow and ScheduleAfter must run on one logical dispatch
// thread, one at a time.
//
// The bundled [Loop] satisfies Reactor. Programs embedding another event
// loop (a UI toolkit, a game tick, a test harness) implement Reactor over
// it instead; the package never assumes anything beyond these three
// operations.
type Reactor interface {
	// ScheduleNow queues fn to run on the next dispatch turn. It is safe to
	// call from any goroutine. It returns an error only if the reactor can
	// no longer run callbacks (e.g. it has terminated), in which case fn
	// will never run.
	ScheduleNow(fn func()) error

	// ScheduleAfter queues fn to run on a dispatch turn no earlier than
	// delay from now. The returned handle cancels the callback; stopping a
	// handle whose callback already ran (or stopping twice) is a no-op.
	ScheduleAfter(delay time.Duration, fn func()) (TimerHandle, error)

	// ReportUncaught receives failures that have no caller left to observe
	// them, such as an error escaping the top level of a coroutine started
	// with [Start]. Implementations must not discard err silently.
	ReportUncaught(err error)
}

// TimerHandle cancels a deferred callback scheduled via
// [Reactor.ScheduleAfter].
type TimerHandle interface {
	// Stop cancels the callback if it has not run yet. Idempotent.
	Stop()
}

// Source is an event source emitting one value of type T per callback
// invocation. Emissions with more than one positional value are represented
// by T being a struct; the subscribed callback receives the complete tuple
// for each emission.
//
// Subscribe must complete registration before it returns: an emission
// occurring after Subscribe returns is delivered, never lost to an
// in-progress registration.
type Source[T any] interface {
	Subscribe(fn func(T)) (Subscription, error)
}

// Subscription is a live callback registration with a [Source].
type Subscription interface {
	// Cancel unregisters the callback. Idempotent.
	Cancel()
}

// SourceFunc adapts a bare subscribe function to the [Source] interface,
// shimming foreign callback registries into this package.
type SourceFunc[T any] func(fn func(T)) (Subscription, error)

// Subscribe implements [Source].
func (f SourceFunc[T]) Subscribe(fn func(T)) (Subscription, error) { return f(fn) }

// NewSubscription wraps cancel into an idempotent [Subscription]. The cancel
// function is invoked at most once, on the first call to Cancel.
func NewSubscription(cancel func()) Subscription {
	return &subscription{cancel: cancel}
}

type subscription struct {
	cancel func()
}

func (s *subscription) Cancel() {
	if f := s.cancel; f != nil {
		s.cancel = nil
		f()
	}
}
