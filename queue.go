package sigqueue

import (
	"errors"
	"iter"
)

// gate is the buffering/resumption state machine shared by [Queue] and
// [Latch]. At any moment it is in one of three states: empty, buffered
// (pending emissions, no waiter), or waiting (a registered waiter, no
// pending emissions). An emission arriving in the waiting state resumes the
// waiter directly and never touches the buffer, so a waiter and a pending
// emission cannot coexist.
//
// All methods run on the dispatch thread.
type gate[T any] struct {
	reactor Reactor

	// latch restricts the buffer to one emission and releases the
	// subscription upon first delivery.
	latch bool

	buf      []T
	waiter   func(v T, err error)
	failure  error
	released bool

	// cleanup holds the release actions owned by this gate: subscription
	// cancels and timer stops.
	cleanup []func()
}

// bind registers a release action, running it immediately if the gate has
// already been released.
func (g *gate[T]) bind(f func()) {
	if g.released {
		f()
		return
	}
	g.cleanup = append(g.cleanup, f)
}

// release runs and clears the release actions. Idempotent.
func (g *gate[T]) release() {
	if g.released {
		return
	}
	g.released = true
	cleanup := g.cleanup
	g.cleanup = nil
	for _, f := range cleanup {
		f()
	}
}

// push delivers one emission: resume the waiter if present, buffer
// otherwise.
func (g *gate[T]) push(v T) {
	if w := g.waiter; w != nil {
		g.waiter = nil
		if g.latch {
			g.release()
		}
		w(v, nil)
		return
	}
	if g.latch && (g.released || len(g.buf) != 0) {
		// No waiter will ever consume this value.
		g.reactor.ReportUncaught(ErrLateEmission)
		return
	}
	if g.released {
		// Emission raced an unsubscribe; the sequence is over.
		return
	}
	g.buf = append(g.buf, v)
}

// fail delivers a source failure in place of an emission.
func (g *gate[T]) fail(err error) {
	if w := g.waiter; w != nil {
		g.waiter = nil
		var zero T
		g.release()
		w(zero, &SourceError{Err: err})
		return
	}
	if g.released {
		return
	}
	g.failure = err
}

// poll resolves the wait without suspending, if possible. ok is false only
// when the gate is live and empty, i.e. the caller must suspend.
func (g *gate[T]) poll() (T, error, bool) {
	var zero T
	if g.waiter != nil {
		return zero, ErrConcurrentAwait, true
	}
	if len(g.buf) != 0 {
		v := g.buf[0]
		g.buf[0] = zero
		g.buf = g.buf[1:]
		if g.latch {
			g.release()
		}
		return v, nil, true
	}
	if err := g.failure; err != nil {
		g.failure = nil
		g.release()
		return zero, &SourceError{Err: err}, true
	}
	if g.released {
		return zero, ErrQueueReleased, true
	}
	return zero, nil, false
}

// enqueue installs the single waiter. Callers must have observed an
// unresolved poll on the same dispatch turn.
func (g *gate[T]) enqueue(fn func(v T, err error)) {
	if g.waiter != nil {
		panic("sigqueue: internal error: waiter slot occupied")
	}
	g.waiter = fn
}

// await is the common suspend path behind [Latch.Await] and [Queue.Await].
func (g *gate[T]) await(co *Coroutine) (T, error) {
	if co == nil {
		panic("sigqueue: nil coroutine")
	}
	var zero T
	if v, err, ok := g.poll(); ok {
		return v, err
	}
	g.enqueue(func(v T, err error) {
		co.step(resumption{value: v, err: err})
	})
	v, err := co.suspend()
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}

// cancel releases the gate and, if a coroutine is suspended on it, resumes
// it with [ErrCanceled] on the current dispatch turn.
func (g *gate[T]) cancel() {
	w := g.waiter
	g.waiter = nil
	g.release()
	if w != nil {
		var zero T
		w(zero, ErrCanceled)
	}
}

// Waitable is a wait that [WithTimeout] can race against a timer: the
// package's own wait primitives, [Latch] and [Queue]. The interface is
// sealed; racing requires direct access to the single-waiter slot.
type Waitable[T any] interface {
	// Await suspends the calling coroutine until one emission is available,
	// returning immediately if one is already buffered.
	Await(co *Coroutine) (T, error)

	// Cancel releases the underlying subscription, resuming any suspended
	// waiter with [ErrCanceled].
	Cancel()

	poll() (T, error, bool)
	enqueue(fn func(v T, err error))
}

// A Latch is a one-shot signal queue: it captures a single emission and
// releases its subscription upon delivering it. Use it for waits that
// resolve exactly once — timer expiry, process completion.
//
// A second emission into a latch that was already satisfied or released has
// no possible consumer and is reported via [Reactor.ReportUncaught] as
// [ErrLateEmission].
type Latch[T any] struct {
	g gate[T]
}

// NewLatch constructs a latch fed by explicit [Latch.Push] calls, for
// plumbing that is not itself a [Source] (deferred reactor callbacks, most
// notably).
func NewLatch[T any](r Reactor) *Latch[T] {
	if r == nil {
		panic("sigqueue: nil reactor")
	}
	return &Latch[T]{g: gate[T]{reactor: r, latch: true}}
}

// ListenLatch constructs a latch subscribed to src. The subscription is
// released when the first emission is delivered to an awaiter, or on
// [Latch.Cancel], whichever comes first.
func ListenLatch[T any](r Reactor, src Source[T]) (*Latch[T], error) {
	l := NewLatch[T](r)
	sub, err := src.Subscribe(l.Push)
	if err != nil {
		return nil, err
	}
	l.g.bind(sub.Cancel)
	return l, nil
}

// Push delivers one emission into the latch.
func (l *Latch[T]) Push(v T) { l.g.push(v) }

// Fail records a source failure; the current or next awaiter receives it as
// a [SourceError].
func (l *Latch[T]) Fail(err error) { l.g.fail(err) }

// Await suspends the calling coroutine until the latch's emission arrives,
// then returns it and releases the subscription. If the emission is already
// buffered, Await returns it without suspending — no reactor round-trip.
//
// Contract violations surface synchronously: [ErrConcurrentAwait] if
// another coroutine is already waiting, [ErrQueueReleased] if the latch was
// already consumed or cancelled.
func (l *Latch[T]) Await(co *Coroutine) (T, error) { return l.g.await(co) }

// Cancel releases the subscription. If a coroutine is suspended on the
// latch it is resumed with [ErrCanceled] on the current dispatch turn,
// never left suspended. Idempotent.
func (l *Latch[T]) Cancel() { l.g.cancel() }

func (l *Latch[T]) poll() (T, error, bool)          { return l.g.poll() }
func (l *Latch[T]) enqueue(fn func(v T, err error)) { l.g.enqueue(fn) }

// A Queue is a multi-shot signal queue: emissions buffer in FIFO order
// without bound, and each [Queue.Await] (or [Queue.All] step) consumes
// exactly one. The subscription stays live until [Queue.Cancel]; a
// cancelled queue is finished for good, and resuming listening requires
// constructing a new one.
type Queue[T any] struct {
	g gate[T]
}

// NewQueue constructs a queue fed by explicit [Queue.Push] calls.
func NewQueue[T any](r Reactor) *Queue[T] {
	if r == nil {
		panic("sigqueue: nil reactor")
	}
	return &Queue[T]{g: gate[T]{reactor: r}}
}

// Listen constructs a queue subscribed to every source in sources. All
// registrations complete before Listen returns. If any subscription fails,
// those already made are cancelled and the error is returned.
func Listen[T any](r Reactor, sources ...Source[T]) (*Queue[T], error) {
	q := NewQueue[T](r)
	for _, src := range sources {
		sub, err := src.Subscribe(q.Push)
		if err != nil {
			q.Cancel()
			return nil, err
		}
		q.g.bind(sub.Cancel)
	}
	return q, nil
}

// Push delivers one emission into the queue.
func (q *Queue[T]) Push(v T) { q.g.push(v) }

// Fail records a source failure; the current or next awaiter receives it as
// a [SourceError], after any emissions buffered ahead of it.
func (q *Queue[T]) Fail(err error) { q.g.fail(err) }

// Await suspends the calling coroutine until one emission is available and
// returns it. Buffered emissions resolve without suspending, in the order
// the reactor delivered them. Unlike [Latch.Await], the subscription is not
// released; Await may be called again.
func (q *Queue[T]) Await(co *Coroutine) (T, error) { return q.g.await(co) }

// All returns the queue's emissions as a single-pass sequence. Each step
// behaves like [Queue.Await]. The sequence ends when the queue is cancelled
// (silently) or a failure is delivered (yielded once, as the final
// element). Breaking out of the range leaves the queue live.
func (q *Queue[T]) All(co *Coroutine) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for {
			v, err := q.Await(co)
			if err != nil {
				if !errors.Is(err, ErrCanceled) {
					var zero T
					yield(zero, err)
				}
				return
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}

// Len returns the number of buffered emissions.
func (q *Queue[T]) Len() int { return len(q.g.buf) }

// Cancel releases the subscription and ends the queue. If a coroutine is
// suspended on the queue it is resumed with [ErrCanceled] on the current
// dispatch turn, never left suspended. Idempotent.
func (q *Queue[T]) Cancel() { q.g.cancel() }

func (q *Queue[T]) poll() (T, error, bool)          { return q.g.poll() }
func (q *Queue[T]) enqueue(fn func(v T, err error)) { q.g.enqueue(fn) }
