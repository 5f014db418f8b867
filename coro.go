package sigqueue

// A Coroutine is the resumption handle of one coroutine run: a body started
// by [Start] or [Connect] that may suspend at await points and resume when
// the reactor delivers a value.
//
// The handle is valid only inside the body it was created for. It must not
// be shared with other goroutines or stored past the body's return; resuming
// a completed run is a programming error that the package's single-waiter
// discipline makes unreachable through the public API.
//
// Suspension is implemented as a strict control handoff between the body's
// goroutine and the reactor's dispatch thread. Exactly one of the two runs
// at any moment: resuming a coroutine blocks the reactor callback that
// delivered the value until the coroutine suspends again or returns, so the
// whole system behaves as a single logical thread.
type Coroutine struct {
	reactor Reactor
	resume  chan resumption
	yield   chan struct{}
}

// resumption carries one delivered value (or failure) into a suspended
// coroutine.
type resumption struct {
	value any
	err   error
}

// Reactor returns the reactor this coroutine run is attached to.
func (co *Coroutine) Reactor() Reactor {
	return co.reactor
}

// suspend hands control back to the resuming side and blocks until the next
// delivery. Only called from the coroutine's own goroutine.
func (co *Coroutine) suspend() (any, error) {
	co.yield <- struct{}{}
	r := <-co.resume
	return r.value, r.err
}

// step delivers r into the suspended coroutine and blocks until it suspends
// again or its body returns. Only called from the dispatch thread.
func (co *Coroutine) step(r resumption) {
	co.resume <- r
	<-co.yield
}

// Start begins executing body immediately, running it up to its first
// suspension point before returning. Call it from reactor-dispatched code
// (a callback, a timer, another coroutine); the body observes the same
// single-threaded interleaving as the caller.
//
// There is no caller around to receive the body's result, so a non-nil
// error return — and any panic that escapes the body — is handed to
// r.ReportUncaught rather than dropped.
func Start(r Reactor, body func(co *Coroutine) error) {
	if r == nil {
		panic("sigqueue: nil reactor")
	}
	if body == nil {
		panic("sigqueue: nil coroutine body")
	}
	co := &Coroutine{
		reactor: r,
		resume:  make(chan resumption),
		yield:   make(chan struct{}),
	}
	go func() {
		// Closing yield releases whichever delivery is blocked in step once
		// the body can no longer suspend.
		defer close(co.yield)
		defer func() {
			if v := recover(); v != nil {
				r.ReportUncaught(PanicError{Value: v})
			}
		}()
		<-co.resume
		if err := body(co); err != nil {
			r.ReportUncaught(err)
		}
	}()
	co.step(resumption{})
}

// Connect subscribes to src such that every emission starts a fresh
// coroutine run of body, with the emitted value as its argument, using the
// same launch semantics as [Start].
//
// Overlapping runs from rapid emissions are independent and unordered with
// respect to each other; nothing is serialized on the callers' behalf. The
// returned subscription stops new runs from starting but does not interrupt
// runs already suspended.
func Connect[T any](r Reactor, src Source[T], body func(co *Coroutine, value T) error) (Subscription, error) {
	if body == nil {
		panic("sigqueue: nil coroutine body")
	}
	return src.Subscribe(func(v T) {
		Start(r, func(co *Coroutine) error {
			return body(co, v)
		})
	})
}
