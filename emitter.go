package sigqueue

// ListenerID uniquely identifies a registered listener. In Go, functions
// cannot be reliably compared for equality, so listeners are tracked by a
// generated ID instead.
type ListenerID uint64

// Emitter is an in-process event source: a listener registry whose Emit
// method invokes every subscribed callback with the emitted value. It fills
// the role toolkit signals play in callback-driven frameworks, and is the
// usual concrete [Source] behind [Queue] and [Latch] in pure-Go programs.
//
// The zero value is ready to use.
//
// Emitter is not safe for concurrent use. Like everything in this package it
// belongs to the reactor's dispatch thread; emissions originating on other
// goroutines must be marshalled via [Reactor.ScheduleNow] first (see
// [Command] for an example of that pattern).
type Emitter[T any] struct {
	listeners map[ListenerID]func(T)
	nextID    ListenerID
}

// Subscribe implements [Source]. Registration is complete when Subscribe
// returns; the returned subscription's Cancel is idempotent.
func (e *Emitter[T]) Subscribe(fn func(T)) (Subscription, error) {
	if fn == nil {
		panic("sigqueue: nil listener")
	}
	if e.listeners == nil {
		e.listeners = make(map[ListenerID]func(T))
	}
	e.nextID++
	id := e.nextID
	e.listeners[id] = fn
	return NewSubscription(func() {
		delete(e.listeners, id)
	}), nil
}

// Emit invokes every currently subscribed listener with v, in unspecified
// order. Listeners subscribed or cancelled during dispatch do not affect the
// current emission.
func (e *Emitter[T]) Emit(v T) {
	if len(e.listeners) == 0 {
		return
	}
	fns := make([]func(T), 0, len(e.listeners))
	for _, fn := range e.listeners {
		fns = append(fns, fn)
	}
	for _, fn := range fns {
		fn(v)
	}
}

// ListenerCount returns the number of live subscriptions.
func (e *Emitter[T]) ListenerCount() int {
	return len(e.listeners)
}
