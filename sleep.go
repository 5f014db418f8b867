package sigqueue

import (
	"iter"
	"time"
)

// Sleep suspends the calling coroutine for at least d, implemented as a
// one-shot latch fed by a deferred reactor callback. The wait can only fail
// through the reactor (scheduling rejected, or the reactor cancelling the
// wait); elapsed time alone never produces an error.
func Sleep(co *Coroutine, d time.Duration) error {
	l := NewLatch[time.Time](co.Reactor())
	th, err := co.Reactor().ScheduleAfter(d, func() {
		l.Push(time.Now())
	})
	if err != nil {
		return err
	}
	l.g.bind(th.Stop)
	_, err = l.Await(co)
	return err
}

// SleepLoop returns a sequence of count ticks spaced at least interval
// apart, sleeping before each one. Each tick is timed from the previous
// tick's resumption, not from a fixed schedule, so processing time in the
// loop body stretches the period rather than bunching ticks together.
//
// A negative count ticks forever (until the consumer breaks). A failed
// sleep yields its index with the error and ends the sequence.
func SleepLoop(co *Coroutine, interval time.Duration, count int) iter.Seq2[int, error] {
	return func(yield func(int, error) bool) {
		for i := 0; count < 0 || i < count; i++ {
			if err := Sleep(co, interval); err != nil {
				yield(i, err)
				return
			}
			if !yield(i, nil) {
				return
			}
		}
	}
}

// WithTimeout awaits w, bounding the wait by d. Whichever resolves first
// wins, and the loser is cancelled on the spot: a timer win cancels w (a
// [Queue] is ended for good, per [Queue.Cancel]), an emission win stops the
// timer. Exactly one of the two outcomes is observed.
//
// A timer win returns a [*TimeoutError]. An emission already buffered in w
// resolves immediately; the timer is never started.
func WithTimeout[T any](co *Coroutine, d time.Duration, w Waitable[T]) (T, error) {
	if co == nil {
		panic("sigqueue: nil coroutine")
	}
	if w == nil {
		panic("sigqueue: nil waitable")
	}
	var zero T
	if v, err, ok := w.poll(); ok {
		return v, err
	}

	// The wait and the timer race for settled. The loser's callback still
	// fires in some interleavings (cancelling w resumes its waiter with
	// ErrCanceled), so both sides check it before resuming the coroutine.
	var settled bool
	var th TimerHandle
	w.enqueue(func(v T, err error) {
		if settled {
			return
		}
		settled = true
		if th != nil {
			th.Stop()
		}
		co.step(resumption{value: v, err: err})
	})
	th, terr := co.Reactor().ScheduleAfter(d, func() {
		if settled {
			return
		}
		settled = true
		w.Cancel()
		co.step(resumption{err: &TimeoutError{After: d}})
	})
	if terr != nil {
		// Roll back before suspending: the waiter must not outlive this
		// call. settled suppresses the ErrCanceled resume from Cancel.
		settled = true
		w.Cancel()
		return zero, terr
	}

	v, err := co.suspend()
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}
