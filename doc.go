// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package sigqueue bridges callback-driven event sources to coroutine-style
// code: it buffers values pushed by an event reactor's callbacks, and lets a
// suspended coroutine pull them one at a time, without blocking the reactor
// and without losing or reordering values that arrive before they are asked
// for.
//
// # Architecture
//
// The reactor is an injected capability, not something this package owns. Any
// single-threaded dispatcher that can run a callback now ([Reactor.ScheduleNow]),
// run a callback later ([Reactor.ScheduleAfter]), and accept failures that
// have no caller ([Reactor.ReportUncaught]) will do. A bundled [Loop]
// implementation is provided for programs that do not already have one.
//
// Event sources are modelled as [Source], a subscribe/unsubscribe pair
// delivering one typed value per emission. [Emitter] is an in-process
// implementation; [SourceFunc] adapts foreign callback registries.
//
// Between sources and coroutines sit the two wait primitives:
//
//   - [Latch] captures a single emission and then releases its subscription
//     (one-shot waits: timers, process completion).
//   - [Queue] buffers emissions indefinitely, in FIFO order, until cancelled
//     (streams, repeated waits).
//
// Both hold at most one waiting coroutine. An emission that arrives while a
// coroutine waits resumes it directly; an emission with no waiter is
// buffered; a wait against a non-empty buffer resolves without a reactor
// round-trip.
//
// # Coroutines
//
// [Start] runs a coroutine body immediately, on the caller's goroutine
// timeline, up to its first suspension; [Connect] starts a fresh body for
// every emission of a source. A body receives a [Coroutine] handle, which is
// its resumption token: helpers such as [Latch.Await], [Queue.Await],
// [Sleep], [SleepLoop], [WithTimeout], [RunProcess], [StreamBytes] and
// [StreamText] suspend through it and resume when the reactor delivers.
//
// Execution is strictly interleaved. While a coroutine runs, the reactor
// callback that resumed it is blocked; while the coroutine is suspended, the
// reactor runs. There is exactly one logical dispatch thread, and no locking
// is required (or provided) around queue state.
//
// # Failures
//
// Waits fail with sentinel or structured errors: [ErrConcurrentAwait] and
// [ErrQueueReleased] for contract violations (always synchronous, at the
// call site), [ErrCanceled] when a queue is cancelled under a suspended
// waiter, [SourceError] when the source reports failure instead of emitting,
// and [TimeoutError] when a [WithTimeout] race is lost. An error or panic
// that escapes a coroutine body entirely has no caller to observe it, and is
// routed to [Reactor.ReportUncaught] — never dropped.
//
// # Usage
//
//	loop, _ := sigqueue.New()
//	go loop.Run(context.Background())
//
//	clicks := new(sigqueue.Emitter[string])
//
//	_ = loop.ScheduleNow(func() {
//		_, _ = sigqueue.Connect[string](loop, clicks, func(co *sigqueue.Coroutine, id string) error {
//			if err := sigqueue.Sleep(co, time.Second); err != nil {
//				return err
//			}
//			fmt.Println("clicked:", id)
//			return nil
//		})
//	})
package sigqueue
