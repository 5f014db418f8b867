package sigqueue

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"
)

// Standard errors.
var (
	// ErrLoopAlreadyRunning is returned when Run is called on a loop that is
	// already running.
	ErrLoopAlreadyRunning = errors.New("sigqueue: loop is already running")

	// ErrLoopTerminated is returned when operations are attempted on a
	// terminated loop.
	ErrLoopTerminated = errors.New("sigqueue: loop has been terminated")
)

// Loop states.
const (
	loopStateIdle int32 = iota
	loopStateRunning
	loopStateTerminating
	loopStateTerminated
)

// Loop is the bundled [Reactor]: a single-goroutine task dispatcher with a
// timer heap and a channel wake-up, sufficient to host this package's
// primitives in programs that have no event loop of their own.
//
// ScheduleNow is safe to call from any goroutine; everything scheduled runs
// on the goroutine that called [Loop.Run], one task at a time, in
// submission order. Timer callbacks run no earlier than their deadline,
// interleaved with ordinary tasks.
type Loop struct {
	// Prevent copying
	_ [0]func()

	log        *logiface.Logger[logiface.Event]
	onUncaught func(error)

	// Ingress. Two buffers ping-pong under the mutex to avoid allocating
	// per drain.
	mu    sync.Mutex
	queue []func()
	buf   []func()

	// wake holds at most one pending token; a stale token costs one
	// no-op loop iteration.
	wake chan struct{}

	// timers is owned by the loop goroutine. ScheduleAfter gets timers into
	// it by submitting the heap push as a task.
	timers timerHeap

	state    atomic.Int32
	loopDone chan struct{}
}

// New creates a loop. It does not start running until [Loop.Run].
func New(opts ...LoopOption) (*Loop, error) {
	cfg, err := resolveLoopOptions(opts)
	if err != nil {
		return nil, err
	}
	return &Loop{
		log:        cfg.logger,
		onUncaught: cfg.uncaughtHandler,
		wake:       make(chan struct{}, 1),
		loopDone:   make(chan struct{}),
	}, nil
}

// Run runs the loop on the calling goroutine and blocks until it
// terminates, via [Loop.Shutdown] or ctx cancellation. The calling
// goroutine becomes the dispatch thread.
func (l *Loop) Run(ctx context.Context) error {
	if !l.state.CompareAndSwap(loopStateIdle, loopStateRunning) {
		if l.state.Load() == loopStateTerminated {
			return ErrLoopTerminated
		}
		return ErrLoopAlreadyRunning
	}
	defer func() {
		l.state.Store(loopStateTerminated)
		close(l.loopDone)
	}()

	l.log.Trace().Log(`loop started`)
	defer l.log.Trace().Log(`loop stopped`)

	for {
		l.runTasks()
		l.runTimers()

		if err := ctx.Err(); err != nil {
			l.state.Store(loopStateTerminating)
			l.runTasks()
			return err
		}
		if l.state.Load() == loopStateTerminating {
			// Drain what was queued before (or during) the shutdown
			// request; nothing new is rejected until Terminated.
			l.runTasks()
			return nil
		}

		var timerC <-chan time.Time
		var tm *time.Timer
		if len(l.timers) > 0 {
			d := time.Until(l.timers[0].when)
			if d < 0 {
				d = 0
			}
			tm = time.NewTimer(d)
			timerC = tm.C
		}
		select {
		case <-ctx.Done():
		case <-l.wake:
		case <-timerC:
		}
		if tm != nil {
			tm.Stop()
		}
	}
}

// Shutdown gracefully terminates the loop: tasks already queued still run,
// new submissions are rejected once termination completes. It blocks until
// the loop has stopped or ctx expires. Shutting down a terminated loop
// returns [ErrLoopTerminated].
func (l *Loop) Shutdown(ctx context.Context) error {
	for {
		switch s := l.state.Load(); s {
		case loopStateIdle:
			if l.state.CompareAndSwap(loopStateIdle, loopStateTerminated) {
				close(l.loopDone)
				return nil
			}
		case loopStateRunning:
			if !l.state.CompareAndSwap(loopStateRunning, loopStateTerminating) {
				continue
			}
			fallthrough
		case loopStateTerminating:
			select {
			case l.wake <- struct{}{}:
			default:
			}
			select {
			case <-l.loopDone:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		case loopStateTerminated:
			return ErrLoopTerminated
		}
	}
}

// Done returns a channel closed once the loop has fully terminated.
func (l *Loop) Done() <-chan struct{} { return l.loopDone }

// ScheduleNow implements [Reactor]. Safe to call from any goroutine.
func (l *Loop) ScheduleNow(fn func()) error {
	if fn == nil {
		panic("sigqueue: nil task")
	}
	if l.state.Load() == loopStateTerminated {
		return ErrLoopTerminated
	}
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

// ScheduleAfter implements [Reactor]. The deadline is computed eagerly; the
// heap insertion rides the task queue so the heap stays single-threaded.
func (l *Loop) ScheduleAfter(delay time.Duration, fn func()) (TimerHandle, error) {
	if fn == nil {
		panic("sigqueue: nil task")
	}
	t := &loopTimer{when: time.Now().Add(delay), fn: fn}
	if err := l.ScheduleNow(func() {
		heap.Push(&l.timers, t)
	}); err != nil {
		return nil, err
	}
	return t, nil
}

// ReportUncaught implements [Reactor]: the error is logged at error level
// and forwarded to the [WithUncaughtHandler] callback, if configured.
func (l *Loop) ReportUncaught(err error) {
	if err == nil {
		return
	}
	l.log.Err().
		Err(err).
		Log(`uncaught coroutine failure`)
	if l.onUncaught != nil {
		l.onUncaught(err)
	}
}

// runTasks drains the ingress queue, including tasks queued by tasks.
func (l *Loop) runTasks() {
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		tasks := l.queue
		l.queue = l.buf[:0]
		l.buf = tasks
		l.mu.Unlock()

		for i, fn := range tasks {
			l.safeExecute(fn)
			tasks[i] = nil
		}
	}
}

// runTimers executes all expired timers.
func (l *Loop) runTimers() {
	now := time.Now()
	for len(l.timers) > 0 && !l.timers[0].when.After(now) {
		t := heap.Pop(&l.timers).(*loopTimer)
		if t.stopped.Load() {
			continue
		}
		l.safeExecute(t.fn)
	}
}

// safeExecute executes a task with panic recovery.
func (l *Loop) safeExecute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.ReportUncaught(PanicError{Value: r})
		}
	}()
	fn()
}

// loopTimer is a scheduled task and its cancellation flag. Stop is safe
// from any goroutine; a stopped timer is discarded when it surfaces at the
// top of the heap.
type loopTimer struct {
	when    time.Time
	fn      func()
	stopped atomic.Bool
}

// Stop implements [TimerHandle].
func (t *loopTimer) Stop() { t.stopped.Store(true) }

// timerHeap is a min-heap of timers.
type timerHeap []*loopTimer

// Implement heap.Interface for timerHeap.
func (h timerHeap) Len() int           { return len(h) }
func (h timerHeap) Less(i, j int) bool { return h[i].when.Before(h[j].when) }
func (h timerHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *timerHeap) Push(x any) {
	*h = append(*h, x.(*loopTimer))
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return x
}
