package sigqueue

import (
	"time"
)

// fakeReactor is a deterministic Reactor for tests: nothing runs until the
// test drains it, time is virtual, and uncaught failures are recorded
// rather than logged. The test goroutine is the dispatch thread.
type fakeReactor struct {
	now      time.Time
	tasks    []func()
	timers   []*fakeTimer
	uncaught []error
	closed   bool
}

type fakeTimer struct {
	when    time.Time
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() { t.stopped = true }

func newFakeReactor() *fakeReactor {
	return &fakeReactor{now: time.Unix(1700000000, 0)}
}

func (r *fakeReactor) ScheduleNow(fn func()) error {
	if r.closed {
		return ErrLoopTerminated
	}
	r.tasks = append(r.tasks, fn)
	return nil
}

func (r *fakeReactor) ScheduleAfter(delay time.Duration, fn func()) (TimerHandle, error) {
	if r.closed {
		return nil, ErrLoopTerminated
	}
	t := &fakeTimer{when: r.now.Add(delay), fn: fn}
	r.timers = append(r.timers, t)
	return t, nil
}

func (r *fakeReactor) ReportUncaught(err error) {
	r.uncaught = append(r.uncaught, err)
}

// run drains the immediate task queue, including tasks queued by tasks.
func (r *fakeReactor) run() {
	for len(r.tasks) > 0 {
		fn := r.tasks[0]
		r.tasks = r.tasks[1:]
		fn()
	}
}

// advance moves the virtual clock forward by d, firing due timers in
// deadline order interleaved with any tasks they schedule.
func (r *fakeReactor) advance(d time.Duration) {
	target := r.now.Add(d)
	for {
		r.run()
		idx := -1
		for i, t := range r.timers {
			if t.stopped || t.when.After(target) {
				continue
			}
			if idx < 0 || t.when.Before(r.timers[idx].when) {
				idx = i
			}
		}
		if idx < 0 {
			break
		}
		t := r.timers[idx]
		r.timers = append(r.timers[:idx], r.timers[idx+1:]...)
		if t.when.After(r.now) {
			r.now = t.when
		}
		t.fn()
	}
	r.now = target
	r.run()
}

// liveTimers counts timers that are pending and not stopped.
func (r *fakeReactor) liveTimers() int {
	var n int
	for _, t := range r.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}
