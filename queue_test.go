package sigqueue

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_bufferedValuesResolveWithoutSuspending(t *testing.T) {
	r := newFakeReactor()
	q := NewQueue[int](r)
	q.Push(1)
	q.Push(2)
	require.Equal(t, 2, q.Len())

	var got []int
	var done bool
	Start(r, func(co *Coroutine) error {
		for range 2 {
			v, err := q.Await(co)
			if err != nil {
				return err
			}
			got = append(got, v)
		}
		done = true
		return nil
	})

	// Both awaits resolved from the buffer; the body ran to completion
	// inside Start, with no reactor turn in between.
	require.True(t, done)
	assert.Equal(t, []int{1, 2}, got)
	assert.Zero(t, q.Len())
	assert.Empty(t, r.uncaught)
}

func TestQueue_fifoAcrossBufferAndWaits(t *testing.T) {
	r := newFakeReactor()
	q := NewQueue[int](r)
	q.Push(1)

	var got []int
	Start(r, func(co *Coroutine) error {
		for v, err := range q.All(co) {
			if err != nil {
				return err
			}
			got = append(got, v)
		}
		return nil
	})

	require.Equal(t, []int{1}, got)
	q.Push(2)
	q.Push(3)
	require.Equal(t, []int{1, 2, 3}, got)

	q.Cancel()
	assert.Empty(t, r.uncaught)
}

func TestQueue_secondAwaiterRejected(t *testing.T) {
	r := newFakeReactor()
	q := NewQueue[int](r)

	var first int
	var firstErr error
	Start(r, func(co *Coroutine) error {
		first, firstErr = q.Await(co)
		return nil
	})

	var secondErr error
	Start(r, func(co *Coroutine) error {
		_, secondErr = q.Await(co)
		return nil
	})
	require.ErrorIs(t, secondErr, ErrConcurrentAwait)

	// The first wait is unaffected by the rejected second one.
	q.Push(7)
	require.NoError(t, firstErr)
	assert.Equal(t, 7, first)
}

func TestQueue_cancelResumesWaiterSameTurn(t *testing.T) {
	r := newFakeReactor()
	q := NewQueue[int](r)

	var resumed bool
	var err error
	Start(r, func(co *Coroutine) error {
		_, err = q.Await(co)
		resumed = true
		return nil
	})
	require.False(t, resumed)

	q.Cancel()
	require.True(t, resumed, "waiter must resume before Cancel returns")
	require.ErrorIs(t, err, ErrCanceled)

	var afterErr error
	Start(r, func(co *Coroutine) error {
		_, afterErr = q.Await(co)
		return nil
	})
	require.ErrorIs(t, afterErr, ErrQueueReleased)
}

func TestQueue_failureDeliveredAfterBufferedValues(t *testing.T) {
	errBoom := errors.New("boom")
	r := newFakeReactor()
	q := NewQueue[int](r)
	q.Push(1)
	q.Fail(errBoom)

	var got int
	var errs []error
	Start(r, func(co *Coroutine) error {
		var err error
		got, err = q.Await(co)
		errs = append(errs, err)
		_, err = q.Await(co)
		errs = append(errs, err)
		_, err = q.Await(co)
		errs = append(errs, err)
		return nil
	})

	require.Len(t, errs, 3)
	require.NoError(t, errs[0])
	assert.Equal(t, 1, got)

	var se *SourceError
	require.ErrorAs(t, errs[1], &se)
	assert.ErrorIs(t, errs[1], errBoom)

	require.ErrorIs(t, errs[2], ErrQueueReleased)
}

func TestQueue_failResumesWaiter(t *testing.T) {
	errBoom := errors.New("boom")
	r := newFakeReactor()
	q := NewQueue[int](r)

	var err error
	Start(r, func(co *Coroutine) error {
		_, err = q.Await(co)
		return nil
	})

	q.Fail(errBoom)
	var se *SourceError
	require.ErrorAs(t, err, &se)
	assert.ErrorIs(t, err, errBoom)
}

func TestQueue_allYieldsFailureAsFinalElement(t *testing.T) {
	errBoom := errors.New("boom")
	r := newFakeReactor()
	q := NewQueue[int](r)

	var got []int
	var errs []error
	Start(r, func(co *Coroutine) error {
		for v, err := range q.All(co) {
			if err != nil {
				errs = append(errs, err)
				continue
			}
			got = append(got, v)
		}
		return nil
	})

	q.Push(1)
	q.Fail(errBoom)
	assert.Equal(t, []int{1}, got)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], errBoom)
}

func TestListen_deliversFromAllSources(t *testing.T) {
	r := newFakeReactor()
	var a, b Emitter[string]
	q, err := Listen[string](r, &a, &b)
	require.NoError(t, err)

	a.Emit("a1")
	b.Emit("b1")
	a.Emit("a2")

	var got []string
	Start(r, func(co *Coroutine) error {
		for range 3 {
			v, err := q.Await(co)
			if err != nil {
				return err
			}
			got = append(got, v)
		}
		return nil
	})

	assert.Equal(t, []string{"a1", "b1", "a2"}, got)

	q.Cancel()
	assert.Zero(t, a.ListenerCount())
	assert.Zero(t, b.ListenerCount())
}

func TestListen_subscribeFailureUnwindsEarlierSubscriptions(t *testing.T) {
	errNo := errors.New("no")
	r := newFakeReactor()
	var a Emitter[int]
	broken := SourceFunc[int](func(func(int)) (Subscription, error) {
		return nil, errNo
	})

	q, err := Listen[int](r, &a, broken)
	require.ErrorIs(t, err, errNo)
	assert.Nil(t, q)
	assert.Zero(t, a.ListenerCount())
}

func TestLatch_capturesEmissionBeforeAwait(t *testing.T) {
	r := newFakeReactor()
	var em Emitter[string]
	l, err := ListenLatch[string](r, &em)
	require.NoError(t, err)

	em.Emit("ready")

	var got string
	Start(r, func(co *Coroutine) error {
		var err error
		got, err = l.Await(co)
		return err
	})

	assert.Equal(t, "ready", got)
	assert.Zero(t, em.ListenerCount(), "latch releases its subscription on delivery")
	assert.Empty(t, r.uncaught)
}

func TestLatch_lateEmissionReported(t *testing.T) {
	r := newFakeReactor()
	l := NewLatch[int](r)
	l.Push(1)
	l.Push(2)
	require.Len(t, r.uncaught, 1)
	assert.ErrorIs(t, r.uncaught[0], ErrLateEmission)

	Start(r, func(co *Coroutine) error {
		_, err := l.Await(co)
		return err
	})

	// Satisfied and released; further emissions have no possible consumer.
	l.Push(3)
	require.Len(t, r.uncaught, 2)
	assert.ErrorIs(t, r.uncaught[1], ErrLateEmission)
}

func TestLatch_cancelReleasesSubscriptionAndWaiter(t *testing.T) {
	r := newFakeReactor()
	var em Emitter[int]
	l, err := ListenLatch[int](r, &em)
	require.NoError(t, err)

	var waitErr error
	Start(r, func(co *Coroutine) error {
		_, waitErr = l.Await(co)
		return nil
	})

	l.Cancel()
	require.ErrorIs(t, waitErr, ErrCanceled)
	assert.Zero(t, em.ListenerCount())
}

func TestQueue_pushAfterCancelDroppedSilently(t *testing.T) {
	r := newFakeReactor()
	q := NewQueue[int](r)
	q.Cancel()
	q.Push(1)
	assert.Zero(t, q.Len())
	assert.Empty(t, r.uncaught)
}

func TestNewQueue_nilReactorPanics(t *testing.T) {
	require.Panics(t, func() { NewQueue[int](nil) })
	require.Panics(t, func() { NewLatch[int](nil) })
}
