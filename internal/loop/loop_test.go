package loop

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/carlmjohnson/be"
)

func startLoop(t *testing.T) *Loop {
	t.Helper()
	l := New(nil)
	l.Start(context.Background())
	t.Cleanup(func() {
		l.Stop()
		l.Wait(time.Second)
	})
	return l
}

func TestDispatchOrder(t *testing.T) {
	l := startLoop(t)

	var got []int
	for i := 0; i < 50; i++ {
		i := i
		l.Dispatch(func() { got = append(got, i) })
	}
	err := l.Do(context.Background(), func() error { return nil })
	be.NilErr(t, err)

	be.Equal(t, 50, len(got))
	for i, v := range got {
		be.Equal(t, i, v)
	}
}

func TestDoReturnsError(t *testing.T) {
	l := startLoop(t)
	boom := errors.New("boom")
	err := l.Do(context.Background(), func() error { return boom })
	be.True(t, errors.Is(err, boom))
}

func TestPanicIsRecovered(t *testing.T) {
	l := startLoop(t)
	err := l.Do(context.Background(), func() error { panic("bad") })
	be.True(t, err != nil)

	// still alive
	be.NilErr(t, l.Do(context.Background(), func() error { return nil }))
}

func TestDispatchAfterStop(t *testing.T) {
	l := New(nil)
	l.Start(context.Background())
	l.Stop()
	be.True(t, l.Wait(time.Second))
	be.False(t, l.Dispatch(func() {}))
	be.True(t, errors.Is(l.Do(context.Background(), func() error { return nil }), ErrStopped))
}

func TestStopWithoutStart(t *testing.T) {
	l := New(nil)
	l.Stop()
	be.True(t, l.Wait(10*time.Millisecond))
}

func TestContextCancelStopsLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l := New(nil)
	l.Start(ctx)
	cancel()
	be.True(t, l.Wait(time.Second))
	be.True(t, l.Stopped())
}

func TestAfterFunc(t *testing.T) {
	l := startLoop(t)
	fired := make(chan struct{})
	l.AfterFunc(5*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestAfterFuncStopped(t *testing.T) {
	l := startLoop(t)
	var fired atomic.Bool
	tm := l.AfterFunc(20*time.Millisecond, func() { fired.Store(true) })
	tm.Stop()
	time.Sleep(50 * time.Millisecond)
	be.False(t, fired.Load())
}

func TestEvery(t *testing.T) {
	l := startLoop(t)
	var count atomic.Int32
	tm := l.Every(2*time.Millisecond, func() { count.Add(1) })
	time.Sleep(30 * time.Millisecond)
	tm.Stop()
	tm.Stop()
	be.True(t, count.Load() >= 2)
}

func TestRuntimeIsSharedByTasks(t *testing.T) {
	l := startLoop(t)

	var first, second any
	be.NilErr(t, l.Do(context.Background(), func() error {
		rt := l.Runtime()
		be.True(t, rt != nil)
		be.NilErr(t, rt.Set("marker", 42))
		first = rt
		return nil
	}))
	be.NilErr(t, l.Do(context.Background(), func() error {
		second = l.Runtime()
		be.Equal(t, int64(42), l.Runtime().Get("marker").ToInteger())
		return nil
	}))
	be.True(t, first == second)
}

func TestStopDiscardsPendingTimers(t *testing.T) {
	l := New(nil)
	l.Start(context.Background())

	var fired atomic.Bool
	l.AfterFunc(30*time.Millisecond, func() { fired.Store(true) })
	l.Stop()
	be.True(t, l.Wait(time.Second))

	time.Sleep(60 * time.Millisecond)
	be.False(t, fired.Load())
}
