package loop

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
)

// Timer is a one-shot or repeating callback scheduled onto a Loop.
type Timer struct {
	l         *Loop
	cancelled atomic.Bool
	once      sync.Once
	timeout   *eventloop.Timer
	interval  *eventloop.Interval
}

// callback guards f: clearing is queued on the loop, so a due timer can
// still fire once after Stop.
func (t *Timer) callback(f func()) func(*goja.Runtime) {
	return func(*goja.Runtime) {
		if t.cancelled.Load() || t.l.Stopped() {
			return
		}
		t.l.runTask(f)
	}
}

// AfterFunc runs f on the loop once d has elapsed, unless the timer is
// stopped first.
func (l *Loop) AfterFunc(d time.Duration, f func()) *Timer {
	if d < 0 {
		d = 0
	}
	t := &Timer{l: l}
	t.timeout = l.el.SetTimeout(t.callback(f), d)
	return t
}

// Every runs f on the loop every d until the timer is stopped.
func (l *Loop) Every(d time.Duration, f func()) *Timer {
	if d <= 0 {
		d = time.Millisecond
	}
	t := &Timer{l: l}
	t.interval = l.el.SetInterval(t.callback(f), d)
	return t
}

func (t *Timer) Stop() {
	t.once.Do(func() {
		t.cancelled.Store(true)
		if t.timeout != nil {
			t.l.el.ClearTimeout(t.timeout)
		}
		if t.interval != nil {
			t.l.el.ClearInterval(t.interval)
		}
	})
}
