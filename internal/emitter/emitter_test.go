package emitter

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/carlmjohnson/be"
)

func TestOnAndEmitOrder(t *testing.T) {
	e := New("test", nil, nil)

	var got []string
	e.On("data", func(args ...any) { got = append(got, "first:"+args[0].(string)) })
	e.On("data", func(args ...any) { got = append(got, "second:"+args[0].(string)) })

	be.True(t, e.Emit("data", "a"))
	be.True(t, e.Emit("data", "b"))
	be.Equal(t, "first:a,second:a,first:b,second:b", strings.Join(got, ","))
}

func TestOnce(t *testing.T) {
	e := New("test", nil, nil)
	count := 0
	e.Once("open", func(...any) { count++ })

	be.Equal(t, 1, e.ListenerCount("open"))
	e.Emit("open")
	e.Emit("open")
	be.Equal(t, 1, count)
	be.Equal(t, 0, e.ListenerCount("open"))
}

func TestOff(t *testing.T) {
	e := New("test", nil, nil)
	count := 0
	id := e.On("close", func(...any) { count++ })
	be.True(t, e.Off("close", id))
	be.False(t, e.Off("close", id))

	be.False(t, e.Emit("close"))
	be.Equal(t, 0, count)
}

func TestRemoveAllListeners(t *testing.T) {
	e := New("test", nil, nil)
	e.On("a", func(...any) {})
	e.On("b", func(...any) {})

	e.RemoveAllListeners("a")
	be.Equal(t, 0, e.ListenerCount("a"))
	be.Equal(t, 1, e.ListenerCount("b"))

	e.RemoveAllListeners("")
	be.Equal(t, 0, e.ListenerCount("b"))
}

func TestUnhandledErrorIsLogged(t *testing.T) {
	buf := new(bytes.Buffer)
	logger := slog.New(slog.NewTextHandler(buf, nil))
	e := New("socket", nil, logger)

	be.False(t, e.Emit("error", "connection refused"))
	be.True(t, strings.Contains(buf.String(), "unhandled error event"))
	be.True(t, strings.Contains(buf.String(), "connection refused"))
	be.True(t, strings.Contains(buf.String(), "level=WARN"))
}

func TestListenerAddedDuringEmitWaitsForNextEmit(t *testing.T) {
	e := New("test", nil, nil)
	calls := 0
	e.On("x", func(...any) {
		calls++
		e.On("x", func(...any) { calls += 10 })
	})
	e.Emit("x")
	be.Equal(t, 1, calls)
}

func TestHook(t *testing.T) {
	e := New("src", nil, nil)
	var seen []string
	e.SetHook(func(source, event string, handled bool) {
		if handled {
			seen = append(seen, source+"/"+event)
		}
	})
	e.On("message", func(...any) {})
	e.Emit("message")
	e.Emit("close")
	be.Equal(t, "src/message", strings.Join(seen, ","))
}

type queueDispatcher struct {
	tasks  []func()
	closed bool
}

func (q *queueDispatcher) Dispatch(f func()) bool {
	if q.closed {
		return false
	}
	q.tasks = append(q.tasks, f)
	return true
}

func TestNotifyGoesThroughDispatcher(t *testing.T) {
	q := &queueDispatcher{}
	e := New("test", q, nil)
	var got any
	e.On("error", func(args ...any) { got = args[0] })

	e.NotifyError(errors.New("boom"))
	be.Equal(t, nil, got)
	be.Equal(t, 1, len(q.tasks))

	q.tasks[0]()
	be.Equal(t, any("boom"), got)

	q.closed = true
	e.Notify("error", "late")
	be.Equal(t, 1, len(q.tasks))
}

func TestWaitFor(t *testing.T) {
	e := New("test", nil, nil)
	go func() {
		time.Sleep(10 * time.Millisecond)
		e.Emit("listening", 4000)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	args, err := e.WaitFor(ctx, "listening")
	be.NilErr(t, err)
	be.Equal(t, any(4000), args[0])
}
