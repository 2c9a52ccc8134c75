package websocket

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/synadia-io/accessorhost/internal/emitter"
	"github.com/synadia-io/accessorhost/models"
	"github.com/synadia-io/accessorhost/modules"
)

const (
	moduleName   = "webSocket"
	closeTimeout = time.Second
)

var errClosed = errors.New("WebSocket is closed. Cannot send data.")

type frame struct {
	kind int
	data []byte
}

// conn owns one gorilla connection. Only the writer goroutine writes
// data frames; close frames go through WriteControl, which is safe to
// call concurrently.
type conn struct {
	env         modules.Env
	em          *emitter.Emitter
	ws          *gws.Conn
	sendType    string
	receiveType string
	onClose     func()

	mu      sync.Mutex
	pending []frame
	wake    chan struct{}
	done    chan struct{}

	closed    atomic.Bool
	closeOnce sync.Once
	resID     uint64
}

func newConn(env modules.Env, em *emitter.Emitter, ws *gws.Conn, sendType, receiveType string) *conn {
	return &conn{
		env:         env,
		em:          em,
		ws:          ws,
		sendType:    sendType,
		receiveType: receiveType,
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
}

func (c *conn) start() {
	c.resID = c.env.Resources.Track(c)
	c.env.Telemetry.RecordConnection(context.Background(), moduleName, 1)
	go c.writeLoop()
	go c.readLoop()
}

func (c *conn) isOpen() bool {
	return !c.closed.Load()
}

func (c *conn) queued() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *conn) send(tok models.Token) error {
	kind, data, err := encodeMessage(tok, c.sendType)
	if err != nil {
		return err
	}
	if c.closed.Load() {
		c.em.NotifyError(errClosed)
		return nil
	}

	c.mu.Lock()
	c.pending = append(c.pending, frame{kind, data})
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return nil
}

func (c *conn) writeLoop() {
	defer c.ws.Close()
	for {
		closing := false
		select {
		case <-c.done:
			closing = true
		case <-c.wake:
		}

		c.mu.Lock()
		batch := c.pending
		c.pending = nil
		c.mu.Unlock()

		for _, f := range batch {
			if err := c.ws.WriteMessage(f.kind, f.data); err != nil {
				c.fail(err)
				return
			}
			c.env.Telemetry.RecordBytesSent(context.Background(), moduleName, len(f.data))
		}
		if closing {
			msg := gws.FormatCloseMessage(gws.CloseNormalClosure, "")
			_ = c.ws.WriteControl(gws.CloseMessage, msg, time.Now().Add(closeTimeout))
			return
		}
	}
}

func (c *conn) readLoop() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if c.closed.Load() || gws.IsCloseError(err, gws.CloseNormalClosure, gws.CloseGoingAway, gws.CloseNoStatusReceived) {
				c.close()
				return
			}
			c.fail(err)
			return
		}
		c.env.Telemetry.RecordBytesReceived(context.Background(), moduleName, len(data))

		msg, err := decodeMessage(data, c.receiveType)
		if err != nil {
			c.em.NotifyError(err)
			continue
		}
		c.em.Notify(models.EventMessage, msg)
	}
}

func (c *conn) fail(err error) {
	if !c.closed.Load() {
		c.em.NotifyError(err)
	}
	c.close()
}

func (c *conn) close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		c.env.Resources.Release(c.resID)
		c.env.Telemetry.RecordConnection(context.Background(), moduleName, -1)
		if c.onClose != nil {
			c.onClose()
		}
		c.em.Notify(models.EventClose)
	})
}

func (c *conn) Close() error {
	c.close()
	return nil
}
