package socket

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/synadia-io/accessorhost/internal/emitter"
	"github.com/synadia-io/accessorhost/models"
	"github.com/synadia-io/accessorhost/modules"
)

const (
	moduleName = "socket"
	readChunk  = 64 * 1024

	flushTimeout = time.Second
)

var errClosed = errors.New("Socket is closed. Cannot send data.")

// conn is one established connection. A reader goroutine turns incoming
// messages into data events and a writer goroutine drains the send queue,
// so neither send nor close ever blocks the caller.
type conn struct {
	env     modules.Env
	em      *emitter.Emitter
	nc      net.Conn
	framing framing
	onClose func()

	mu      sync.Mutex
	pending [][]byte
	wake    chan struct{}
	done    chan struct{}

	started   bool
	closed    atomic.Bool
	closeOnce sync.Once
	resID     uint64
}

func newConn(env modules.Env, em *emitter.Emitter, nc net.Conn, f framing) *conn {
	return &conn{
		env:     env,
		em:      em,
		nc:      nc,
		framing: f,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (c *conn) start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		_ = c.nc.Close()
		return
	}
	c.started = true
	c.resID = c.env.Resources.Track(c)
	c.env.Telemetry.RecordConnection(context.Background(), moduleName, 1)
	go c.writeLoop()
	go c.readLoop()
}

func (c *conn) isOpen() bool {
	return !c.closed.Load()
}

// send encodes tok and queues it. Encoding errors are returned; sending on
// a closed connection emits an error event instead.
func (c *conn) send(tok models.Token) error {
	payload, err := encodeData(tok, c.framing.sendType)
	if err != nil {
		return err
	}
	c.write(payload)
	return nil
}

func (c *conn) write(payload []byte) {
	if c.closed.Load() {
		c.em.NotifyError(errClosed)
		return
	}
	if !c.framing.rawBytes {
		payload = frame(payload)
	}

	c.mu.Lock()
	c.pending = append(c.pending, payload)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// writeLoop owns closing the underlying connection: once close is
// requested it flushes what is still queued and then closes.
func (c *conn) writeLoop() {
	defer c.nc.Close()
	for {
		closing := false
		select {
		case <-c.done:
			closing = true
			_ = c.nc.SetWriteDeadline(time.Now().Add(flushTimeout))
		case <-c.wake:
		}

		c.mu.Lock()
		batch := c.pending
		c.pending = nil
		c.mu.Unlock()

		for _, p := range batch {
			n, err := c.nc.Write(p)
			c.env.Telemetry.RecordBytesSent(context.Background(), moduleName, n)
			if err != nil {
				c.fail(err)
				return
			}
		}
		if closing {
			return
		}
	}
}

func (c *conn) readLoop() {
	r := bufio.NewReaderSize(c.nc, readChunk)
	var leftover []byte

	for {
		if c.framing.idleTimeout > 0 {
			_ = c.nc.SetReadDeadline(time.Now().Add(time.Duration(c.framing.idleTimeout) * time.Second))
		}

		var (
			msg []byte
			err error
		)
		if c.framing.rawBytes {
			buf := make([]byte, readChunk)
			var n int
			n, err = r.Read(buf)
			msg = append(leftover, buf[:n]...)
			leftover = nil
		} else {
			msg, err = readFrame(r, c.framing.maxFrame)
			for err == nil && c.framing.batch && frameBuffered(r) {
				var next []byte
				if next, err = readFrame(r, c.framing.maxFrame); err == nil {
					msg = append(msg, next...)
				}
			}
		}

		if len(msg) > 0 {
			c.env.Telemetry.RecordBytesReceived(context.Background(), moduleName, len(msg))
			rest, derr := c.deliver(msg)
			if derr != nil {
				c.em.NotifyError(derr)
			}
			if c.framing.rawBytes {
				leftover = rest
			} else if len(rest) > 0 {
				c.env.Logger.Debug("discarding partial element at end of message", slog.Int("bytes", len(rest)))
			}
		}

		if err != nil {
			var ne net.Error
			switch {
			case c.closed.Load(), errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
				c.close()
			case errors.As(err, &ne) && ne.Timeout():
				c.env.Logger.Debug("closing idle socket", slog.String("remote", c.nc.RemoteAddr().String()))
				c.close()
			default:
				c.fail(err)
			}
			return
		}
	}
}

// deliver emits the elements of one message and returns the bytes that did
// not fill a numeric element.
func (c *conn) deliver(msg []byte) ([]byte, error) {
	elems, rest, err := decodeMessage(msg, c.framing.receiveType)
	if err != nil {
		return nil, err
	}
	switch {
	case len(elems) == 0:
	case len(elems) == 1:
		c.em.Notify(models.EventData, elems[0])
	case c.framing.serialize:
		for _, e := range elems {
			c.em.Notify(models.EventData, e)
		}
	default:
		c.em.Notify(models.EventData, elems)
	}
	return rest, nil
}

func (c *conn) fail(err error) {
	if !c.closed.Load() {
		c.em.NotifyError(err)
	}
	c.close()
}

// close shuts the connection down and emits close exactly once.
func (c *conn) close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed.Store(true)
		started := c.started
		c.mu.Unlock()

		close(c.done)
		if started {
			c.env.Resources.Release(c.resID)
			c.env.Telemetry.RecordConnection(context.Background(), moduleName, -1)
		} else {
			_ = c.nc.Close()
		}
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
