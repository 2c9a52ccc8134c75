package socket

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/synadia-io/accessorhost/internal/emitter"
	"github.com/synadia-io/accessorhost/models"
	"github.com/synadia-io/accessorhost/modules"
)

type clientState int

const (
	stateIdle clientState = iota
	stateConnecting
	stateOpen
	stateClosed
)

// Client is a SocketClient. Sends made before the connection opens are
// queued, or dropped when DiscardMessagesBeforeOpen is set.
type Client struct {
	env       modules.Env
	em        *emitter.Emitter
	transport Transport
	host      string
	port      int
	opts      ClientOptions

	mu    sync.Mutex
	state clientState
	conn  *conn
	queue []models.Token
	resID uint64

	// closeRequested is set by a Close that arrives while connecting or
	// while open is still being delivered. The connection is closed as soon
	// as that finishes.
	closeRequested bool
	announcing     bool
	closeReq       chan struct{}
}

func NewClient(env modules.Env, transport Transport, port int, host string, opts ClientOptions) (*Client, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if transport == nil {
		transport = NetTransport{}
	}
	if host == "" {
		host = DefaultHost
	}
	if port == 0 {
		port = DefaultPort
	}
	env = env.WithDefaults()
	return &Client{
		env:       env,
		em:        env.NewEmitter("socket.SocketClient"),
		transport: transport,
		host:      host,
		port:      port,
		opts:      opts,
		closeReq:  make(chan struct{}),
	}, nil
}

func (c *Client) Emitter() *emitter.Emitter {
	return c.em
}

// Connect starts connecting in the background. Register listeners first.
func (c *Client) Connect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateIdle {
		return
	}
	c.state = stateConnecting
	c.resID = c.env.Resources.Track(c)
	go c.connectLoop(context.Background())
}

// connectLoop does not abort a dial in flight when Close is called; it only
// stops retrying.
func (c *Client) connectLoop(ctx context.Context) {
	interval := time.Duration(c.opts.ReconnectInterval) * time.Millisecond
	attempts := c.opts.ReconnectAttempts + 1

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-c.closeReq:
				c.gaveUp(nil)
				return
			case <-time.After(interval):
			}
		}

		nc, err := c.transport.Dial(ctx, c.host, c.port, c.opts)
		if err == nil {
			c.opened(nc)
			return
		}
		lastErr = err
		c.env.Logger.Debug("socket connect attempt failed",
			slog.String("host", c.host),
			slog.Int("port", c.port),
			slog.Int("attempt", i+1),
			slog.Any("err", err),
		)
	}

	c.gaveUp(fmt.Errorf("failed to connect to %s:%d after %d attempts: %w", c.host, c.port, attempts, lastErr))
}

// gaveUp ends a connection attempt that never opened. err is nil when the
// attempt stopped because Close was called.
func (c *Client) gaveUp(err error) {
	c.mu.Lock()
	if c.state != stateConnecting {
		c.mu.Unlock()
		return
	}
	c.state = stateClosed
	c.queue = nil
	c.mu.Unlock()
	c.env.Resources.Release(c.resID)

	if err != nil {
		c.em.NotifyError(err)
	}
	c.em.Notify(models.EventClose)
}

func (c *Client) opened(nc net.Conn) {
	c.mu.Lock()
	if c.state != stateConnecting {
		c.mu.Unlock()
		_ = nc.Close()
		return
	}
	if c.closeRequested {
		c.state = stateClosed
		c.mu.Unlock()
		_ = nc.Close()
		c.env.Resources.Release(c.resID)
		c.em.Notify(models.EventClose)
		return
	}

	cn := newConn(c.env, c.em, nc, c.opts.framing())
	cn.onClose = func() {
		c.mu.Lock()
		c.state = stateClosed
		c.mu.Unlock()
		c.env.Resources.Release(c.resID)
	}
	c.conn = cn
	c.state = stateOpen
	c.announcing = true
	// flush under the lock so later sends stay behind the queued ones
	var errs []error
	for _, tok := range c.queue {
		if err := cn.send(tok); err != nil {
			errs = append(errs, err)
		}
	}
	c.queue = nil
	c.mu.Unlock()

	for _, err := range errs {
		c.em.NotifyError(err)
	}
	c.em.Notify(models.EventOpen)

	// a Close that landed while open was being delivered runs now, so close
	// is always queued after open
	c.mu.Lock()
	c.announcing = false
	closeNow := c.closeRequested
	c.mu.Unlock()

	cn.start()
	if closeNow {
		cn.close()
	}
}

// Send writes tok, or queues it until the connection opens. It returns
// an error only when tok cannot be encoded as the send type.
func (c *Client) Send(tok models.Token) error {
	c.mu.Lock()
	if c.closeRequested || c.state == stateClosed {
		c.mu.Unlock()
		c.em.NotifyError(errClosed)
		return nil
	}
	if c.state == stateOpen {
		cn := c.conn
		c.mu.Unlock()
		return cn.send(tok)
	}
	if _, err := encodeData(tok, c.opts.SendType); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.opts.DiscardMessagesBeforeOpen {
		c.mu.Unlock()
		c.env.Logger.Debug("discarding message sent before open", slog.String("host", c.host))
		return nil
	}
	if len(c.queue) >= c.opts.MaxUnsentMessages {
		c.mu.Unlock()
		c.em.NotifyError(fmt.Errorf("maximum number of unsent messages (%d) exceeded", c.opts.MaxUnsentMessages))
		return nil
	}
	c.queue = append(c.queue, tok)
	c.mu.Unlock()
	return nil
}

// Close closes the connection. Closing while still connecting is deferred:
// queued sends are dropped, open is never emitted, and close is emitted
// once the attempt either opens (the new connection is closed right away)
// or gives up.
func (c *Client) Close() error {
	c.mu.Lock()
	switch c.state {
	case stateIdle:
		c.state = stateClosed
		c.mu.Unlock()
		c.em.Notify(models.EventClose)
		return nil
	case stateClosed:
		c.mu.Unlock()
		return nil
	case stateOpen:
		if c.announcing {
			c.closeRequested = true
			c.mu.Unlock()
			return nil
		}
		cn := c.conn
		c.mu.Unlock()
		cn.close()
		return nil
	}

	if !c.closeRequested {
		c.closeRequested = true
		c.queue = nil
		close(c.closeReq)
	}
	c.mu.Unlock()
	return nil
}

func (c *Client) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateOpen && !c.closeRequested && c.conn.isOpen()
}
