package websocket

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gws "github.com/gorilla/websocket"
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

// Client is a web socket client. It follows the same queueing and deferred
// close rules as the plain socket client.
type Client struct {
	env    modules.Env
	em     *emitter.Emitter
	opts   ClientOptions
	dialer *gws.Dialer

	mu    sync.Mutex
	state clientState
	conn  *conn
	queue []models.Token
	resID uint64

	closeRequested bool
	announcing     bool
	closeReq       chan struct{}
}

func NewClient(env modules.Env, opts ClientOptions) (*Client, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	env = env.WithDefaults()
	dialer := &gws.Dialer{
		HandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: opts.TrustAll, //nolint:gosec
			MinVersion:         tls.VersionTLS12,
		},
	}
	return &Client{
		env:      env,
		em:       env.NewEmitter("webSocket.Client"),
		opts:     opts,
		dialer:   dialer,
		closeReq: make(chan struct{}),
	}, nil
}

func (c *Client) Emitter() *emitter.Emitter {
	return c.em
}

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

func (c *Client) connectLoop(ctx context.Context) {
	url := c.opts.url()
	interval := time.Duration(c.opts.TimeBetweenRetries) * time.Millisecond
	attempts := c.opts.NumberOfRetries + 1

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
		ws, resp, err := c.dialer.DialContext(ctx, url, nil)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err == nil {
			c.opened(ws)
			return
		}
		lastErr = err
		c.env.Logger.Debug("web socket connect attempt failed",
			slog.String("url", url),
			slog.Int("attempt", i+1),
			slog.Any("err", err),
		)
	}

	c.gaveUp(fmt.Errorf("failed to connect to %s after %d attempts: %w", url, attempts, lastErr))
}

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

func (c *Client) opened(ws *gws.Conn) {
	c.mu.Lock()
	if c.state != stateConnecting {
		c.mu.Unlock()
		_ = ws.Close()
		return
	}
	if c.closeRequested {
		c.state = stateClosed
		c.mu.Unlock()
		_ = ws.WriteControl(gws.CloseMessage, gws.FormatCloseMessage(gws.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = ws.Close()
		c.env.Resources.Release(c.resID)
		c.em.Notify(models.EventClose)
		return
	}

	cn := newConn(c.env, c.em, ws, c.opts.SendType, c.opts.ReceiveType)
	cn.onClose = func() {
		c.mu.Lock()
		c.state = stateClosed
		c.mu.Unlock()
		c.env.Resources.Release(c.resID)
	}
	c.conn = cn
	c.state = stateOpen
	c.announcing = true
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

	c.mu.Lock()
	c.announcing = false
	closeNow := c.closeRequested
	c.mu.Unlock()

	cn.start()
	if closeNow {
		cn.close()
	}
}

// Send writes tok or queues it until the connection opens. With a
// throttle factor set, Send first stalls for each message still waiting
// to be written.
func (c *Client) Send(tok models.Token) error {
	c.mu.Lock()
	state, cn := c.state, c.conn
	if c.closeRequested {
		state = stateClosed
	}
	queued := len(c.queue)
	c.mu.Unlock()

	switch state {
	case stateOpen:
		queued = cn.queued()
	case stateClosed:
		c.em.NotifyError(errClosed)
		return nil
	}
	if c.opts.ThrottleFactor > 0 && queued > 0 {
		time.Sleep(time.Duration(queued*c.opts.ThrottleFactor) * time.Millisecond)
	}
	if state == stateOpen {
		return cn.send(tok)
	}

	if _, _, err := encodeMessage(tok, c.opts.SendType); err != nil {
		return err
	}
	if c.opts.DiscardMessagesBeforeOpen {
		c.env.Logger.Debug("discarding message sent before open", slog.String("host", c.opts.Host))
		return nil
	}

	c.mu.Lock()
	if c.closeRequested || c.state == stateClosed {
		c.mu.Unlock()
		return nil
	}
	if c.state == stateOpen {
		cn := c.conn
		c.mu.Unlock()
		return cn.send(tok)
	}
	c.queue = append(c.queue, tok)
	c.mu.Unlock()
	return nil
}

// Close closes the connection. Closing while still connecting is deferred
// until the attempt opens or gives up; either way close is emitted once and
// open never is.
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
