// Package eventbus publishes and subscribes to topics on NATS.
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/synadia-io/accessorhost/internal/emitter"
	"github.com/synadia-io/accessorhost/internal/idgen"
	"github.com/synadia-io/accessorhost/models"
	"github.com/synadia-io/accessorhost/modules"
)

const moduleName = "eventBus"

var ErrClosed = errors.New("event bus is closed")

type Options struct {
	Servers  string `json:"servers"`
	Name     string `json:"name"`
	Encoding string `json:"encoding"`
}

func DefaultOptions() Options {
	return Options{
		Servers:  nats.DefaultURL,
		Name:     "accessor event bus",
		Encoding: EncodingJSON,
	}
}

// Message is the payload of a message event.
type Message struct {
	Topic string
	Data  any
}

// ReplyFunc computes the reply to a request. It runs on the dispatcher.
type ReplyFunc func(data any) (models.Token, error)

// ResponseFunc receives the answer to a request. It runs on the
// dispatcher.
type ResponseFunc func(data any, err error)

type subscription struct {
	id      string
	topic   string
	sub     *nats.Subscription
	dropped bool
}

// Bus is one EventBus. With a shared connection the bus never closes the
// connection itself, only its own subscriptions.
type Bus struct {
	env  modules.Env
	em   *emitter.Emitter
	opts Options

	mu      sync.Mutex
	nc      *nats.Conn
	shared  bool
	open    bool
	closed  bool
	pending []func(*nats.Conn)
	subs    []*subscription
	resID   uint64
}

func New(env modules.Env, opts Options) (*Bus, error) {
	if !validEncoding(opts.Encoding) {
		return nil, fmt.Errorf("invalid encoding: %s", opts.Encoding)
	}
	env = env.WithDefaults()
	return &Bus{
		env:  env,
		em:   env.NewEmitter("eventBus.EventBus"),
		opts: opts,
	}, nil
}

func (b *Bus) Emitter() *emitter.Emitter {
	return b.em
}

// Open connects in the background, or adopts nc when it is not nil.
// Work requested before the connection is up runs once it is.
func (b *Bus) Open(nc *nats.Conn) {
	b.mu.Lock()
	b.resID = b.env.Resources.Track(b)
	b.mu.Unlock()

	if nc != nil {
		b.connected(nc, true)
		return
	}
	go func() {
		nc, err := nats.Connect(b.opts.Servers,
			nats.Name(b.opts.Name),
			nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
				b.em.NotifyError(err)
			}),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				if err != nil {
					b.env.Logger.Warn("event bus disconnected", slog.Any("err", err))
				}
			}),
		)
		if err != nil {
			b.em.NotifyError(fmt.Errorf("failed to connect to %s: %w", b.opts.Servers, err))
			b.Close()
			return
		}
		b.connected(nc, false)
	}()
}

func (b *Bus) connected(nc *nats.Conn, shared bool) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		if !shared {
			nc.Close()
		}
		return
	}
	b.nc = nc
	b.shared = shared
	b.open = true
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()

	b.em.Notify(models.EventOpen)
	for _, f := range pending {
		f(nc)
	}
}

// withConn runs f now when connected, later when connecting.
func (b *Bus) withConn(f func(*nats.Conn)) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	if !b.open {
		b.pending = append(b.pending, f)
		b.mu.Unlock()
		return nil
	}
	nc := b.nc
	b.mu.Unlock()
	f(nc)
	return nil
}

func (b *Bus) Publish(topic string, tok models.Token) error {
	data, err := encode(tok, b.opts.Encoding)
	if err != nil {
		return err
	}
	return b.withConn(func(nc *nats.Conn) {
		if err := nc.Publish(topic, data); err != nil {
			b.em.NotifyError(err)
			return
		}
		b.env.Telemetry.RecordBytesSent(context.Background(), moduleName, len(data))
	})
}

// Subscribe emits a message event for every message on topic and returns
// the subscription id.
func (b *Bus) Subscribe(topic string) (string, error) {
	s := &subscription{id: idgen.Next(), topic: topic}
	err := b.withConn(func(nc *nats.Conn) {
		sub, err := nc.Subscribe(topic, func(m *nats.Msg) {
			b.env.Telemetry.RecordBytesReceived(context.Background(), moduleName, len(m.Data))
			data, err := decode(m.Data, b.opts.Encoding)
			if err != nil {
				b.em.NotifyError(err)
				return
			}
			b.em.Notify(models.EventMessage, Message{Topic: m.Subject, Data: data})
		})
		if err != nil {
			b.em.NotifyError(err)
			return
		}
		b.attach(s, sub)
	})
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()
	return s.id, nil
}

// attach records sub, or undoes it when the subscription was dropped
// before the connection came up.
func (b *Bus) attach(s *subscription, sub *nats.Subscription) {
	b.mu.Lock()
	dropped := s.dropped
	if !dropped {
		s.sub = sub
	}
	b.mu.Unlock()
	if dropped {
		_ = sub.Unsubscribe()
	}
}

// Unsubscribe drops every subscription on topic, and any reply handler.
func (b *Bus) Unsubscribe(topic string) {
	b.mu.Lock()
	var drop []*nats.Subscription
	kept := b.subs[:0]
	for _, s := range b.subs {
		if s.topic != topic {
			kept = append(kept, s)
			continue
		}
		s.dropped = true
		if s.sub != nil {
			drop = append(drop, s.sub)
		}
	}
	b.subs = kept
	b.mu.Unlock()

	for _, sub := range drop {
		_ = sub.Unsubscribe()
	}
}

// Request sends tok and hands the decoded reply, or the failure, to cb.
func (b *Bus) Request(topic string, tok models.Token, timeout time.Duration, cb ResponseFunc) error {
	data, err := encode(tok, b.opts.Encoding)
	if err != nil {
		return err
	}
	respond := func(v any, err error) {
		b.em.Dispatcher().Dispatch(func() { cb(v, err) })
	}
	return b.withConn(func(nc *nats.Conn) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			msg, err := nc.RequestWithContext(ctx, topic, data)
			if err != nil {
				respond(nil, err)
				return
			}
			v, err := decode(msg.Data, b.opts.Encoding)
			respond(v, err)
		}()
	})
}

// Reply answers requests on topic with the result of fn.
func (b *Bus) Reply(topic string, fn ReplyFunc) error {
	s := &subscription{id: idgen.Next(), topic: topic}
	err := b.withConn(func(nc *nats.Conn) {
		sub, err := nc.Subscribe(topic, func(m *nats.Msg) {
			data, err := decode(m.Data, b.opts.Encoding)
			if err != nil {
				b.em.NotifyError(err)
				return
			}
			b.em.Dispatcher().Dispatch(func() {
				b.respond(m, fn, data)
			})
		})
		if err != nil {
			b.em.NotifyError(err)
			return
		}
		b.attach(s, sub)
	})
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()
	return nil
}

func (b *Bus) respond(m *nats.Msg, fn ReplyFunc, data any) {
	tok, err := fn(data)
	if err != nil {
		b.em.Emit(models.EventError, err.Error())
		return
	}
	if tok == nil {
		tok = models.Nil
	}
	out, err := encode(tok, b.opts.Encoding)
	if err != nil {
		b.em.Emit(models.EventError, err.Error())
		return
	}
	if err := m.Respond(out); err != nil {
		b.em.Emit(models.EventError, err.Error())
	}
}

// Close drops every subscription and, unless the connection is shared,
// closes it. close is emitted once.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var subs []*nats.Subscription
	for _, s := range b.subs {
		s.dropped = true
		if s.sub != nil {
			subs = append(subs, s.sub)
		}
	}
	b.subs = nil
	b.pending = nil
	nc, shared := b.nc, b.shared
	b.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Unsubscribe()
	}
	if nc != nil && !shared {
		nc.Close()
	}
	b.env.Resources.Release(b.resID)
	b.em.Notify(models.EventClose)
	return nil
}
