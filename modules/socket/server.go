package socket

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"

	"github.com/synadia-io/accessorhost/internal/emitter"
	"github.com/synadia-io/accessorhost/models"
	"github.com/synadia-io/accessorhost/modules"
)

// Server is a SocketServer. It does not listen until Start.
type Server struct {
	env       modules.Env
	em        *emitter.Emitter
	transport Transport
	opts      ServerOptions

	mu      sync.Mutex
	ln      net.Listener
	sockets map[*Socket]struct{}
	closed  bool
	resID   uint64
}

func NewServer(env modules.Env, transport Transport, opts ServerOptions) (*Server, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if transport == nil {
		transport = NetTransport{}
	}
	env = env.WithDefaults()
	return &Server{
		env:       env,
		em:        env.NewEmitter("socket.SocketServer"),
		transport: transport,
		opts:      opts,
		sockets:   make(map[*Socket]struct{}),
	}, nil
}

func (s *Server) Emitter() *emitter.Emitter {
	return s.em
}

// Start listens and emits listening with the bound port. Failures are
// emitted as error events as well as returned.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.ln != nil || s.closed {
		s.mu.Unlock()
		return nil
	}
	ln, err := s.transport.Listen(ctx, s.opts)
	if err != nil {
		s.mu.Unlock()
		s.em.NotifyError(err)
		return err
	}
	s.ln = ln
	s.resID = s.env.Resources.Track(s)
	s.mu.Unlock()

	s.em.Notify(models.EventListening, s.Port())
	go s.acceptLoop(ln)
	return nil
}

// Port is the bound port, or the configured one before Start.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return s.opts.Port
	}
	if addr, ok := s.ln.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	_, p, _ := net.SplitHostPort(s.ln.Addr().String())
	port, _ := strconv.Atoi(p)
	return port
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		nc, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed && !errors.Is(err, net.ErrClosed) {
				s.em.NotifyError(err)
			}
			return
		}
		tuneConn(nc, s.opts.NoDelay, s.opts.ReceiveBufferSize, s.opts.SendBufferSize)

		sock := s.newSocket(nc)
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = nc.Close()
			return
		}
		s.sockets[sock] = struct{}{}
		s.mu.Unlock()

		// connection is queued ahead of the socket's first data event
		s.em.Notify(models.EventConnection, sock)
		sock.conn.start()
	}
}

func (s *Server) newSocket(nc net.Conn) *Socket {
	sock := &Socket{em: s.env.NewEmitter("socket.Socket")}
	sock.conn = newConn(s.env, sock.em, nc, s.opts.framing())
	sock.conn.onClose = func() {
		s.mu.Lock()
		delete(s.sockets, sock)
		s.mu.Unlock()
	}
	return sock
}

// Close stops listening and closes every open connection.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ln := s.ln
	sockets := make([]*Socket, 0, len(s.sockets))
	for sock := range s.sockets {
		sockets = append(sockets, sock)
	}
	s.mu.Unlock()

	for _, sock := range sockets {
		sock.conn.close()
	}
	if ln == nil {
		return nil
	}
	s.env.Resources.Release(s.resID)
	err := ln.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Socket is the server side of one accepted connection.
type Socket struct {
	em   *emitter.Emitter
	conn *conn
}

func (s *Socket) Emitter() *emitter.Emitter {
	return s.em
}

func (s *Socket) Send(tok models.Token) error {
	return s.conn.send(tok)
}

func (s *Socket) Close() error {
	s.conn.close()
	return nil
}

func (s *Socket) IsOpen() bool {
	return s.conn.isOpen()
}

func (s *Socket) RemoteHost() string {
	host, _, err := net.SplitHostPort(s.conn.nc.RemoteAddr().String())
	if err != nil {
		return s.conn.nc.RemoteAddr().String()
	}
	return host
}

func (s *Socket) RemotePort() int {
	_, p, _ := net.SplitHostPort(s.conn.nc.RemoteAddr().String())
	port, _ := strconv.Atoi(p)
	return port
}
