package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/synadia-io/accessorhost/internal/emitter"
	"github.com/synadia-io/accessorhost/models"
	"github.com/synadia-io/accessorhost/modules"
)

// Server accepts web socket connections on one path.
type Server struct {
	env      modules.Env
	em       *emitter.Emitter
	opts     ServerOptions
	upgrader gws.Upgrader

	mu      sync.Mutex
	srv     *http.Server
	ln      net.Listener
	sockets map[*Socket]struct{}
	closed  bool
	resID   uint64
}

func NewServer(env modules.Env, opts ServerOptions) (*Server, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	env = env.WithDefaults()
	return &Server{
		env:  env,
		em:   env.NewEmitter("webSocket.Server"),
		opts: opts,
		upgrader: gws.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		sockets: make(map[*Socket]struct{}),
	}, nil
}

func (s *Server) Emitter() *emitter.Emitter {
	return s.em
}

func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.srv != nil || s.closed {
		s.mu.Unlock()
		return nil
	}
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(s.opts.HostInterface, strconv.Itoa(s.opts.Port)))
	if err != nil {
		s.mu.Unlock()
		s.em.NotifyError(err)
		return err
	}

	path := s.opts.Path
	if path == "" {
		path = "/"
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, s.handle)
	s.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	s.ln = ln
	s.resID = s.env.Resources.Track(s)
	srv := s.srv
	s.mu.Unlock()

	s.em.Notify(models.EventListening, s.Port())
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.em.NotifyError(err)
		}
	}()
	return nil
}

func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return s.opts.Port
	}
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.env.Logger.Debug("web socket upgrade failed", slog.Any("err", err))
		return
	}

	sock := &Socket{em: s.env.NewEmitter("webSocket.Socket")}
	sock.conn = newConn(s.env, sock.em, ws, s.opts.SendType, s.opts.ReceiveType)
	sock.conn.onClose = func() {
		s.mu.Lock()
		delete(s.sockets, sock)
		s.mu.Unlock()
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ws.Close()
		return
	}
	s.sockets[sock] = struct{}{}
	s.mu.Unlock()

	s.em.Notify(models.EventConnection, sock)
	sock.conn.start()
}

// Close stops the server and closes every open connection. Upgraded
// connections are hijacked, so http.Server.Close does not reach them.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	srv := s.srv
	sockets := make([]*Socket, 0, len(s.sockets))
	for sock := range s.sockets {
		sockets = append(sockets, sock)
	}
	s.mu.Unlock()

	for _, sock := range sockets {
		sock.conn.close()
	}
	if srv == nil {
		return nil
	}
	s.env.Resources.Release(s.resID)
	return srv.Close()
}

// Socket is the server side of one web socket connection.
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

func (s *Socket) RemoteAddress() string {
	return s.conn.ws.RemoteAddr().String()
}
