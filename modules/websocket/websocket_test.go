package websocket

import (
	"context"
	"image"
	"image/color"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/carlmjohnson/be"
	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
	"github.com/synadia-io/accessorhost/internal/loop"
	"github.com/synadia-io/accessorhost/models"
	"github.com/synadia-io/accessorhost/modules"
)

const waitTimeout = 5 * time.Second

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for event")
	}
	var zero T
	return zero
}

func startServer(t *testing.T, opts ServerOptions) (*Server, int) {
	t.Helper()
	opts.HostInterface = "127.0.0.1"
	opts.Port = 0
	srv, err := NewServer(modules.Env{}, opts)
	be.NilErr(t, err)

	ports := make(chan int, 1)
	srv.Emitter().On(models.EventListening, func(args ...any) { ports <- args[0].(int) })
	be.NilErr(t, srv.Start(context.Background()))
	t.Cleanup(func() { _ = srv.Close() })
	return srv, receive(t, ports)
}

func clientOptions(port int) ClientOptions {
	opts := DefaultClientOptions()
	opts.Host = "127.0.0.1"
	opts.Port = port
	return opts
}

func TestJSONRoundTrip(t *testing.T) {
	srv, port := startServer(t, DefaultServerOptions())
	srv.Emitter().On(models.EventConnection, func(args ...any) {
		sock := args[0].(*Socket)
		sock.Emitter().On(models.EventMessage, func(args ...any) {
			msg := args[0].(map[string]any)
			_ = sock.Send(models.NewRecordToken(map[string]models.Token{
				"echo": models.StringToken(msg["name"].(string)),
			}))
		})
	})

	client, err := NewClient(modules.Env{}, clientOptions(port))
	be.NilErr(t, err)
	t.Cleanup(func() { _ = client.Close() })

	msgs := make(chan any, 1)
	client.Emitter().On(models.EventMessage, func(args ...any) { msgs <- args[0] })
	be.NilErr(t, client.Send(models.NewRecordToken(map[string]models.Token{"name": models.StringToken("ws")})))
	client.Connect()

	got := receive(t, msgs).(map[string]any)
	be.Equal(t, any("ws"), got["echo"])
}

func TestBadJSONEmitsError(t *testing.T) {
	sopts := DefaultServerOptions()
	sopts.SendType = "text/plain"
	srv, port := startServer(t, sopts)
	srv.Emitter().On(models.EventConnection, func(args ...any) {
		_ = args[0].(*Socket).Send(models.StringToken("{not json"))
	})

	client, err := NewClient(modules.Env{}, clientOptions(port))
	be.NilErr(t, err)
	t.Cleanup(func() { _ = client.Close() })

	var messages atomic.Int32
	errs := make(chan any, 1)
	client.Emitter().On(models.EventMessage, func(...any) { messages.Add(1) })
	client.Emitter().On(models.EventError, func(args ...any) { errs <- args[0] })
	client.Connect()

	be.In(t, "parse", receive(t, errs).(string))
	be.Equal(t, int32(0), messages.Load())
}

func TestImageFrames(t *testing.T) {
	sopts := DefaultServerOptions()
	sopts.ReceiveType = "image/png"
	srv, port := startServer(t, sopts)

	images := make(chan any, 1)
	srv.Emitter().On(models.EventConnection, func(args ...any) {
		args[0].(*Socket).Emitter().On(models.EventMessage, func(args ...any) { images <- args[0] })
	})

	copts := clientOptions(port)
	copts.SendType = "image/png"
	client, err := NewClient(modules.Env{}, copts)
	be.NilErr(t, err)
	t.Cleanup(func() { _ = client.Close() })
	client.Connect()

	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	be.NilErr(t, client.Send(models.ImageToken{Image: img}))

	got := receive(t, images).(image.Image)
	be.Equal(t, 4, got.Bounds().Dx())
	be.Equal(t, 3, got.Bounds().Dy())

	// only images can be sent as images
	be.Nonzero(t, client.Send(models.StringToken("not an image")))
}

func TestCloseBeforeOpen(t *testing.T) {
	srv, port := startServer(t, DefaultServerOptions())
	serverCloses := make(chan struct{}, 1)
	srv.Emitter().On(models.EventConnection, func(args ...any) {
		args[0].(*Socket).Emitter().On(models.EventClose, func(...any) { serverCloses <- struct{}{} })
	})

	client, err := NewClient(modules.Env{}, clientOptions(port))
	be.NilErr(t, err)

	// hold the dial so Close lands while connecting
	release := make(chan struct{})
	client.dialer.NetDialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		<-release
		var d net.Dialer
		return d.DialContext(ctx, network, addr)
	}

	var opens atomic.Int32
	closes := make(chan struct{}, 4)
	client.Emitter().On(models.EventOpen, func(...any) { opens.Add(1) })
	client.Emitter().On(models.EventClose, func(...any) { closes <- struct{}{} })

	client.Connect()
	be.NilErr(t, client.Send(models.StringToken("dropped")))
	be.NilErr(t, client.Close())
	be.NilErr(t, client.Close())

	select {
	case <-closes:
		t.Fatal("close emitted while the dial was still pending")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	receive(t, closes)
	// the late connection was opened and then closed straight away
	receive(t, serverCloses)

	time.Sleep(50 * time.Millisecond)
	be.Equal(t, 0, len(closes))
	be.Equal(t, int32(0), opens.Load())
	be.False(t, client.IsOpen())
}

func TestCloseBeforeOpenStopsRetrying(t *testing.T) {
	opts := clientOptions(1)
	opts.NumberOfRetries = 50
	opts.TimeBetweenRetries = 5
	client, err := NewClient(modules.Env{}, opts)
	be.NilErr(t, err)

	var opens atomic.Int32
	closes := make(chan struct{}, 4)
	client.Emitter().On(models.EventOpen, func(...any) { opens.Add(1) })
	client.Emitter().On(models.EventClose, func(...any) { closes <- struct{}{} })

	client.Connect()
	be.NilErr(t, client.Close())

	receive(t, closes)
	time.Sleep(50 * time.Millisecond)
	be.Equal(t, 0, len(closes))
	be.Equal(t, int32(0), opens.Load())
}

func TestConnectFailure(t *testing.T) {
	opts := clientOptions(1)
	opts.NumberOfRetries = 1
	opts.TimeBetweenRetries = 1
	client, err := NewClient(modules.Env{}, opts)
	be.NilErr(t, err)

	events := make(chan string, 2)
	client.Emitter().On(models.EventError, func(...any) { events <- models.EventError })
	client.Emitter().On(models.EventClose, func(...any) { events <- models.EventClose })
	client.Connect()

	be.Equal(t, models.EventError, receive(t, events))
	be.Equal(t, models.EventClose, receive(t, events))
}

func TestScriptBinding(t *testing.T) {
	l := loop.New(nil)
	l.Start(context.Background())
	t.Cleanup(func() {
		l.Stop()
		l.Wait(time.Second)
	})
	env := modules.Env{Dispatcher: l}.WithDefaults()
	t.Cleanup(func() { _ = env.Resources.CloseAll() })

	rt := goja.New()
	registry := require.NewRegistry()
	registry.RegisterNativeModule(ModuleName, Loader(env))
	registry.Enable(rt)

	results := make(chan string, 1)
	be.NilErr(t, rt.Set("report", func(s string) { results <- s }))

	err := l.Do(context.Background(), func() error {
		_, err := rt.RunString(`
			var WebSocket = require('webSocket');
			var server = new WebSocket.Server({hostInterface: '127.0.0.1', port: 0});
			server.on('connection', function(s) {
				s.on('message', function(m) { s.send({sum: m.a + m.b}); });
			});
			server.on('listening', function(port) {
				var client = new WebSocket.Client({host: '127.0.0.1', port: port});
				client.on('message', function(m) { report(JSON.stringify(m)); client.close(); });
				client.send({a: 2, b: 3});
			});
			server.start();
		`)
		return err
	})
	be.NilErr(t, err)
	be.Equal(t, `{"sum":5}`, receive(t, results))
}
