package accessorhost

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/carlmjohnson/be"
	"github.com/dop251/goja"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/synadia-io/accessorhost/internal/actor"
	eventemitter "github.com/synadia-io/accessorhost/internal/event_emitter"
	"github.com/synadia-io/accessorhost/models"
)

type sent struct {
	port    string
	channel int
	token   models.Token
}

type recorder struct {
	mu     sync.Mutex
	outs   chan sent
	errors []string
}

func newRecorder() *recorder {
	return &recorder{outs: make(chan sent, 32)}
}

func (r *recorder) options() []HostOption {
	return []HostOption{
		WithOutputHandler(func(port string, channel int, t models.Token) {
			r.outs <- sent{port, channel, t}
		}),
		WithErrorHandler(func(msg string) {
			r.mu.Lock()
			r.errors = append(r.errors, msg)
			r.mu.Unlock()
		}),
	}
}

func (r *recorder) errs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.errors...)
}

func (r *recorder) next(t *testing.T) sent {
	t.Helper()
	select {
	case s := <-r.outs:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for output")
	}
	return sent{}
}

func startHost(t *testing.T, name, source string, opts ...HostOption) *Host {
	t.Helper()
	h, err := NewHost(name, opts...)
	be.NilErr(t, err)
	t.Cleanup(func() { _ = h.Shutdown() })
	be.NilErr(t, h.Load(context.Background(), source))
	be.NilErr(t, h.Initialize(context.Background()))
	return h
}

func TestDefaultHostConstructor(t *testing.T) {
	h, err := NewHost("Blank")
	be.NilErr(t, err)
	defer func() { _ = h.Shutdown() }()

	be.Nonzero(t, h.ctx)
	be.Nonzero(t, h.logger)
	be.Equal(t, "Blank", h.Name())
	be.Equal(t, 22, len(h.HostId()))
	be.Equal(t, "development", h.version)
	be.Equal(t, 8, len(h.Modules()))

	be.Equal(t, ErrNotLoaded, h.Fire(context.Background()))

	_, err = NewHost("")
	be.Nonzero(t, err)
	_, err = NewHost("x", WithHostId(""))
	be.Nonzero(t, err)
}

func TestProvideRunsHandlersThenFire(t *testing.T) {
	rec := newRecorder()
	h := startHost(t, "Scale", `
		var fired = 0;
		exports.setup = function() {
			this.input('in', {type: 'int', value: 1});
			this.output('out');
			this.output('count');
			this.parameter('scale', {value: 10});
		};
		exports.initialize = function() {
			var self = this;
			this.addInputHandler('in', function() {
				self.send('out', self.get('in') * self.getParameter('scale'));
			});
		};
		exports.fire = function() {
			fired++;
			send('count', fired);
		};
	`, rec.options()...)

	be.AllEqual(t, []string{"in"}, h.Actor().Names(actor.KindInput))

	be.NilErr(t, h.Provide(context.Background(), "in", models.IntToken(4)))
	out := rec.next(t)
	be.Equal(t, "out", out.port)
	be.Equal(t, models.Token(models.IntToken(40)), out.token)
	count := rec.next(t)
	be.Equal(t, "count", count.port)
	be.Equal(t, models.Token(models.IntToken(1)), count.token)

	be.NilErr(t, h.Fire(context.Background()))
	count = rec.next(t)
	be.Equal(t, models.Token(models.IntToken(2)), count.token)

	err := h.Provide(context.Background(), "scale", models.IntToken(1))
	be.Nonzero(t, err)
}

func TestMissingHooksAreNoops(t *testing.T) {
	h := startHost(t, "Empty", `input('x');`)
	be.NilErr(t, h.Fire(context.Background()))
	be.NilErr(t, h.Provide(context.Background(), "x", models.StringToken("hi")))
	be.NilErr(t, h.Wrapup(context.Background()))
	be.NilErr(t, h.Wrapup(context.Background()))
}

func TestErrorPolicy(t *testing.T) {
	rec := newRecorder()
	h := startHost(t, "Errors", `
		exports.setup = function() {
			this.input('in');
			this.parameter('p', {value: 'v'});
		};
		exports.fire = function() {
			send('nope', 1);
			setDefault('missing', 2);
			setParameter('absent', 3);
			set('in', 4);
			error('custom failure');
		};
	`, rec.options()...)

	be.NilErr(t, h.Fire(context.Background()))
	be.AllEqual(t, []string{
		"No such port: nope",
		"No such input: missing",
		"No such parameter: absent",
		"No such parameter: in",
		"custom failure",
	}, rec.errs())

	err := h.loop.Do(context.Background(), func() error {
		_, err := h.rt.RunString(`getParameter(42)`)
		return err
	})
	be.Nonzero(t, err)
	be.In(t, "name argument is required to be a string. Got: number", err.Error())

	err = h.loop.Do(context.Background(), func() error {
		_, err := h.rt.RunString(`getParameter('nothing')`)
		return err
	})
	be.In(t, "No such parameter: nothing", err.Error())

	err = h.loop.Do(context.Background(), func() error {
		v, err := h.rt.RunString(`getParameter('p')`)
		if err == nil && v.String() != "v" {
			t.Errorf("unexpected parameter value %q", v.String())
		}
		return err
	})
	be.NilErr(t, err)
}

func TestSendToOwnInput(t *testing.T) {
	rec := newRecorder()
	startHost(t, "Loopback", `
		exports.setup = function() {
			this.input('trigger');
			this.output('echo');
		};
		exports.initialize = function() {
			var self = this;
			this.addInputHandler('trigger', function(tag) {
				self.send('echo', tag + ':' + self.get('trigger'));
			}, 'seen');
			this.send('trigger', 'self');
		};
	`, rec.options()...)

	out := rec.next(t)
	be.Equal(t, "echo", out.port)
	be.Equal(t, models.Token(models.StringToken("seen:self")), out.token)
}

func TestAnyInputHandlerAndRemove(t *testing.T) {
	rec := newRecorder()
	h := startHost(t, "Any", `
		var handle;
		exports.setup = function() {
			this.input('a');
			this.input('b');
			this.output('which');
		};
		exports.initialize = function() {
			var self = this;
			handle = this.addInputHandler(null, function() {
				self.send('which', self.get('a') === null ? 'b' : 'a');
			});
			this.addInputHandler('b', function() {
				removeInputHandler(handle);
			});
		};
	`, rec.options()...)

	be.NilErr(t, h.Provide(context.Background(), "a", models.IntToken(1)))
	be.Equal(t, models.Token(models.StringToken("a")), rec.next(t).token)

	// the handler list of a firing is fixed when the firing starts
	be.NilErr(t, h.Provide(context.Background(), "b", models.IntToken(1)))
	be.Equal(t, models.Token(models.StringToken("b")), rec.next(t).token)

	be.NilErr(t, h.Provide(context.Background(), "a", models.IntToken(1)))
	select {
	case s := <-rec.outs:
		t.Fatalf("handler should have been removed, got %v", s)
	case <-time.After(100 * time.Millisecond):
	}
	be.Equal(t, 1, h.handlers.count())
}

func TestJSONPorts(t *testing.T) {
	rec := newRecorder()
	h := startHost(t, "Json", `
		exports.setup = function() {
			this.input('doc', {type: 'JSON'});
			this.output('field', {type: 'int'});
			this.output('reply', {type: 'JSON'});
		};
		exports.fire = function() {
			var d = get('doc');
			if (d !== null) {
				send('field', d.a);
				send('reply', {b: [d.a, 2]});
			}
		};
	`, rec.options()...)

	be.NilErr(t, h.Provide(context.Background(), "doc", models.StringToken(`{"a":7}`)))
	be.Equal(t, models.Token(models.IntToken(7)), rec.next(t).token)
	be.Equal(t, models.Token(models.StringToken(`{"b":[7,2]}`)), rec.next(t).token)
}

func TestTimersAndWrapupCloseResources(t *testing.T) {
	rec := newRecorder()
	h := startHost(t, "Ticker", `
		var crypto = require('crypto');
		var n = 0;
		var ticker;
		exports.setup = function() {
			this.output('tick');
		};
		exports.initialize = function() {
			ticker = setInterval(function() {
				n++;
				send('tick', n);
				if (n === 3) {
					clearInterval(ticker);
					setTimeout(function(label) { send('tick', label); }, 5, 'done');
				}
			}, 5);
			setTimeout(function() { send('tick', 'never'); }, 60000);
		};
	`, rec.options()...)

	for i := 1; i <= 3; i++ {
		be.Equal(t, models.Token(models.IntToken(int32(i))), rec.next(t).token)
	}
	be.Equal(t, models.Token(models.StringToken("done")), rec.next(t).token)

	be.Equal(t, 1, h.Resources().Len())
	be.NilErr(t, h.Wrapup(context.Background()))
	be.Equal(t, 0, h.Resources().Len())
	be.Equal(t, 0, h.timers.count())
}

func TestLoadFileFromModulePath(t *testing.T) {
	dir := t.TempDir()
	be.NilErr(t, os.WriteFile(filepath.Join(dir, "helper.js"), []byte(`
		exports.double = function(x) { return x * 2; };
	`), 0o644))
	be.NilErr(t, os.WriteFile(filepath.Join(dir, "Doubler.js"), []byte(`
		var helper = require('helper');
		exports.setup = function() {
			this.input('in');
			this.output('out');
		};
		exports.fire = function() {
			send('out', helper.double(get('in')));
		};
	`), 0o644))

	rec := newRecorder()
	opts := append(rec.options(), WithModulePath(dir))
	h, err := NewHost("Doubler", opts...)
	be.NilErr(t, err)
	defer func() { _ = h.Shutdown() }()

	be.NilErr(t, h.LoadFile(context.Background(), "Doubler"))
	be.Equal(t, ErrAlreadyLoaded, h.Load(context.Background(), ""))
	be.NilErr(t, h.Provide(context.Background(), "in", models.DoubleToken(1.25)))
	be.Equal(t, models.Token(models.DoubleToken(2.5)), rec.next(t).token)

	other, err := NewHost("Other", WithModulePath(dir))
	be.NilErr(t, err)
	defer func() { _ = other.Shutdown() }()
	err = other.LoadFile(context.Background(), "Missing")
	be.True(t, strings.Contains(err.Error(), "Missing.js"))
}

func TestExtraModule(t *testing.T) {
	rec := newRecorder()
	startHost(t, "Extra", `
		var greeter = require('greeter');
		exports.setup = function() { this.output('out'); };
		exports.initialize = function() { send('out', greeter.greet('accessor')); };
	`, append(rec.options(), WithModule("greeter", func(rt *goja.Runtime, module *goja.Object) {
		exports := module.Get("exports").(*goja.Object)
		_ = exports.Set("greet", func(name string) string { return "hello " + name })
	}))...)

	be.Equal(t, models.Token(models.StringToken("hello accessor")), rec.next(t).token)
}

func startNatsServer(t testing.TB) *nats.Conn {
	t.Helper()

	s, err := server.NewServer(&server.Options{Port: -1})
	be.NilErr(t, err)
	go s.Start()
	be.True(t, s.ReadyForConnections(5*time.Second))
	t.Cleanup(s.Shutdown)

	nc, err := nats.Connect(s.ClientURL())
	be.NilErr(t, err)
	t.Cleanup(nc.Close)
	return nc
}

func TestServeControlEndpoints(t *testing.T) {
	nc := startNatsServer(t)

	beats, err := nc.SubscribeSync(models.HeartbeatSubject("HOST1"))
	be.NilErr(t, err)
	loaded, err := nc.SubscribeSync(models.EventSubject("HOST1", "LOADED"))
	be.NilErr(t, err)
	outputs, err := nc.SubscribeSync(models.EventSubject("HOST1", "OUTPUT"))
	be.NilErr(t, err)

	h := startHost(t, "Remote", `
		exports.setup = function() {
			this.input('in', {type: 'JSON', description: 'anything'});
			this.output('out');
		};
		exports.fire = function() { send('out', get('in').name); };
	`,
		WithHostId("HOST1"),
		WithNatsConn(nc),
		WithEventEmitter(eventemitter.NewNatsEmitter(context.Background(), nc)),
	)
	be.NilErr(t, h.Serve(20*time.Millisecond))

	msg, err := loaded.NextMsg(time.Second)
	be.NilErr(t, err)
	var ev models.AccessorLoadedEvent
	be.NilErr(t, json.Unmarshal(msg.Data, &ev))
	be.Equal(t, "Remote", ev.Name)
	be.AllEqual(t, []string{"out"}, ev.Outputs)

	resp, err := nc.Request(models.PingSubject("HOST1"), nil, time.Second)
	be.NilErr(t, err)
	var ping models.HostPingResponse
	be.NilErr(t, json.Unmarshal(resp.Data, &ping))
	be.Equal(t, "Remote", ping.Accessor)

	resp, err = nc.Request(models.InfoSubject("HOST1"), nil, time.Second)
	be.NilErr(t, err)
	var info models.HostInfoResponse
	be.NilErr(t, json.Unmarshal(resp.Data, &info))
	be.Equal(t, 1, len(info.Inputs))
	be.Equal(t, "anything", info.Inputs[0].Description)

	req, _ := json.Marshal(models.ProvideRequest{Input: "in", Value: json.RawMessage(`{"name":"lamp"}`)})
	resp, err = nc.Request(models.ProvideSubject("HOST1"), req, time.Second)
	be.NilErr(t, err)
	var pr models.ProvideResponse
	be.NilErr(t, json.Unmarshal(resp.Data, &pr))
	be.True(t, pr.Accepted)

	msg, err = outputs.NextMsg(time.Second)
	be.NilErr(t, err)
	var out models.OutputSentEvent
	be.NilErr(t, json.Unmarshal(msg.Data, &out))
	be.Equal(t, "out", out.Port)
	be.Equal(t, `"lamp"`, out.Value)

	req, _ = json.Marshal(models.ProvideRequest{Input: "bogus"})
	resp, err = nc.Request(models.ProvideSubject("HOST1"), req, time.Second)
	be.NilErr(t, err)
	be.Equal(t, "404", resp.Header.Get("Nats-Service-Error-Code"))

	var hb models.HostHeartbeat
	deadline := time.Now().Add(2 * time.Second)
	for hb.Firings == 0 && time.Now().Before(deadline) {
		msg, err = beats.NextMsg(time.Second)
		be.NilErr(t, err)
		be.NilErr(t, json.Unmarshal(msg.Data, &hb))
	}
	be.Equal(t, "HOST1", hb.HostId)
	be.Equal(t, int64(1), hb.Firings)
}

func TestServeNeedsNats(t *testing.T) {
	h, err := NewHost("Offline")
	be.NilErr(t, err)
	defer func() { _ = h.Shutdown() }()
	be.Equal(t, ErrNoNatsConn, h.Serve(0))
}

func TestRuntimeHasHostTimersOnly(t *testing.T) {
	rec := newRecorder()
	startHost(t, "Globals", `
		exports.setup = function() {
			this.output('kinds');
		};
		exports.initialize = function() {
			send('kinds', [typeof setTimeout, typeof clearInterval, typeof setImmediate].join(','));
		};
	`, rec.options()...)

	be.Equal(t, models.Token(models.StringToken("function,function,undefined")), rec.next(t).token)
}
