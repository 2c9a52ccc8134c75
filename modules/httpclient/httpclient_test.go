package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
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

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/hello", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc"})
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, "hello "+r.URL.Query().Get("name"))
	})
	mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		body, _ := io.ReadAll(r.Body)
		_, _ = w.Write(body)
	})
	mux.HandleFunc("/bytes", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte{1, 2, 3})
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nothing here", http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestResolveURL(t *testing.T) {
	opts := DefaultOptions()
	opts.URL = map[string]any{
		"host":  "example.com",
		"port":  8080,
		"path":  "search",
		"query": map[string]any{"q": "go", "page": 2},
	}
	u, err := opts.ResolveURL()
	be.NilErr(t, err)
	be.Equal(t, "http://example.com:8080/search?page=2&q=go", u.String())

	opts.URL = nil
	u, err = opts.ResolveURL()
	be.NilErr(t, err)
	be.Equal(t, "http://localhost:80/", u.String())

	opts.URL = "not a url"
	_, err = opts.ResolveURL()
	be.Nonzero(t, err)
}

func TestParseOptions(t *testing.T) {
	opts, err := ParseOptions(map[string]any{"method": "post", "timeout": 100})
	be.NilErr(t, err)
	be.Equal(t, "POST", opts.Method)
	be.Equal(t, 100*time.Millisecond, opts.timeout())

	_, err = ParseOptions(42)
	be.Nonzero(t, err)
}

func TestGetText(t *testing.T) {
	srv := testServer(t)
	client := NewClient(modules.Env{}, nil)

	opts, err := ParseOptions(srv.URL + "/hello?name=go")
	be.NilErr(t, err)
	req, err := client.Request(opts)
	be.NilErr(t, err)

	responses := make(chan *IncomingMessage, 1)
	req.Emitter().On(models.EventResponse, func(args ...any) { responses <- args[0].(*IncomingMessage) })
	req.End()

	msg := receive(t, responses)
	be.Equal(t, 200, msg.StatusCode)
	be.Equal(t, "OK", msg.StatusMessage)
	be.Equal(t, any("hello go"), msg.Body)
	be.Equal(t, 1, len(msg.Cookies))
	be.In(t, "session=abc", msg.Cookies[0])
	be.Equal(t, "text/plain", msg.Headers["content-type"])
}

func TestPostJSON(t *testing.T) {
	srv := testServer(t)
	client := NewClient(modules.Env{}, nil)

	opts := DefaultOptions()
	opts.URL = srv.URL + "/echo"
	opts.Body = models.NewRecordToken(map[string]models.Token{"n": models.IntToken(1)})

	responses := make(chan *IncomingMessage, 1)
	req, err := client.Request(opts)
	be.NilErr(t, err)
	req.Emitter().On(models.EventResponse, func(args ...any) { responses <- args[0].(*IncomingMessage) })
	req.opts.Method = http.MethodPost
	req.End()

	be.Equal(t, any(`{"n":1}`), receive(t, responses).Body)
	be.Equal(t, ErrWriteAfterEnd, req.Write(models.StringToken("late")))
}

func TestBinaryBody(t *testing.T) {
	srv := testServer(t)
	client := NewClient(modules.Env{}, nil)

	opts, _ := ParseOptions(srv.URL + "/bytes")
	req, err := client.Request(opts)
	be.NilErr(t, err)
	responses := make(chan *IncomingMessage, 1)
	req.Emitter().On(models.EventResponse, func(args ...any) { responses <- args[0].(*IncomingMessage) })
	req.End()

	be.AllEqual(t, []byte{1, 2, 3}, receive(t, responses).Body.([]byte))
}

func TestErrorStatusStillResponds(t *testing.T) {
	srv := testServer(t)
	client := NewClient(modules.Env{}, nil)

	opts, _ := ParseOptions(srv.URL + "/missing")
	req, err := client.Request(opts)
	be.NilErr(t, err)

	events := make(chan string, 2)
	var errText string
	req.Emitter().On(models.EventError, func(args ...any) {
		errText = args[0].(string)
		events <- models.EventError
	})
	req.Emitter().On(models.EventResponse, func(...any) { events <- models.EventResponse })
	req.End()

	be.Equal(t, models.EventError, receive(t, events))
	be.Equal(t, "Received response code 404. Not Found", errText)
	be.Equal(t, models.EventResponse, receive(t, events))
}

func TestTransportFailure(t *testing.T) {
	client := NewClient(modules.Env{}, nil)
	opts, _ := ParseOptions("http://127.0.0.1:1/")
	req, err := client.Request(opts)
	be.NilErr(t, err)

	errs := make(chan any, 1)
	req.Emitter().On(models.EventError, func(args ...any) { errs <- args[0] })
	req.End()
	be.Nonzero(t, receive(t, errs))
}

func TestStopSuppressesEvents(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(block) })

	client := NewClient(modules.Env{}, nil)
	opts, _ := ParseOptions(srv.URL)
	req, err := client.Request(opts)
	be.NilErr(t, err)

	events := make(chan string, 2)
	req.Emitter().On(models.EventError, func(...any) { events <- models.EventError })
	req.Emitter().On(models.EventResponse, func(...any) { events <- models.EventResponse })
	req.End()
	req.Stop()

	select {
	case ev := <-events:
		t.Fatalf("unexpected %s event after stop", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestScriptBinding(t *testing.T) {
	srv := testServer(t)

	l := loop.New(nil)
	l.Start(context.Background())
	t.Cleanup(func() {
		l.Stop()
		l.Wait(time.Second)
	})
	env := modules.Env{Dispatcher: l}

	rt := goja.New()
	registry := require.NewRegistry()
	registry.RegisterNativeModule(ModuleName, Loader(env, nil))
	registry.Enable(rt)

	results := make(chan string, 2)
	be.NilErr(t, rt.Set("report", func(s string) { results <- s }))
	be.NilErr(t, rt.Set("base", srv.URL))

	err := l.Do(context.Background(), func() error {
		_, err := rt.RunString(`
			var http = require('httpClient');
			http.get(base + '/hello?name=script', function(msg) {
				report(msg.statusCode + ':' + msg.body);
			});
			http.post({url: base + '/echo', body: {x: [1, 2]}}, function(msg) {
				report(msg.body);
			});
		`)
		return err
	})
	be.NilErr(t, err)

	got := map[string]bool{receive(t, results): true, receive(t, results): true}
	be.True(t, got["200:hello script"])
	be.True(t, got[`{"x":[1,2]}`])
}
