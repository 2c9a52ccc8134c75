// Package httpclient issues HTTP requests on behalf of scripts. Requests
// run on their own goroutine and report back through response and error
// events.
package httpclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"

	"github.com/synadia-io/accessorhost/internal/convert"
	"github.com/synadia-io/accessorhost/internal/emitter"
	"github.com/synadia-io/accessorhost/internal/imagecodec"
	"github.com/synadia-io/accessorhost/models"
	"github.com/synadia-io/accessorhost/modules"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const moduleName = "httpClient"

var ErrWriteAfterEnd = errors.New("write after end")

// Doer sends a request. *http.Client satisfies it.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

type transportKey struct {
	trustAll  bool
	keepAlive bool
}

type Client struct {
	env  modules.Env
	doer Doer

	mu         sync.Mutex
	transports map[transportKey]http.RoundTripper
}

// NewClient builds a client. A nil doer means requests go out over
// instrumented transports built from each request's options.
func NewClient(env modules.Env, doer Doer) *Client {
	return &Client{
		env:        env.WithDefaults(),
		doer:       doer,
		transports: make(map[transportKey]http.RoundTripper),
	}
}

func (c *Client) doerFor(opts Options) Doer {
	if c.doer != nil {
		return c.doer
	}
	key := transportKey{trustAll: opts.TrustAll, keepAlive: opts.KeepAlive}

	c.mu.Lock()
	defer c.mu.Unlock()
	rt, ok := c.transports[key]
	if !ok {
		base := http.DefaultTransport.(*http.Transport).Clone()
		base.DisableKeepAlives = !opts.KeepAlive
		base.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: opts.TrustAll, //nolint:gosec
			MinVersion:         tls.VersionTLS12,
		}
		rt = otelhttp.NewTransport(base)
		c.transports[key] = rt
	}
	return &http.Client{Transport: rt}
}

// Request prepares a request. Nothing is sent until End.
func (c *Client) Request(opts Options) (*Request, error) {
	u, err := opts.ResolveURL()
	if err != nil {
		return nil, err
	}
	r := &Request{
		client: c,
		em:     c.env.NewEmitter("httpClient.ClientRequest"),
		opts:   opts,
		url:    u.String(),
	}
	if opts.Body != nil && !opts.Body.IsNil() {
		if err := r.Write(opts.Body); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Get sends a request with no body.
func (c *Client) Get(opts Options) (*Request, error) {
	r, err := c.Request(opts)
	if err != nil {
		return nil, err
	}
	r.End()
	return r, nil
}

// Post sends opts.Body with the POST method.
func (c *Client) Post(opts Options) (*Request, error) {
	opts.Method = http.MethodPost
	return c.Get(opts)
}

// Put sends opts.Body with the PUT method.
func (c *Client) Put(opts Options) (*Request, error) {
	opts.Method = http.MethodPut
	return c.Get(opts)
}

// Do sends a request built from opts and waits for the response. It emits
// no events, and status codes of 400 and above are not errors.
func (c *Client) Do(ctx context.Context, opts Options) (*IncomingMessage, error) {
	r, err := c.Request(opts)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.ended = true
	body := bytes.Clone(r.body.Bytes())
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, opts.timeout())
	defer cancel()
	return r.roundTrip(ctx, body)
}

// Request is one outgoing request, the ClientRequest of a script.
type Request struct {
	client *Client
	em     *emitter.Emitter
	opts   Options
	url    string

	mu          sync.Mutex
	body        bytes.Buffer
	contentType string
	ended       bool
	stopped     bool
	cancel      context.CancelFunc
	resID       uint64
}

func (r *Request) Emitter() *emitter.Emitter {
	return r.em
}

func (r *Request) URL() string {
	return r.url
}

// Write appends tok to the request body. Strings and bytes are written
// as they are; anything else as JSON.
func (r *Request) Write(tok models.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ended {
		return ErrWriteAfterEnd
	}
	switch t := tok.(type) {
	case models.StringToken:
		r.body.WriteString(string(t))
		r.defaultContentType("text/plain; charset=utf-8")
	case models.BytesToken:
		r.body.Write(t)
		r.defaultContentType("application/octet-stream")
	default:
		r.body.WriteString(convert.Stringify(tok))
		r.defaultContentType("application/json")
	}
	return nil
}

func (r *Request) defaultContentType(ct string) {
	if r.contentType == "" {
		r.contentType = ct
	}
}

// End sends the request.
func (r *Request) End() {
	r.mu.Lock()
	if r.ended {
		r.mu.Unlock()
		return
	}
	r.ended = true
	ctx, cancel := context.WithTimeout(context.Background(), r.opts.timeout())
	r.cancel = cancel
	body := bytes.Clone(r.body.Bytes())
	r.resID = r.client.env.Resources.Track(r)
	r.mu.Unlock()

	go r.do(ctx, body)
}

// Stop abandons the request. No further events are emitted.
func (r *Request) Stop() {
	r.mu.Lock()
	r.stopped = true
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (r *Request) Close() error {
	r.Stop()
	return nil
}

func (r *Request) isStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

func (r *Request) do(ctx context.Context, body []byte) {
	defer r.client.env.Resources.Release(r.resID)
	defer r.cancel()

	msg, err := r.roundTrip(ctx, body)
	if r.isStopped() {
		return
	}
	if err != nil {
		r.em.NotifyError(err)
		return
	}
	if msg.StatusCode >= 400 {
		r.em.NotifyError(fmt.Errorf("Received response code %d. %s", msg.StatusCode, msg.StatusMessage))
	}
	r.em.Notify(models.EventResponse, msg)
}

func (r *Request) roundTrip(ctx context.Context, body []byte) (*IncomingMessage, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, r.opts.Method, r.url, reader)
	if err != nil {
		return nil, err
	}
	for k, v := range r.opts.Headers {
		switch vv := v.(type) {
		case []any:
			for _, e := range vv {
				req.Header.Add(k, fmt.Sprint(e))
			}
		default:
			req.Header.Set(k, fmt.Sprint(vv))
		}
	}
	if len(body) > 0 && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	resp, err := r.client.doerFor(r.opts).Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	r.client.env.Telemetry.RecordBytesReceived(ctx, moduleName, len(data))
	return newIncomingMessage(resp, data), nil
}

// IncomingMessage is a received response.
type IncomingMessage struct {
	Body          any
	Cookies       []string
	Headers       map[string]string
	StatusCode    int
	StatusMessage string
	// Raw is the body as received.
	Raw []byte
}

func newIncomingMessage(resp *http.Response, data []byte) *IncomingMessage {
	msg := &IncomingMessage{
		Headers:       make(map[string]string, len(resp.Header)),
		StatusCode:    resp.StatusCode,
		StatusMessage: strings.TrimSpace(strings.TrimPrefix(resp.Status, fmt.Sprint(resp.StatusCode))),
		Raw:           data,
	}
	if msg.StatusMessage == "" {
		msg.StatusMessage = http.StatusText(resp.StatusCode)
	}
	for k, v := range resp.Header {
		msg.Headers[strings.ToLower(k)] = strings.Join(v, ", ")
	}
	for _, ck := range resp.Cookies() {
		msg.Cookies = append(msg.Cookies, ck.String())
	}
	msg.Body = decodeBody(resp.Header.Get("Content-Type"), data)
	return msg
}

// decodeBody gives text and JSON bodies as strings, images as images and
// anything else as bytes. A missing content type counts as text.
func decodeBody(contentType string, data []byte) any {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch {
	case mt == "", strings.HasPrefix(mt, "text/"), mt == "application/json", strings.HasSuffix(mt, "+json"):
		return string(data)
	case strings.HasPrefix(mt, "image/"):
		if img, _, err := imagecodec.Decode(data); err == nil {
			return models.ImageToken{Image: img}
		}
	}
	return data
}
