package hostservices

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/carlmjohnson/be"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	testHostId    = "abc12346"
	testNamespace = "testspace"
	testAccessor  = "testaccessor"
)

func setupSuite(t *testing.T) *nats.Conn {
	t.Helper()
	svr, err := server.NewServer(&server.Options{Port: -1})
	be.NilErr(t, err)
	go svr.Start()
	be.True(t, svr.ReadyForConnections(5*time.Second))
	t.Cleanup(svr.Shutdown)

	nc, err := nats.Connect(svr.ClientURL())
	be.NilErr(t, err)
	t.Cleanup(nc.Close)
	return nc
}

type bogusService struct {
	config  json.RawMessage
	code    uint
	message string
	data    []byte
	last    Request
	ctx     context.Context
}

func (b *bogusService) Initialize(config json.RawMessage) error {
	b.config = config
	return nil
}

func (b *bogusService) HandleRequest(ctx context.Context, req Request) (ServiceResult, error) {
	b.last = req
	b.ctx = ctx
	if b.code == 42 {
		return ServiceResult{}, errors.New("faily fail fail")
	}
	return ServiceResultPass(b.code, b.message, b.data), nil
}

func TestBogusService(t *testing.T) {
	nc := setupSuite(t)

	srv := NewServer(nc, nil)
	client := NewClient(nc, 2*time.Second, testHostId, testNamespace, testAccessor)

	boguss := &bogusService{code: 99, message: "howdy", data: []byte{1, 2, 3, 4, 5, 6}}
	be.NilErr(t, srv.AddService("boguss", boguss, []byte(`{"a":1}`)))
	be.NilErr(t, srv.Start())
	be.Equal(t, `{"a":1}`, string(boguss.config))

	result, err := client.PerformRPC(context.Background(), "boguss", "test", []byte{9, 9, 9}, map[string]string{"x-extra": "yes"})
	be.NilErr(t, err)
	be.AllEqual(t, []byte{1, 2, 3, 4, 5, 6}, result.Data)
	be.Equal(t, uint(99), result.Code)
	be.Equal(t, "howdy", result.Message)
	be.True(t, result.IsError())

	be.Equal(t, testHostId, boguss.last.HostId)
	be.Equal(t, testNamespace, boguss.last.Namespace)
	be.Equal(t, testAccessor, boguss.last.Accessor)
	be.Equal(t, "test", boguss.last.Method)
	be.Equal(t, "yes", boguss.last.Metadata["X-Extra"])
	be.AllEqual(t, []byte{9, 9, 9}, boguss.last.Data)
}

func TestServiceError(t *testing.T) {
	nc := setupSuite(t)

	srv := NewServer(nc, nil)
	client := NewClient(nc, 2*time.Second, testHostId, testNamespace, testAccessor)
	be.NilErr(t, srv.AddService("boguss", &bogusService{code: 42}, nil))
	be.NilErr(t, srv.Start())

	result, err := client.PerformRPC(context.Background(), "boguss", "test", nil, nil)
	be.NilErr(t, err)
	be.Equal(t, uint(500), result.Code)
	be.Equal(t, "Failed to execute host service method: faily fail fail", result.Message)

	result, err = client.PerformRPC(context.Background(), "missing", "test", nil, nil)
	be.NilErr(t, err)
	be.Equal(t, uint(404), result.Code)
	be.Equal(t, "No such host service: missing", result.Message)
}

func TestStopAndTimeout(t *testing.T) {
	nc := setupSuite(t)

	srv := NewServer(nc, nil)
	be.NilErr(t, srv.AddService("boguss", &bogusService{code: 200}, nil))
	be.NilErr(t, srv.Start())
	be.NilErr(t, srv.Stop())
	be.NilErr(t, srv.Stop())

	client := NewClient(nc, 100*time.Millisecond, testHostId, testNamespace, testAccessor)
	_, err := client.PerformRPC(context.Background(), "boguss", "test", nil, nil)
	be.Nonzero(t, err)
}

func TestTracePropagation(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	nc := setupSuite(t)

	srv := NewServer(nc, nil)
	boguss := &bogusService{code: 200}
	be.NilErr(t, srv.AddService("boguss", boguss, nil))
	be.NilErr(t, srv.Start())

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	client := NewClient(nc, 2*time.Second, testHostId, testNamespace, testAccessor)
	result, err := client.PerformRPC(ctx, "boguss", "test", nil, nil)
	be.NilErr(t, err)
	be.False(t, result.IsError())
	be.Equal(t, messageOk, result.Message)
	be.Nonzero(t, boguss.last.Metadata["Traceparent"])
	be.Equal(t, traceID, trace.SpanContextFromContext(boguss.ctx).TraceID())
}
