package hostservices

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/synadia-io/accessorhost/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type Server struct {
	nc     *nats.Conn
	log    *slog.Logger
	tracer trace.Tracer

	mu       sync.RWMutex
	services map[string]HostService
	sub      *nats.Subscription
}

func NewServer(nc *nats.Conn, log *slog.Logger) *Server {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{
		nc:       nc,
		log:      log,
		tracer:   otel.Tracer("accessorhost-hostservices"),
		services: make(map[string]HostService),
	}
}

// WithTracer replaces the global tracer for server spans.
func (h *Server) WithTracer(t trace.Tracer) *Server {
	h.tracer = t
	return h
}

func (h *Server) AddService(name string, svc HostService, config []byte) error {
	err := svc.Initialize(config)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.services[name] = svc
	h.mu.Unlock()

	return nil
}

// Services lists the registered service names.
func (h *Server) Services() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.services))
	for n := range h.services {
		names = append(names, n)
	}
	return names
}

func (h *Server) Start() error {
	sub, err := h.nc.Subscribe(models.HostServicesRPCFilter, h.handleRPC)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.sub = sub
	h.mu.Unlock()

	return nil
}

func (h *Server) Stop() error {
	h.mu.Lock()
	sub := h.sub
	h.sub = nil
	h.mu.Unlock()
	if sub == nil {
		return nil
	}
	return sub.Unsubscribe()
}

func (h *Server) handleRPC(msg *nats.Msg) {
	// accessorint.{hostId}.rpc.{namespace}.{accessor}.{service}.{method}
	tokens := strings.Split(msg.Subject, ".")
	if len(tokens) != 7 {
		_ = msg.RespondMsg(serverFailMessage(msg.Reply, 400, "Malformed host service subject"))
		return
	}
	req := Request{
		HostId:    tokens[1],
		Namespace: tokens[3],
		Accessor:  tokens[4],
		Method:    tokens[6],
		Data:      msg.Data,
	}
	serviceName := tokens[5]

	ctx := otel.GetTextMapPropagator().Extract(context.Background(), propagation.HeaderCarrier(msg.Header))
	ctx, span := h.tracer.Start(ctx, "host service "+serviceName+"."+req.Method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("namespace", req.Namespace),
			attribute.String("accessor", req.Accessor),
		),
	)
	defer span.End()

	h.mu.RLock()
	service, ok := h.services[serviceName]
	h.mu.RUnlock()
	if !ok {
		span.SetStatus(codes.Error, "no such service")
		serverMsg := serverFailMessage(msg.Reply, 404, fmt.Sprintf("No such host service: %s", serviceName))
		_ = msg.RespondMsg(serverMsg)
		return
	}

	req.Metadata = make(map[string]string, len(msg.Header))
	for k, v := range msg.Header {
		req.Metadata[k] = v[0]
	}

	result, err := service.HandleRequest(ctx, req)
	if err != nil {
		h.log.Warn("host service method failed",
			slog.String("service", serviceName),
			slog.String("method", req.Method),
			slog.Any("err", err),
		)
		span.SetStatus(codes.Error, err.Error())
		serverMsg := serverFailMessage(msg.Reply, 500, fmt.Sprintf("Failed to execute host service method: %s", err.Error()))
		_ = msg.RespondMsg(serverMsg)
		return
	}

	message := result.Message
	if message == "" {
		message = messageOk
	}
	serverMsg := serverSuccessMessage(msg.Reply, result.Code, result.Data, message)
	_ = msg.RespondMsg(serverMsg)
}

func serverFailMessage(reply string, code uint, message string) *nats.Msg {
	msg := nats.NewMsg(reply)
	msg.Header.Set(headerCode, fmt.Sprintf("%d", code))
	msg.Header.Set(headerMessage, message)

	return msg
}

func serverSuccessMessage(reply string, code uint, data []byte, message string) *nats.Msg {
	msg := nats.NewMsg(reply)
	msg.Header.Set(headerCode, fmt.Sprintf("%d", code))
	msg.Header.Set(headerMessage, message)
	msg.Data = data

	return msg
}
