package builtins

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	hostservices "github.com/synadia-io/accessorhost/host-services"
)

const (
	busServiceMethodPublish = "publish"
	busServiceMethodRequest = "request"

	// BusTopicHeader names the topic of a bus call.
	BusTopicHeader = "x-accessor-bus-topic"
	// BusTimeoutHeader is the request timeout in ms.
	BusTimeoutHeader = "x-accessor-bus-timeout"

	busRequestTimeout = 500 * time.Millisecond
)

type BusResponse struct {
	Success bool `json:"success"`
}

// BusService publishes and requests on the host's NATS connection on
// behalf of remote accessors.
type BusService struct {
	log *slog.Logger
	nc  *nats.Conn
}

func NewBusService(nc *nats.Conn, log *slog.Logger) *BusService {
	return &BusService{
		log: log,
		nc:  nc,
	}
}

func (m *BusService) Initialize(_ json.RawMessage) error {
	return nil
}

func (m *BusService) HandleRequest(ctx context.Context, req hostservices.Request) (hostservices.ServiceResult, error) {
	switch req.Method {
	case busServiceMethodPublish:
		return m.handlePublish(req)
	case busServiceMethodRequest:
		return m.handleRequest(ctx, req)
	default:
		m.log.Warn("Received invalid host services RPC request",
			slog.String("service", "bus"),
			slog.String("method", req.Method),
		)
		return hostservices.ServiceResultFail(400, "unknown method"), nil
	}
}

func (m *BusService) handlePublish(req hostservices.Request) (hostservices.ServiceResult, error) {
	topic := req.Metadata[BusTopicHeader]
	if topic == "" {
		return hostservices.ServiceResultFail(400, "topic is required"), nil
	}

	err := m.nc.Publish(topic, req.Data)
	if err != nil {
		m.log.Warn(fmt.Sprintf("failed to publish %d-byte message on topic %s: %s", len(req.Data), topic, err.Error()))
		return hostservices.ServiceResultFail(500, "failed to publish message"), nil
	}
	resp, _ := json.Marshal(&BusResponse{
		Success: true,
	})

	return hostservices.ServiceResultPass(200, "", resp), nil
}

func (m *BusService) handleRequest(ctx context.Context, req hostservices.Request) (hostservices.ServiceResult, error) {
	topic := req.Metadata[BusTopicHeader]
	if topic == "" {
		return hostservices.ServiceResultFail(400, "topic is required"), nil
	}

	timeout := busRequestTimeout
	if ms, err := strconv.Atoi(req.Metadata[BusTimeoutHeader]); err == nil && ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := m.nc.RequestWithContext(ctx, topic, req.Data)
	if err != nil {
		m.log.Debug(fmt.Sprintf("failed to send %d-byte request on topic %s: %s", len(req.Data), topic, err.Error()))
		return hostservices.ServiceResultFail(500, "failed to send request"), nil
	}

	m.log.Debug(fmt.Sprintf("received %d-byte response to request on topic: %s", len(resp.Data), topic))
	return hostservices.ServiceResultPass(200, "", resp.Data), nil
}
