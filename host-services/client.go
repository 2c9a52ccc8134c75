package hostservices

import (
	"context"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/synadia-io/accessorhost/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

type Client struct {
	nc        *nats.Conn
	hostId    string
	namespace string
	accessor  string
	timeout   time.Duration
}

func NewClient(nc *nats.Conn, timeout time.Duration, hostId, namespace, accessor string) *Client {
	return &Client{
		nc:        nc,
		hostId:    hostId,
		namespace: namespace,
		accessor:  accessor,
		timeout:   timeout,
	}
}

// PerformRPC calls method on service. ctx bounds the call together with
// the client timeout, and its span context travels in the headers.
func (c *Client) PerformRPC(ctx context.Context, service string, method string, payload []byte, metadata map[string]string) (ServiceResult, error) {
	subject := models.HostServiceSubject(c.hostId, c.namespace, c.accessor, service, method)

	msg := nats.NewMsg(subject)
	msg.Data = payload

	for k, v := range metadata {
		msg.Header.Set(k, v)
	}

	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(msg.Header))

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	result, err := c.nc.RequestMsgWithContext(ctx, msg)
	if err != nil {
		return ServiceResult{}, err
	}
	code := result.Header.Get(headerCode)
	iCode, _ := strconv.Atoi(code)

	message := result.Header.Get(headerMessage)
	serviceResult := ServiceResult{
		Data:    result.Data,
		Message: message,
		Code:    uint(iCode),
	}

	return serviceResult, nil
}
