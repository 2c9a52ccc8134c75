package builtins

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	hostservices "github.com/synadia-io/accessorhost/host-services"
	"github.com/synadia-io/accessorhost/modules/discovery"
	"github.com/synadia-io/accessorhost/modules/httpclient"
)

const (
	builtinServiceNameHttpClient = "http"
	builtinServiceNameDiscovery  = "discovery"
	builtinServiceNameBus        = "bus"
)

// Register adds the http, discovery and bus services to server. A nil
// discovery service leaves discovery out.
func Register(server *hostservices.Server, nc *nats.Conn, http *httpclient.Client, disc *discovery.Service, log *slog.Logger) error {
	if err := server.AddService(builtinServiceNameHttpClient, NewHTTPService(http, log), nil); err != nil {
		return err
	}
	if err := server.AddService(builtinServiceNameBus, NewBusService(nc, log), nil); err != nil {
		return err
	}
	if disc != nil {
		return server.AddService(builtinServiceNameDiscovery, NewDiscoveryService(disc, log), nil)
	}
	return nil
}

type BuiltinServicesClient struct {
	hsClient *hostservices.Client
}

func NewBuiltinServicesClient(hsClient *hostservices.Client) *BuiltinServicesClient {
	return &BuiltinServicesClient{
		hsClient: hsClient,
	}
}

func (c *BuiltinServicesClient) call(ctx context.Context, service, method string, payload []byte, metadata map[string]string) ([]byte, error) {
	resp, err := c.hsClient.PerformRPC(ctx, service, method, payload, metadata)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, resp.Error()
	}
	return resp.Data, nil
}

// HTTPRequest runs method (get, post, put, delete or head) against url
// from the host.
func (c *BuiltinServicesClient) HTTPRequest(ctx context.Context, method, url string, headers map[string]string, payload []byte) (*HTTPResponse, error) {
	metadata := map[string]string{
		HTTPURLHeader: url,
	}
	for k, v := range headers {
		metadata[HTTPHeaderPrefix+strings.ToLower(k)] = v
	}

	data, err := c.call(ctx, builtinServiceNameHttpClient, strings.ToLower(method), payload, metadata)
	if err != nil {
		return nil, err
	}
	var resp HTTPResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *BuiltinServicesClient) Discover(ctx context.Context, subnet string) ([]discovery.Device, error) {
	data, err := c.call(ctx, builtinServiceNameDiscovery, discoveryServiceMethodDiscover, []byte(subnet), nil)
	if err != nil {
		return nil, err
	}
	var devices []discovery.Device
	if err := json.Unmarshal(data, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

func (c *BuiltinServicesClient) HostAddress(ctx context.Context) (string, error) {
	data, err := c.call(ctx, builtinServiceNameDiscovery, discoveryServiceMethodHost, nil, nil)
	return string(data), err
}

func (c *BuiltinServicesClient) BusPublish(ctx context.Context, topic string, payload []byte) error {
	_, err := c.call(ctx, builtinServiceNameBus, busServiceMethodPublish, payload, map[string]string{
		BusTopicHeader: topic,
	})
	return err
}

func (c *BuiltinServicesClient) BusRequest(ctx context.Context, topic string, payload []byte, timeout time.Duration) ([]byte, error) {
	metadata := map[string]string{BusTopicHeader: topic}
	if timeout > 0 {
		metadata[BusTimeoutHeader] = strconv.FormatInt(timeout.Milliseconds(), 10)
	}
	return c.call(ctx, builtinServiceNameBus, busServiceMethodRequest, payload, metadata)
}

func (c *BuiltinServicesClient) RawClient() *hostservices.Client {
	return c.hsClient
}
