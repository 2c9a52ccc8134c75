package builtins

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	hostservices "github.com/synadia-io/accessorhost/host-services"
	"github.com/synadia-io/accessorhost/modules/discovery"
)

const (
	discoveryServiceMethodDiscover = "discover"
	discoveryServiceMethodHost     = "host"
)

// DiscoveryService sweeps this host's network for remote accessors. The
// request payload of discover is the subnet; empty means the host's own.
type DiscoveryService struct {
	log *slog.Logger
	svc *discovery.Service
}

func NewDiscoveryService(svc *discovery.Service, log *slog.Logger) *DiscoveryService {
	return &DiscoveryService{
		log: log,
		svc: svc,
	}
}

func (d *DiscoveryService) Initialize(_ json.RawMessage) error {
	return nil
}

func (d *DiscoveryService) HandleRequest(ctx context.Context, req hostservices.Request) (hostservices.ServiceResult, error) {
	switch req.Method {
	case discoveryServiceMethodDiscover:
		devices, err := d.svc.Discover(ctx, string(req.Data))
		if errors.Is(err, discovery.ErrInvalidSubnet) {
			return hostservices.ServiceResultFail(400, err.Error()), nil
		}
		if err != nil {
			return hostservices.ServiceResult{}, err
		}
		if devices == nil {
			devices = []discovery.Device{}
		}
		resp, _ := json.Marshal(devices)
		return hostservices.ServiceResultPass(200, "", resp), nil
	case discoveryServiceMethodHost:
		ip, err := d.svc.HostAddress()
		if err != nil {
			return hostservices.ServiceResult{}, err
		}
		return hostservices.ServiceResultPass(200, "", []byte(ip)), nil
	default:
		d.log.Warn("Received invalid host services RPC request",
			slog.String("service", "discovery"),
			slog.String("method", req.Method),
		)
		return hostservices.ServiceResultFail(400, "unknown method"), nil
	}
}
