package accessorhost

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dop251/goja_nodejs/require"
	"github.com/nats-io/nats.go"
	"github.com/synadia-io/accessorhost/host-services/builtins"
	"github.com/synadia-io/accessorhost/internal/idgen"
	"github.com/synadia-io/accessorhost/internal/observability"
	"github.com/synadia-io/accessorhost/models"
	"github.com/synadia-io/accessorhost/modules/audio"
	"github.com/synadia-io/accessorhost/modules/crypto"
	"github.com/synadia-io/accessorhost/modules/discovery"
	"github.com/synadia-io/accessorhost/modules/httpclient"
	"github.com/synadia-io/accessorhost/modules/socket"
)

func WithContext(ctx context.Context) HostOption {
	return func(h *Host) error {
		h.ctx = ctx
		return nil
	}
}

func WithLogger(logger *slog.Logger) HostOption {
	return func(h *Host) error {
		if logger != nil {
			h.logger = logger
		}
		return nil
	}
}

func WithHostId(id string) HostOption {
	return func(h *Host) error {
		if id == "" {
			return errors.New("host id can not be empty")
		}
		h.hostId = id
		return nil
	}
}

func WithIDGen(gen idgen.Generator) HostOption {
	return func(h *Host) error {
		h.idgen = gen
		return nil
	}
}

func WithVersion(version string) HostOption {
	return func(h *Host) error {
		h.version = version
		return nil
	}
}

// WithModulePath sets the folders searched for accessor sources and for
// modules that scripts require by name.
func WithModulePath(paths ...string) HostOption {
	return func(h *Host) error {
		h.modulePath = append(h.modulePath, paths...)
		return nil
	}
}

// WithModule makes an extra native module available to require.
func WithModule(name string, loader require.ModuleLoader) HostOption {
	return func(h *Host) error {
		if name == "" || loader == nil {
			return errors.New("module needs a name and a loader")
		}
		h.extraModules[name] = loader
		return nil
	}
}

func WithNatsConn(nc *nats.Conn) HostOption {
	return func(h *Host) error {
		if nc != nil {
			h.nc = nc
		}
		return nil
	}
}

func WithTelemetry(t *observability.Telemetry) HostOption {
	return func(h *Host) error {
		h.telemetry = t
		return nil
	}
}

func WithEventEmitter(e models.EventEmitter) HostOption {
	return func(h *Host) error {
		if e != nil {
			h.events = e
		}
		return nil
	}
}

// WithErrorHandler receives every message passed to the script's error().
func WithErrorHandler(f func(message string)) HostOption {
	return func(h *Host) error {
		h.errorHandler = f
		return nil
	}
}

// WithOutputHandler receives every token sent on an output.
func WithOutputHandler(f func(port string, channel int, t models.Token)) HostOption {
	return func(h *Host) error {
		h.outputHandlers = append(h.outputHandlers, f)
		return nil
	}
}

func WithHTTPDoer(d httpclient.Doer) HostOption {
	return func(h *Host) error {
		h.providers.doer = d
		return nil
	}
}

func WithSocketTransport(t socket.Transport) HostOption {
	return func(h *Host) error {
		h.providers.transport = t
		return nil
	}
}

func WithDiscoveryProber(p discovery.Prober) HostOption {
	return func(h *Host) error {
		h.providers.prober = p
		return nil
	}
}

func WithAudioDevices(d audio.Devices) HostOption {
	return func(h *Host) error {
		h.providers.devices = d
		return nil
	}
}

func WithCryptoProvider(p crypto.Provider) HostOption {
	return func(h *Host) error {
		h.providers.crypto = p
		return nil
	}
}

// WithHostServices gives scripts require('hostServices'), backed by a
// remote host reached through client.
func WithHostServices(client *builtins.BuiltinServicesClient) HostOption {
	return func(h *Host) error {
		h.providers.hostServices = client
		return nil
	}
}
