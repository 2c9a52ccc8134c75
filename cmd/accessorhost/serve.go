package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/synadia-io/accessorhost"
	hostservices "github.com/synadia-io/accessorhost/host-services"
	"github.com/synadia-io/accessorhost/host-services/builtins"
	"github.com/synadia-io/accessorhost/internal/observability"
	"github.com/synadia-io/accessorhost/modules"
	"github.com/synadia-io/accessorhost/modules/discovery"
	"github.com/synadia-io/accessorhost/modules/httpclient"
)

type ServeCmd struct {
	NoDiscovery          bool          `name:"no-discovery" help:"Leave the discovery service out"`
	DiscoveryConcurrency int           `name:"discovery-concurrency" default:"32" help:"Pings in flight during a sweep"`
	DiscoveryCacheTime   time.Duration `name:"discovery-cache" default:"60s" help:"How long a found device keeps being reported"`
}

func (s *ServeCmd) Run(ctx context.Context, globals *Globals, nc *nats.Conn, logger *slog.Logger) error {
	if nc == nil {
		return errors.New("serving host services needs a nats connection, set --nats.servers")
	}

	tel, err := observability.NewTelemetry(ctx, logger, telemetryConfig(globals))
	if err != nil {
		return err
	}
	defer func() {
		if err := tel.Shutdown(); err != nil {
			logger.Warn("failed to shut down telemetry", slog.Any("err", err))
		}
	}()

	env := modules.Env{Logger: logger, Telemetry: tel, Resources: modules.NewTracker()}.WithDefaults()
	defer func() {
		if err := env.Resources.CloseAll(); err != nil {
			logger.Warn("failed to close host service resources", slog.Any("err", err))
		}
	}()

	var disc *discovery.Service
	if !s.NoDiscovery {
		disc = discovery.NewService(env, nil, discovery.Options{
			Concurrency: s.DiscoveryConcurrency,
			CacheTime:   int(s.DiscoveryCacheTime / time.Millisecond),
		})
	}

	server := hostservices.NewServer(nc, logger).WithTracer(tel.Tracer)
	if err := builtins.Register(server, nc, httpclient.NewClient(env, nil), disc, logger); err != nil {
		return err
	}
	if err := server.Start(); err != nil {
		return err
	}
	defer func() {
		if err := server.Stop(); err != nil {
			logger.Warn("failed to stop host services", slog.Any("err", err))
		}
	}()

	services := server.Services()
	slices.Sort(services)
	logger.Info("host services ready", slog.Any("services", services))

	<-ctx.Done()
	return nil
}

type ModulesCmd struct {
	out io.Writer
}

func (m *ModulesCmd) Run() error {
	if m.out == nil {
		m.out = os.Stdout
	}
	host, err := accessorhost.NewHost("modules")
	if err != nil {
		return err
	}
	defer host.Shutdown() //nolint:errcheck

	names := host.Modules()
	slices.Sort(names)
	for _, n := range names {
		fmt.Fprintln(m.out, n)
	}
	return nil
}
