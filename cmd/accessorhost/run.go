package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/synadia-io/accessorhost"
	hostservices "github.com/synadia-io/accessorhost/host-services"
	"github.com/synadia-io/accessorhost/host-services/builtins"
	eventemitter "github.com/synadia-io/accessorhost/internal/event_emitter"
	"github.com/synadia-io/accessorhost/internal/observability"
	"github.com/synadia-io/accessorhost/models"
)

type RunCmd struct {
	Accessor     string        `arg:"" help:"Accessor name or path to its .js source"`
	ModulePath   []string      `name:"module-path" short:"m" help:"Folders searched for accessors and required modules"`
	Inputs       string        `name:"inputs" short:"i" help:"File of name=json lines to provide, - reads stdin" placeholder:"-"`
	Serve        bool          `name:"serve" help:"Expose the control endpoints over NATS"`
	Heartbeat    time.Duration `name:"heartbeat" default:"30s" help:"Heartbeat interval when serving, 0 turns them off"`
	Events       string        `name:"events" default:"log" enum:"log,nats,none" help:"Where lifecycle events go"`
	HostServices string        `name:"host-services" help:"Host id of a host services server; enables require('hostServices')" placeholder:"HOST_ID"`
	Namespace    string        `name:"namespace" default:"default" help:"Namespace used for host services calls"`
	Wait         bool          `name:"wait" help:"Keep running after the inputs are consumed until interrupted"`

	in  io.Reader
	out io.Writer
}

func (r *RunCmd) Run(ctx context.Context, globals *Globals, nc *nats.Conn, logger *slog.Logger) error {
	if r.in == nil {
		r.in = os.Stdin
	}
	if r.out == nil {
		r.out = os.Stdout
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

	host, err := r.newHost(ctx, globals, nc, logger, tel)
	if err != nil {
		return err
	}
	defer func() {
		if err := host.Shutdown(); err != nil {
			logger.Warn("accessor did not shut down cleanly", slog.Any("err", err))
		}
	}()

	if err := host.LoadFile(ctx, r.Accessor); err != nil {
		return err
	}
	if err := host.Initialize(ctx); err != nil {
		return err
	}

	if r.Serve {
		if err := host.Serve(r.Heartbeat); err != nil {
			return err
		}
		logger.Info("accessor host serving", slog.String("host_id", host.HostId()))
	}

	if r.Inputs != "" {
		if err := r.provideInputs(ctx, host, logger); err != nil {
			return err
		}
	}

	if r.Serve || r.Wait {
		<-ctx.Done()
	}
	return nil
}

func (r *RunCmd) newHost(ctx context.Context, globals *Globals, nc *nats.Conn, logger *slog.Logger, tel *observability.Telemetry) (*accessorhost.Host, error) {
	name := strings.TrimSuffix(filepath.Base(r.Accessor), ".js")

	var mu sync.Mutex
	opts := []accessorhost.HostOption{
		accessorhost.WithContext(ctx),
		accessorhost.WithLogger(logger),
		accessorhost.WithVersion(VERSION),
		accessorhost.WithModulePath(r.ModulePath...),
		accessorhost.WithNatsConn(nc),
		accessorhost.WithTelemetry(tel),
		accessorhost.WithOutputHandler(func(port string, _ int, t models.Token) {
			mu.Lock()
			defer mu.Unlock()
			fmt.Fprintf(r.out, "%s: %s\n", port, t.String())
		}),
	}
	if globals.HostId != "" {
		opts = append(opts, accessorhost.WithHostId(globals.HostId))
	}

	switch r.Events {
	case "nats":
		if nc == nil {
			return nil, errors.New("nats events need a nats connection")
		}
		opts = append(opts, accessorhost.WithEventEmitter(eventemitter.NewNatsEmitter(ctx, nc)))
	case "log":
		opts = append(opts, accessorhost.WithEventEmitter(eventemitter.NewLogEmitter(ctx, logger, slog.LevelDebug)))
	}

	if r.HostServices != "" {
		if nc == nil {
			return nil, errors.New("host services need a nats connection")
		}
		client := hostservices.NewClient(nc, globals.NatsTimeout, r.HostServices, r.Namespace, name)
		opts = append(opts, accessorhost.WithHostServices(builtins.NewBuiltinServicesClient(client)))
	}

	return accessorhost.NewHost(name, opts...)
}

func (r *RunCmd) provideInputs(ctx context.Context, host *accessorhost.Host, logger *slog.Logger) error {
	src := r.in
	if r.Inputs != "-" {
		f, err := os.Open(r.Inputs)
		if err != nil {
			return err
		}
		defer f.Close()
		src = f
	}

	scanner := bufio.NewScanner(src)
	line := 0
	for scanner.Scan() {
		line++
		input, value, ok, err := parseInputLine(scanner.Text())
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if !ok {
			continue
		}
		if err := host.ProvideJSON(ctx, input, value); err != nil {
			logger.Error("failed to provide input", slog.String("input", input), slog.Int("line", line), slog.Any("err", err))
		}
	}
	return scanner.Err()
}

// parseInputLine reads name=json. Blank lines and lines starting with #
// are skipped.
func parseInputLine(line string) (string, json.RawMessage, bool, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", nil, false, nil
	}
	name, value, found := strings.Cut(line, "=")
	name = strings.TrimSpace(name)
	if !found || name == "" {
		return "", nil, false, fmt.Errorf("expected name=value, got %q", line)
	}
	value = strings.TrimSpace(value)
	if value != "" && !json.Valid([]byte(value)) {
		return "", nil, false, fmt.Errorf("value for %s is not valid json: %s", name, value)
	}
	return name, json.RawMessage(value), true, nil
}

func telemetryConfig(globals *Globals) observability.Config {
	return observability.Config{
		MetricsEnabled:  globals.MetricsEnabled,
		MetricsExporter: globals.MetricsExporter,
		MetricsPort:     globals.MetricsPort,
		TracesEnabled:   globals.TracesEnabled,
		TracesExporter:  globals.TracesExporter,
		OtelExporterUrl: globals.ExporterUrl,
		Version:         VERSION,
		HostId:          globals.HostId,
	}
}
