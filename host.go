// Package accessorhost runs accessor scripts: a goja runtime with the
// accessor's inputs, outputs and parameters, the capability modules
// available through require, and the setup, initialize, fire and wrapup
// lifecycle.
package accessorhost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/micro"
	"github.com/synadia-io/accessorhost/host-services/builtins"
	"github.com/synadia-io/accessorhost/internal/actor"
	"github.com/synadia-io/accessorhost/internal/convert"
	eventemitter "github.com/synadia-io/accessorhost/internal/event_emitter"
	"github.com/synadia-io/accessorhost/internal/idgen"
	"github.com/synadia-io/accessorhost/internal/loop"
	"github.com/synadia-io/accessorhost/internal/observability"
	"github.com/synadia-io/accessorhost/models"
	"github.com/synadia-io/accessorhost/modules"
	"github.com/synadia-io/accessorhost/modules/audio"
	"github.com/synadia-io/accessorhost/modules/crypto"
	"github.com/synadia-io/accessorhost/modules/discovery"
	"github.com/synadia-io/accessorhost/modules/httpclient"
	"github.com/synadia-io/accessorhost/modules/socket"
)

var (
	ErrAlreadyLoaded    = errors.New("accessor already loaded")
	ErrNotLoaded        = errors.New("no accessor loaded")
	ErrAccessorNotFound = errors.New("accessor not found")
	ErrInvalidValue     = errors.New("value is not valid json")
)

type (
	HostOption func(*Host) error

	providers struct {
		doer         httpclient.Doer
		transport    socket.Transport
		prober       discovery.Prober
		devices      audio.Devices
		crypto       crypto.Provider
		hostServices *builtins.BuiltinServicesClient
	}

	Host struct {
		ctx     context.Context
		cancel  context.CancelFunc
		version string

		logger    *slog.Logger
		startTime time.Time

		hostId string
		name   string
		idgen  idgen.Generator

		modulePath   []string
		extraModules map[string]require.ModuleLoader
		providers    providers

		nc        *nats.Conn
		service   micro.Service
		telemetry *observability.Telemetry
		events    models.EventEmitter

		errorHandler   func(string)
		outputHandlers []func(string, int, models.Token)

		loop  *loop.Loop
		env   modules.Env
		actor *actor.Actor

		// owned by the loop goroutine
		rt        *goja.Runtime
		exports   *goja.Object
		this      *goja.Object
		lifecycle models.Lifecycle
		handlers  *inputHandlers
		timers    *timers
		loaded    bool
		wrappedUp bool

		firings atomic.Int64
	}
)

// NewHost creates a host for the accessor called name. Nothing runs until
// Load is called.
func NewHost(name string, opts ...HostOption) (*Host, error) {
	if name == "" {
		return nil, errors.New("accessor name can not be empty")
	}

	h := &Host{
		ctx:     context.Background(),
		version: "development",

		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		name:   name,
		idgen:  idgen.NewNuidGen(),

		extraModules: make(map[string]require.ModuleLoader),
		events:       eventemitter.NoEmit{},
		lifecycle:    models.NoopLifecycle{},
	}

	var errs error
	for _, opt := range opts {
		errs = errors.Join(errs, opt(h))
	}
	if errs != nil {
		return nil, errs
	}

	if h.hostId == "" {
		h.hostId = h.idgen.Generate()
	}
	if h.telemetry == nil {
		h.telemetry = observability.Noop()
	}

	h.ctx, h.cancel = context.WithCancel(h.ctx)
	h.logger = h.logger.With(slog.String("accessor", h.name), slog.String("host_id", h.hostId))
	h.loop = loop.New(h.logger)
	h.loop.Start(h.ctx)

	h.env = modules.Env{
		Dispatcher: h.loop,
		Logger:     h.logger,
		Telemetry:  h.telemetry,
		Resources:  modules.NewTracker(),
	}.WithDefaults()

	h.actor = actor.New(h.name)
	h.actor.OnSend(h.outputSent)
	h.handlers = newInputHandlers(h.idgen)
	h.timers = newTimers(h.loop)
	h.startTime = time.Now()

	return h, nil
}

func (h *Host) HostId() string {
	return h.hostId
}

func (h *Host) Name() string {
	return h.name
}

// Actor exposes the accessor's endpoints to Go callers.
func (h *Host) Actor() *actor.Actor {
	return h.actor
}

// Resources is the set of capability handles the script still has open.
func (h *Host) Resources() *modules.Tracker {
	return h.env.Resources
}

// Load evaluates source as the accessor's code and runs its setup.
func (h *Host) Load(ctx context.Context, source string) error {
	return h.loop.Do(ctx, func() error {
		if h.loaded {
			return ErrAlreadyLoaded
		}

		rt, err := h.newRuntime()
		if err != nil {
			return err
		}
		h.rt = rt

		if err := h.evaluate(h.name+".js", source); err != nil {
			return err
		}
		h.loaded = true

		if err := h.lifecycle.Setup(ctx); err != nil {
			return fmt.Errorf("setup failed: %w", err)
		}

		emitHostEvent(h, models.AccessorLoadedEvent{
			Name:    h.name,
			Inputs:  h.actor.Names(actor.KindInput),
			Outputs: h.actor.Names(actor.KindOutput),
		})
		h.logger.Debug("accessor loaded")
		return nil
	})
}

// LoadFile finds name, with or without its .js suffix, on the module path
// and loads it.
func (h *Host) LoadFile(ctx context.Context, name string) error {
	if !strings.HasSuffix(name, ".js") {
		name += ".js"
	}

	candidates := []string{name}
	if !filepath.IsAbs(name) {
		candidates = candidates[:0]
		for _, dir := range h.modulePath {
			candidates = append(candidates, filepath.Join(dir, name))
		}
		if len(h.modulePath) == 0 {
			candidates = append(candidates, name)
		}
	}

	for _, c := range candidates {
		code, err := os.ReadFile(c)
		if err != nil {
			continue
		}
		h.logger.Debug("loading accessor source", slog.String("file", c))
		return h.Load(ctx, string(code))
	}
	return fmt.Errorf("%w: %s on path %v", ErrAccessorNotFound, name, h.modulePath)
}

func (h *Host) Initialize(ctx context.Context) error {
	return h.loop.Do(ctx, func() error {
		if !h.loaded {
			return ErrNotLoaded
		}
		h.wrappedUp = false
		if err := h.lifecycle.Initialize(ctx); err != nil {
			return fmt.Errorf("initialize failed: %w", err)
		}
		emitHostEvent(h, models.AccessorInitializedEvent{Name: h.name})
		return nil
	})
}

// Provide delivers t to input, runs the handlers registered for it and
// then fires the accessor.
func (h *Host) Provide(ctx context.Context, input string, t models.Token) error {
	ep, ok := h.actor.Endpoint(input)
	if !ok || ep.Kind != actor.KindInput {
		return fmt.Errorf("%w: %s", actor.ErrNoSuchEndpoint, input)
	}
	return h.loop.Do(ctx, func() error {
		if !h.loaded {
			return ErrNotLoaded
		}
		if err := h.actor.Send(input, 0, t); err != nil {
			return err
		}
		return h.react(ctx, input)
	})
}

// ProvideJSON decodes raw and provides the result to input. Inputs
// declared as JSON get it back as JSON text.
func (h *Host) ProvideJSON(ctx context.Context, input string, raw json.RawMessage) error {
	var value any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &value); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidValue, err)
		}
	}
	isJSON, _ := h.actor.IsJSON(input)
	return h.Provide(ctx, input, convert.ToTagged(value, isJSON))
}

// Fire runs the accessor's fire without providing any input.
func (h *Host) Fire(ctx context.Context) error {
	return h.loop.Do(ctx, func() error {
		if !h.loaded {
			return ErrNotLoaded
		}
		return h.fire(ctx)
	})
}

// Wrapup runs the accessor's wrapup and then closes every timer and
// capability resource the script left open.
func (h *Host) Wrapup(ctx context.Context) error {
	return h.loop.Do(ctx, func() error {
		if !h.loaded || h.wrappedUp {
			return nil
		}
		h.wrappedUp = true

		var errs error
		if err := h.lifecycle.Wrapup(ctx); err != nil {
			errs = errors.Join(errs, fmt.Errorf("wrapup failed: %w", err))
		}
		h.timers.stopAll()
		if err := h.env.Resources.CloseAll(); err != nil {
			errs = errors.Join(errs, err)
		}

		emitHostEvent(h, models.AccessorWrappedUpEvent{Name: h.name})
		return errs
	})
}

// Shutdown wraps the accessor up, stops serving and stops the event loop.
func (h *Host) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs error
	if err := h.Wrapup(ctx); err != nil && !errors.Is(err, loop.ErrStopped) {
		errs = errors.Join(errs, err)
	}
	if h.service != nil {
		errs = errors.Join(errs, h.service.Stop())
	}

	h.loop.Stop()
	if !h.loop.Wait(5 * time.Second) {
		errs = errors.Join(errs, errors.New("event loop did not stop in time"))
	}
	h.cancel()
	return errs
}

// react runs on the loop after a token arrived at input.
func (h *Host) react(ctx context.Context, input string) error {
	h.handlers.run(input, func(fn goja.Callable, args []goja.Value) {
		if _, err := fn(h.this, args...); err != nil {
			h.reportError(fmt.Sprintf("input handler for %s failed: %s", input, err))
		}
	})
	return h.fire(ctx)
}

func (h *Host) fire(ctx context.Context) error {
	defer h.actor.ClearInputs()
	h.firings.Add(1)
	if err := h.lifecycle.Fire(ctx); err != nil {
		return fmt.Errorf("fire failed: %w", err)
	}
	return nil
}

func (h *Host) outputSent(port string, channel int, t models.Token) {
	h.telemetry.RecordTokenSent(h.ctx, port)
	emitHostEvent(h, models.OutputSentEvent{
		Name:    h.name,
		Port:    port,
		Channel: channel,
		Value:   t.String(),
	})
	for _, f := range h.outputHandlers {
		f(port, channel, t)
	}
}

// reportError is the script's error(): it never throws.
func (h *Host) reportError(message string) {
	h.logger.Error("accessor error", slog.String("message", message))
	if h.errorHandler != nil {
		h.errorHandler(message)
	}
	emitHostEvent(h, models.AccessorErrorEvent{Name: h.name, Message: message})
}
