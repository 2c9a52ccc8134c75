package accessorhost

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/require"
	"github.com/synadia-io/accessorhost/host-services/builtins"
	"github.com/synadia-io/accessorhost/models"
	"github.com/synadia-io/accessorhost/modules/audio"
	"github.com/synadia-io/accessorhost/modules/crypto"
	"github.com/synadia-io/accessorhost/modules/discovery"
	"github.com/synadia-io/accessorhost/modules/eventbus"
	"github.com/synadia-io/accessorhost/modules/httpclient"
	"github.com/synadia-io/accessorhost/modules/imagefilters"
	"github.com/synadia-io/accessorhost/modules/socket"
	"github.com/synadia-io/accessorhost/modules/websocket"
)

// Modules lists the names the host registers with require. hostServices is
// only present when the host was given a host services client.
func (h *Host) Modules() []string {
	names := []string{
		audio.ModuleName,
		crypto.ModuleName,
		discovery.ModuleName,
		eventbus.ModuleName,
		httpclient.ModuleName,
		imagefilters.ModuleName,
		socket.ModuleName,
		websocket.ModuleName,
	}
	if h.providers.hostServices != nil {
		names = append(names, builtins.ModuleName)
	}
	for name := range h.extraModules {
		names = append(names, name)
	}
	return names
}

// newRuntime prepares the loop's runtime for the accessor. It must run on
// the loop.
func (h *Host) newRuntime() (*goja.Runtime, error) {
	rt := h.loop.Runtime()
	// timers are installed by installGlobals; immediates have no accessor form
	for _, name := range []string{"setImmediate", "clearImmediate"} {
		if err := rt.GlobalObject().Delete(name); err != nil {
			return nil, err
		}
	}

	registry := require.NewRegistry(
		require.WithGlobalFolders(h.modulePath...),
		require.WithLoader(h.sourceLoader),
	)
	registry.RegisterNativeModule(console.ModuleName, console.RequireWithPrinter(consolePrinter{h.logger.WithGroup("console")}))
	registry.RegisterNativeModule(audio.ModuleName, audio.Loader(h.env, h.providers.devices))
	registry.RegisterNativeModule(crypto.ModuleName, crypto.Loader(h.env, h.providers.crypto))
	registry.RegisterNativeModule(discovery.ModuleName, discovery.Loader(h.env, h.providers.prober))
	registry.RegisterNativeModule(eventbus.ModuleName, eventbus.Loader(h.env, h.nc))
	registry.RegisterNativeModule(httpclient.ModuleName, httpclient.Loader(h.env, h.providers.doer))
	registry.RegisterNativeModule(imagefilters.ModuleName, imagefilters.Loader(h.env))
	registry.RegisterNativeModule(socket.ModuleName, socket.Loader(h.env, h.providers.transport))
	registry.RegisterNativeModule(websocket.ModuleName, websocket.Loader(h.env))
	if h.providers.hostServices != nil {
		registry.RegisterNativeModule(builtins.ModuleName, builtins.Loader(h.env, h.providers.hostServices))
	}
	for name, loader := range h.extraModules {
		registry.RegisterNativeModule(name, loader)
	}
	registry.Enable(rt)
	console.Enable(rt)

	h.exports = rt.NewObject()
	h.this = rt.NewObject()
	if err := h.installGlobals(rt); err != nil {
		return nil, err
	}
	return rt, nil
}

// sourceLoader reads required .js files, logging every file it serves.
func (h *Host) sourceLoader(path string) ([]byte, error) {
	data, err := require.DefaultSourceLoader(path)
	if err == nil {
		h.logger.Debug("loaded module source", slog.String("file", filepath.Clean(path)))
		return data, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return nil, require.ModuleFileDoesNotExistError
	}
	return nil, err
}

// evaluate runs the accessor source with exports, module and require in
// scope, the way a CommonJS module sees them.
func (h *Host) evaluate(name, source string) error {
	wrapped := "(function(exports, module, require) {" + source + "\n})"
	prg, err := goja.Compile(name, wrapped, false)
	if err != nil {
		return fmt.Errorf("failed to compile accessor: %w", err)
	}
	fnVal, err := h.rt.RunProgram(prg)
	if err != nil {
		return fmt.Errorf("failed to evaluate accessor: %w", err)
	}
	fn, _ := goja.AssertFunction(fnVal)

	module := h.rt.NewObject()
	_ = module.Set("exports", h.exports)
	_ = module.Set("id", name)
	if _, err := fn(goja.Undefined(), h.exports, module, h.rt.Get("require")); err != nil {
		return fmt.Errorf("failed to evaluate accessor: %w", err)
	}

	// module.exports may have been replaced wholesale
	if obj, ok := module.Get("exports").(*goja.Object); ok {
		h.exports = obj
	}
	_ = h.this.Set("exports", h.exports)
	h.lifecycle = &scriptLifecycle{rt: h.rt, exports: h.exports, this: h.this}
	return nil
}

// scriptLifecycle calls the hooks the script exported. Hooks it left out
// fall back to the no-op defaults.
type scriptLifecycle struct {
	models.NoopLifecycle

	rt      *goja.Runtime
	exports *goja.Object
	this    *goja.Object
}

func (s *scriptLifecycle) hook(name string) (goja.Callable, bool) {
	return goja.AssertFunction(s.exports.Get(name))
}

func (s *scriptLifecycle) call(fn goja.Callable) error {
	_, err := fn(s.this)
	return err
}

func (s *scriptLifecycle) Setup(ctx context.Context) error {
	if fn, ok := s.hook("setup"); ok {
		return s.call(fn)
	}
	return s.NoopLifecycle.Setup(ctx)
}

func (s *scriptLifecycle) Initialize(ctx context.Context) error {
	if fn, ok := s.hook("initialize"); ok {
		return s.call(fn)
	}
	return s.NoopLifecycle.Initialize(ctx)
}

func (s *scriptLifecycle) Fire(ctx context.Context) error {
	if fn, ok := s.hook("fire"); ok {
		return s.call(fn)
	}
	return s.NoopLifecycle.Fire(ctx)
}

func (s *scriptLifecycle) Wrapup(ctx context.Context) error {
	if fn, ok := s.hook("wrapup"); ok {
		return s.call(fn)
	}
	return s.NoopLifecycle.Wrapup(ctx)
}

type consolePrinter struct {
	logger *slog.Logger
}

func (p consolePrinter) Log(s string)   { p.logger.Info(s) }
func (p consolePrinter) Warn(s string)  { p.logger.Warn(s) }
func (p consolePrinter) Error(s string) { p.logger.Error(s) }
