// Package modules holds what every capability module shares: the
// environment it runs in and option merging.
package modules

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/synadia-io/accessorhost/internal/emitter"
	"github.com/synadia-io/accessorhost/internal/observability"
)

// Env is handed to every capability wrapper. Dispatcher decides which
// goroutine listeners run on; for a script host it is the event loop.
type Env struct {
	Dispatcher emitter.Dispatcher
	Logger     *slog.Logger
	Telemetry  *observability.Telemetry
	Resources  *Tracker
}

func (e Env) WithDefaults() Env {
	if e.Dispatcher == nil {
		e.Dispatcher = emitter.Inline{}
	}
	if e.Logger == nil {
		e.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if e.Telemetry == nil {
		e.Telemetry = observability.Noop()
	}
	if e.Resources == nil {
		e.Resources = NewTracker()
	}
	return e
}

// NewEmitter creates a listener registry for one wrapper instance.
func (e Env) NewEmitter(source string) *emitter.Emitter {
	em := emitter.New(source, e.Dispatcher, e.Logger.With(slog.String("module", source)))
	if e.Telemetry != nil {
		em.SetHook(e.Telemetry.EventHook)
	}
	return em
}

// MergeOptions shallow-merges overrides onto dst, which must be a pointer
// to an options struct already holding its defaults. Unknown keys are
// ignored.
func MergeOptions(dst any, overrides map[string]any) error {
	if len(overrides) == 0 {
		return nil
	}
	raw, err := json.Marshal(overrides)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

type Closer interface {
	Close() error
}

// Tracker remembers open resources so the host can close whatever a
// script left open when it wraps up.
type Tracker struct {
	mu    sync.Mutex
	next  uint64
	items map[uint64]Closer
}

func NewTracker() *Tracker {
	return &Tracker{items: make(map[uint64]Closer)}
}

func (t *Tracker) Track(c Closer) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	t.items[t.next] = c
	return t.next
}

func (t *Tracker) Release(id uint64) {
	t.mu.Lock()
	delete(t.items, id)
	t.mu.Unlock()
}

func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}

// CloseAll closes every tracked resource, newest first.
func (t *Tracker) CloseAll() error {
	t.mu.Lock()
	ids := make([]uint64, 0, len(t.items))
	for id := range t.items {
		ids = append(ids, id)
	}
	items := t.items
	t.items = make(map[uint64]Closer)
	t.mu.Unlock()

	slices.Sort(ids)
	slices.Reverse(ids)

	var err error
	for _, id := range ids {
		if e := items[id].Close(); e != nil {
			err = errors.Join(err, e)
		}
	}
	return err
}
