// Package actor holds the named, token-carrying endpoints of an accessor:
// inputs, outputs and parameters.
package actor

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/synadia-io/accessorhost/models"
)

var ErrNoSuchEndpoint = errors.New("no such named endpoint")

type Kind int

const (
	KindInput Kind = iota
	KindOutput
	KindParameter
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindOutput:
		return "output"
	case KindParameter:
		return "parameter"
	}
	return "unknown"
}

// EndpointOptions are the declaration options accepted by input(),
// output() and parameter().
type EndpointOptions struct {
	Type        string         `json:"type"`
	Value       models.Token   `json:"-"`
	Description string         `json:"description"`
	Visibility  string         `json:"visibility"`
	Options     []models.Token `json:"-"`
}

type Endpoint struct {
	Name        string
	Kind        Kind
	Type        models.Type
	Description string
	Visibility  string
	IsJSON      bool
	Options     []models.Token

	value   models.Token
	pending models.Token
}

// Sink receives every token sent to an output.
type Sink func(name string, channel int, t models.Token)

type Actor struct {
	mu        sync.RWMutex
	name      string
	container string
	endpoints map[string]*Endpoint
	order     []string
	sinks     []Sink
}

var _ models.Entity = (*Actor)(nil)

func New(name string) *Actor {
	return &Actor{
		name:      name,
		endpoints: make(map[string]*Endpoint),
	}
}

// WithContainer sets the dotted path of the model the actor lives in.
func (a *Actor) WithContainer(container string) *Actor {
	a.container = container
	return a
}

func (a *Actor) Name() string {
	return a.name
}

func (a *Actor) FullName() string {
	return strings.TrimSuffix(a.container, ".") + "." + a.name
}

// Declare creates the endpoint if it does not exist yet. Declaring an
// existing name keeps its current value.
func (a *Actor) Declare(kind Kind, name string, opts EndpointOptions) (*Endpoint, error) {
	typ, ok := models.ParseType(opts.Type)
	if !ok {
		return nil, fmt.Errorf("unsupported type %q for %s %s", opts.Type, kind, name)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if ep, exists := a.endpoints[name]; exists {
		if ep.Kind != kind {
			return nil, fmt.Errorf("%s %q is already declared as %s", kind, name, ep.Kind)
		}
		return ep, nil
	}

	ep := &Endpoint{
		Name:        name,
		Kind:        kind,
		Type:        typ,
		Description: opts.Description,
		Visibility:  opts.Visibility,
		IsJSON:      strings.EqualFold(opts.Type, "json"),
		Options:     opts.Options,
		value:       opts.Value,
	}
	a.endpoints[name] = ep
	a.order = append(a.order, name)
	return ep, nil
}

func (a *Actor) Endpoint(name string) (*Endpoint, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ep, ok := a.endpoints[name]
	return ep, ok
}

// Names lists endpoints of kind in declaration order.
func (a *Actor) Names(kind Kind) []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []string
	for _, n := range a.order {
		if a.endpoints[n].Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// IsJSON reports whether values written to name are sent as JSON text.
func (a *Actor) IsJSON(name string) (bool, error) {
	ep, ok := a.Endpoint(name)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNoSuchEndpoint, name)
	}
	return ep.IsJSON, nil
}

// GetValue returns the current value of name. For inputs a token provided
// during this firing wins over the default. A nil token with a nil error
// means the endpoint exists but holds nothing.
func (a *Actor) GetValue(name string) (models.Token, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ep, ok := a.endpoints[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchEndpoint, name)
	}
	if ep.pending != nil {
		return ep.pending, nil
	}
	return ep.value, nil
}

// SetValue replaces the default value of an input or the value of a
// parameter.
func (a *Actor) SetValue(name string, t models.Token) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	ep, ok := a.endpoints[name]
	if !ok || ep.Kind == KindOutput {
		return fmt.Errorf("%w: %s", ErrNoSuchEndpoint, name)
	}
	ep.value = t
	return nil
}

// Send delivers t on an output, or provides it to one of the actor's own
// inputs. The last token sent on an output stays readable through GetValue.
func (a *Actor) Send(name string, channel int, t models.Token) error {
	a.mu.Lock()
	ep, ok := a.endpoints[name]
	if !ok || ep.Kind == KindParameter {
		a.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNoSuchEndpoint, name)
	}
	if ep.Kind == KindInput {
		ep.pending = t
		a.mu.Unlock()
		return nil
	}
	ep.value = t
	sinks := slices.Clone(a.sinks)
	a.mu.Unlock()

	for _, s := range sinks {
		s(name, channel, t)
	}
	return nil
}

func (a *Actor) OnSend(s Sink) {
	a.mu.Lock()
	a.sinks = append(a.sinks, s)
	a.mu.Unlock()
}

// ClearInputs discards tokens provided to inputs during the last firing.
func (a *Actor) ClearInputs() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, ep := range a.endpoints {
		ep.pending = nil
	}
}
