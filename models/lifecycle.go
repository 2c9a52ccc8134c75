package models

import "context"

// Lifecycle is the set of hooks the host drives for every accessor.
type Lifecycle interface {
	Setup(ctx context.Context) error
	Initialize(ctx context.Context) error
	Fire(ctx context.Context) error
	Wrapup(ctx context.Context) error
}

// NoopLifecycle supplies the default for every hook. Embed it and override
// only the hooks that matter.
type NoopLifecycle struct{}

var _ Lifecycle = NoopLifecycle{}

func (NoopLifecycle) Setup(context.Context) error      { return nil }
func (NoopLifecycle) Initialize(context.Context) error { return nil }
func (NoopLifecycle) Fire(context.Context) error       { return nil }
func (NoopLifecycle) Wrapup(context.Context) error     { return nil }
