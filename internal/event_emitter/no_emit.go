// Package eventemitter holds the places accessor lifecycle events can go.
package eventemitter

import "github.com/synadia-io/accessorhost/models"

var _ models.EventEmitter = (*NoEmit)(nil)

type NoEmit struct{}

func (NoEmit) EmitEvent(_ string, _ any) error {
	return nil
}
