package eventemitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nuid"
	"github.com/synadia-io/accessorhost/models"
)

var _ models.EventEmitter = (*NatsEmitter)(nil)

// Headers set on every published lifecycle event.
const (
	HeaderHost    = "Accessor-Host"
	HeaderEvent   = "Accessor-Event"
	HeaderMsgID   = nats.MsgIdHdr
	contentHeader = "Content-Type"
)

// NatsEmitter publishes lifecycle events as JSON on
// $ACCESSOR.events.<host>.<EVENT>. The message id header lets a stream
// capturing the subject drop redeliveries.
type NatsEmitter struct {
	ctx context.Context
	nc  *nats.Conn
}

func NewNatsEmitter(ctx context.Context, nc *nats.Conn) *NatsEmitter {
	return &NatsEmitter{
		ctx: ctx,
		nc:  nc,
	}
}

func (e *NatsEmitter) EmitEvent(from string, event any) error {
	if err := e.ctx.Err(); err != nil {
		return err
	}
	msg, err := eventMsg(from, event)
	if err != nil {
		return err
	}
	if e.nc == nil {
		return errors.New("nats connection is nil/not set")
	}
	return e.nc.PublishMsg(msg)
}

func eventMsg(from string, event any) (*nats.Msg, error) {
	kind, err := eventKind(event)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("could not encode %s event: %w", kind, err)
	}

	msg := nats.NewMsg(models.EventSubject(from, kind))
	msg.Data = data
	msg.Header.Set(HeaderHost, from)
	msg.Header.Set(HeaderEvent, kind)
	msg.Header.Set(HeaderMsgID, nuid.Next())
	msg.Header.Set(contentHeader, "application/json")
	return msg, nil
}

// eventKind is the subject suffix, taken from the event's String method.
func eventKind(event any) (string, error) {
	if event == nil {
		return "", errors.New("event is nil")
	}
	stringer, ok := event.(fmt.Stringer)
	if !ok {
		return "", fmt.Errorf("event type %T does not implement String()", event)
	}
	return stringer.String(), nil
}
