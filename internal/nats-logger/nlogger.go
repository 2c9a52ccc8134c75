// Package natslogger is an io.Writer that publishes every write to a NATS
// subject, letting a host stream its logs to $ACCESSOR.logs.
package natslogger

import (
	"github.com/nats-io/nats.go"
	"github.com/synadia-io/accessorhost/models"
)

type NatsLogger struct {
	nc       *nats.Conn
	OutTopic string
}

func NewNatsLogger(nc *nats.Conn, topic string) *NatsLogger {
	return &NatsLogger{
		OutTopic: topic,
		nc:       nc,
	}
}

// ForHost returns the stdout and stderr writers for hostId.
func ForHost(nc *nats.Conn, hostId string) (stdout, stderr *NatsLogger) {
	return NewNatsLogger(nc, models.LogSubject(hostId, "stdout")),
		NewNatsLogger(nc, models.LogSubject(hostId, "stderr"))
}

func (nl *NatsLogger) Write(p []byte) (int, error) {
	err := nl.nc.Publish(nl.OutTopic, p)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}
