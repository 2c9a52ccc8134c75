package natslogger

import (
	"fmt"
	"testing"
	"time"

	"github.com/carlmjohnson/be"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/synadia-io/accessorhost/models"
)

func TestForHost(t *testing.T) {
	s, err := server.NewServer(&server.Options{Port: -1})
	be.NilErr(t, err)
	go s.Start()
	defer s.Shutdown()
	be.True(t, s.ReadyForConnections(5*time.Second))

	nc, err := nats.Connect(s.ClientURL())
	be.NilErr(t, err)
	defer nc.Close()

	sub, err := nc.SubscribeSync(fmt.Sprintf("%s.>", models.LogAPIPrefix))
	be.NilErr(t, err)

	stdout, stderr := ForHost(nc, "HOST1")
	n, err := stdout.Write([]byte("hello"))
	be.NilErr(t, err)
	be.Equal(t, 5, n)
	_, err = stderr.Write([]byte("oops"))
	be.NilErr(t, err)

	m, err := sub.NextMsg(time.Second)
	be.NilErr(t, err)
	be.Equal(t, "$ACCESSOR.logs.HOST1.stdout", m.Subject)
	be.Equal(t, "hello", string(m.Data))

	m, err = sub.NextMsg(time.Second)
	be.NilErr(t, err)
	be.Equal(t, "$ACCESSOR.logs.HOST1.stderr", m.Subject)
	be.Equal(t, "oops", string(m.Data))
}
