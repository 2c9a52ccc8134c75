package observability

import (
	"context"
	"testing"

	"github.com/carlmjohnson/be"
)

func TestNoopTelemetry(t *testing.T) {
	tel := Noop()
	be.True(t, tel.Tracer != nil)
	be.True(t, tel.EventsEmitted != nil)

	// instruments are usable without an exporter
	tel.EventHook("socket", "data", true)
	tel.EventHook("socket", "error", false)
	tel.RecordBytesSent(context.Background(), "socket", 10)
	tel.RecordConnection(context.Background(), "websocket", 1)
	be.NilErr(t, tel.Shutdown())
}

func TestStdoutMetrics(t *testing.T) {
	tel, err := NewTelemetry(context.Background(), nil, Config{
		MetricsEnabled:  true,
		MetricsExporter: "stdout",
		HostId:          "host1",
	})
	be.NilErr(t, err)
	tel.RecordTokenSent(context.Background(), "out")
	be.NilErr(t, tel.Shutdown())
}
