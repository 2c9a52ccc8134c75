package observability

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const defaultServiceName = "accessorhost"

type Config struct {
	MetricsEnabled  bool
	MetricsExporter string
	MetricsPort     int

	TracesEnabled   bool
	TracesExporter  string
	OtelExporterUrl string

	ServiceName string
	Version     string
	HostId      string
}

type Telemetry struct {
	ctx           context.Context
	log           *slog.Logger
	meter         metric.Meter
	meterProvider metric.MeterProvider
	shutdowns     []func(context.Context) error

	cfg Config

	Tracer trace.Tracer

	EventsEmitted   metric.Int64Counter
	UnhandledErrors metric.Int64Counter
	TokensSent      metric.Int64Counter
	BytesSent       metric.Int64Counter
	BytesReceived   metric.Int64Counter
	Connections     metric.Int64UpDownCounter
}

func NewTelemetry(ctx context.Context, log *slog.Logger, cfg Config) (*Telemetry, error) {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = defaultServiceName
	}
	if cfg.Version == "" {
		cfg.Version = "development"
	}

	t := &Telemetry{
		ctx:           ctx,
		log:           log,
		cfg:           cfg,
		meterProvider: noop.NewMeterProvider(),
		Tracer:        tracenoop.NewTracerProvider().Tracer(cfg.ServiceName),
	}

	var err error
	if e := t.initMetrics(); e != nil {
		err = errors.Join(err, e)
	}
	if e := t.initTrace(); e != nil {
		err = errors.Join(err, e)
	}
	if err != nil {
		return nil, err
	}

	return t, nil
}

// Noop returns telemetry that records nothing.
func Noop() *Telemetry {
	t, _ := NewTelemetry(context.Background(), nil, Config{})
	return t
}

func (t *Telemetry) Shutdown() error {
	var err error
	for _, s := range t.shutdowns {
		if e := s(t.ctx); e != nil {
			err = errors.Join(err, e)
		}
	}
	return err
}
