package observability

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.25.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func (t *Telemetry) initTrace() error {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !t.cfg.TracesEnabled {
		return nil
	}

	res, err := t.newResource(t.ctx)
	if err != nil {
		return err
	}

	var exporter tracesdk.SpanExporter
	t.log.Debug("Traces enabled", slog.String("exporter", t.cfg.TracesExporter))
	switch t.cfg.TracesExporter {
	case "grpc":
		conn, err := grpc.NewClient(t.cfg.OtelExporterUrl, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return err
		}
		exporter, err = otlptracegrpc.New(t.ctx, otlptracegrpc.WithGRPCConn(conn))
		if err != nil {
			return err
		}
		t.log.Info("Initialized OTLP exporter", slog.String("url", t.cfg.OtelExporterUrl))
	case "http":
		exporter, err = otlptracehttp.New(t.ctx, otlptracehttp.WithEndpoint(t.cfg.OtelExporterUrl), otlptracehttp.WithInsecure())
		if err != nil {
			return err
		}
		t.log.Info("Initialized OTLP exporter", slog.String("url", t.cfg.OtelExporterUrl))
	default:
		f, err := os.Create("traces.log")
		if err != nil {
			return err
		}
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(f))
		if err != nil {
			return err
		}
		t.log.Info("Initialized trace exporter", slog.String("file", "traces.log"))
	}

	tracerProvider := tracesdk.NewTracerProvider(
		tracesdk.WithSampler(tracesdk.AlwaysSample()),
		tracesdk.WithResource(res),
		tracesdk.WithBatcher(exporter),
	)
	t.shutdowns = append(t.shutdowns, tracerProvider.Shutdown)

	otel.SetTracerProvider(tracerProvider)
	t.Tracer = tracerProvider.Tracer(t.cfg.ServiceName)
	if t.Tracer == nil {
		return errors.New("failed to initialize telemetry instance: nil tracer")
	}

	return nil
}

func (t *Telemetry) newResource(ctx context.Context) (*resource.Resource, error) {
	return resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(t.cfg.ServiceName),
			semconv.ServiceVersion(t.cfg.Version),
			attribute.String("host_id", t.cfg.HostId),
		),
	)
}
