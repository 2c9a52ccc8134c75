package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	metricsdk "go.opentelemetry.io/otel/sdk/metric"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (t *Telemetry) initMetrics() error {
	var e, err error
	err = t.initMeterProvider()
	if err != nil {
		return err
	}

	t.EventsEmitted, e = t.meter.
		Int64Counter("accessor-events-emitted",
			metric.WithDescription("Number of events delivered to listeners"),
		)
	if e != nil {
		err = errors.Join(err, e)
	}
	t.UnhandledErrors, e = t.meter.
		Int64Counter("accessor-errors",
			metric.WithDescription("Number of error events that had no listener"),
		)
	if e != nil {
		err = errors.Join(err, e)
	}
	t.TokensSent, e = t.meter.
		Int64Counter("accessor-tokens-sent",
			metric.WithDescription("Number of tokens sent on accessor outputs"),
		)
	if e != nil {
		err = errors.Join(err, e)
	}
	t.BytesSent, e = t.meter.
		Int64Counter("accessor-bytes-sent",
			metric.WithDescription("Bytes written by capability modules"),
		)
	if e != nil {
		err = errors.Join(err, e)
	}
	t.BytesReceived, e = t.meter.
		Int64Counter("accessor-bytes-received",
			metric.WithDescription("Bytes read by capability modules"),
		)
	if e != nil {
		err = errors.Join(err, e)
	}
	t.Connections, e = t.meter.
		Int64UpDownCounter("accessor-connections",
			metric.WithDescription("Open socket and web socket connections"),
		)
	if e != nil {
		err = errors.Join(err, e)
	}

	return err
}

func (t *Telemetry) initMeterProvider() error {
	if t.cfg.MetricsEnabled {
		t.log.Debug("Metrics enabled")

		res, err := t.newResource(t.ctx)
		if err != nil {
			t.log.Warn("failed to create OTel resource", slog.Any("err", err))
			return err
		}

		metricReader, err := t.serveMetrics()
		if err != nil {
			t.log.Warn("failed to create OTel metrics exporter", slog.Any("err", err))
			return err
		}

		provider := metricsdk.NewMeterProvider(
			metricsdk.WithResource(res),
			metricsdk.WithReader(metricReader),
		)
		t.meterProvider = provider
		t.shutdowns = append(t.shutdowns, provider.Shutdown)
	}

	t.meter = t.meterProvider.Meter(t.cfg.ServiceName)
	if t.meter == nil {
		return errors.New("failed to initialize telemetry instance: nil meter")
	}

	return nil
}

func (t *Telemetry) serveMetrics() (metricsdk.Reader, error) {
	switch t.cfg.MetricsExporter {
	case "prometheus":
		t.log.Debug("Starting prometheus exporter")
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", t.cfg.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			t.log.Info(fmt.Sprintf("serving metrics at localhost:%d/metrics", t.cfg.MetricsPort))
			err := srv.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				t.log.Warn("failed to start prometheus web server", slog.Any("err", err))
			}
		}()
		t.shutdowns = append(t.shutdowns, srv.Shutdown)

		return prometheus.New()
	default:
		t.log.Debug("Starting standard out exporter")
		reader, err := stdoutmetric.New()
		if err != nil {
			return nil, err
		}

		return metricsdk.NewPeriodicReader(
			reader,
			metricsdk.WithInterval(10*time.Second),
		), nil
	}
}

// EventHook counts emitted events. It has the shape of emitter.Hook.
func (t *Telemetry) EventHook(source, event string, handled bool) {
	attrs := metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("event", event),
	)
	if handled {
		t.EventsEmitted.Add(t.ctx, 1, attrs)
		return
	}
	if event == "error" {
		t.UnhandledErrors.Add(t.ctx, 1, attrs)
	}
}

func (t *Telemetry) RecordTokenSent(ctx context.Context, port string) {
	t.TokensSent.Add(ctx, 1, metric.WithAttributes(attribute.String("port", port)))
}

func (t *Telemetry) RecordBytesSent(ctx context.Context, module string, n int) {
	t.BytesSent.Add(ctx, int64(n), metric.WithAttributes(attribute.String("module", module)))
}

func (t *Telemetry) RecordBytesReceived(ctx context.Context, module string, n int) {
	t.BytesReceived.Add(ctx, int64(n), metric.WithAttributes(attribute.String("module", module)))
}

func (t *Telemetry) RecordConnection(ctx context.Context, module string, delta int64) {
	t.Connections.Add(ctx, delta, metric.WithAttributes(attribute.String("module", module)))
}
