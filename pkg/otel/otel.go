// Package otel provides OpenTelemetry tracing and metrics setup for adapter
// processes.
package otel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// Config holds setup parameters.
type Config struct {
	ServiceName    string
	OTLPEndpoint   string // e.g. "localhost:4318"
	MetricsEnabled bool
	TracingEnabled bool
}

// Shutdown flushes and stops the installed providers.
type Shutdown func(ctx context.Context) error

// Setup installs the global tracer and meter providers: an OTLP/HTTP span
// exporter when tracing is on, and a Prometheus-backed meter provider when
// metrics are on. The returned Shutdown should be deferred by the caller.
func Setup(ctx context.Context, cfg Config) (Shutdown, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	var shutdowns []func(ctx context.Context) error

	if cfg.TracingEnabled && cfg.OTLPEndpoint != "" {
		stop, err := setupTracing(ctx, cfg.OTLPEndpoint, res)
		if err != nil {
			return nil, err
		}
		shutdowns = append(shutdowns, stop)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if cfg.MetricsEnabled {
		stop, err := setupMetrics(res)
		if err != nil {
			return nil, err
		}
		shutdowns = append(shutdowns, stop)
	}

	return func(ctx context.Context) error {
		var errs []error
		for _, stop := range shutdowns {
			errs = append(errs, stop(ctx))
		}
		return errors.Join(errs...)
	}, nil
}

func setupTracing(ctx context.Context, endpoint string, res *resource.Resource) (func(context.Context) error, error) {
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("otel trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

func setupMetrics(res *resource.Resource) (func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("otel prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)
	return mp.Shutdown, nil
}
