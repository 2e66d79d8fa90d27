package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// InitTracing wires a batched stdout span exporter as the global
// TracerProvider and returns a Tracer scoped to serviceName plus a
// shutdown func the caller defers. There is no remote collector in
// this deployment shape; spans are written to stdout so a plan run's
// task dispatch timeline can still be inspected after the fact.
func InitTracing(serviceName string) (trace.Tracer, func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithoutTimestamps())
	if err != nil {
		return nil, nil, fmt.Errorf("creating stdout span exporter: %w", err)
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Tracer(serviceName), tp.Shutdown, nil
}

// Meter returns the process-wide Meter for serviceName. No metric SDK
// is registered in this deployment shape, so instruments created from
// it are inert (otel's default no-op provider) until a caller wires a
// MeterProvider via otel.SetMeterProvider; the call sites are written
// against the real API so upgrading to an exporting provider later is
// a config change, not a code change.
func Meter(serviceName string) metric.Meter {
	return otel.Meter(serviceName)
}
