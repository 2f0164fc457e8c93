// Package telemetry bootstraps the otel TracerProvider every service
// entrypoint installs globally, and holds the /stats counters spec.md §6
// requires. Grounded on the teacher's loop_tracing.go span idiom
// (generalized in internal/worker/tracing.go) applied here to provider
// setup: real otel SDK instead of a bespoke collector.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// InitTracerProvider builds and globally installs a TracerProvider for
// serviceName. When endpoint is set, spans export via OTLP/HTTP; otherwise
// they go to a stdout processor so tracer.Start calls are never silently
// dropped in local/dev runs. The returned shutdown func must be called
// during graceful shutdown to flush pending spans.
func InitTracerProvider(ctx context.Context, serviceName, endpoint string) (shutdown func(context.Context) error, err error) {
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(serviceName),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	var sp sdktrace.SpanProcessor
	if endpoint != "" {
		exp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(endpoint))
		if err != nil {
			return nil, fmt.Errorf("telemetry: build otlp exporter: %w", err)
		}
		sp = sdktrace.NewBatchSpanProcessor(exp)
	} else {
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("telemetry: build stdout exporter: %w", err)
		}
		sp = sdktrace.NewBatchSpanProcessor(exp)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sp),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
