// Package trace wires OpenTelemetry tracing for the otastore CLI and storage backends.
package trace

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
	"go.opentelemetry.io/otel/trace"
)

// Exporter names accepted by NewProvider.
const (
	ExporterGRPC   = "grpc"
	ExporterHTTP   = "http"
	ExporterStdout = "stdout"
	ExporterNoop   = "noop"
)

var tracerName = "github.com/otakit/otastore"

// NewProvider installs a global tracer provider using the named exporter.
// Unknown exporter names fall back to a no-op exporter.
func NewProvider(ctx context.Context, exporter, name, version string) (*sdktrace.TracerProvider, error) {
	return newProvider(ctx, exporter, name, version, os.Stderr)
}

func newProvider(ctx context.Context, exporter, name, version string, stdout io.Writer) (*sdktrace.TracerProvider, error) {
	res, err := newResource(ctx, name, version)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exp, err := newExporter(ctx, exporter, stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s exporter: %w", exporter, err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)

	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	tracerName = name

	return tp, nil
}

func newExporter(ctx context.Context, exporter string, stdout io.Writer) (sdktrace.SpanExporter, error) {
	switch exporter {
	case ExporterGRPC:
		return otlptracegrpc.New(ctx)
	case ExporterHTTP:
		return otlptracehttp.New(ctx)
	case ExporterStdout:
		return stdouttrace.New(stdouttrace.WithWriter(stdout), stdouttrace.WithPrettyPrint())
	default:
		return tracetest.NewNoopExporter(), nil
	}
}

// Start opens a span on the global tracer provider.
func Start(ctx context.Context, name string) (context.Context, trace.Span) {
	return otel.GetTracerProvider().Tracer(tracerName).Start(ctx, name)
}

func newResource(cxt context.Context, name, version string) (*resource.Resource, error) {
	options := []resource.Option{
		resource.WithSchemaURL(semconv.SchemaURL),
	}
	options = append(options, resource.WithHost())
	options = append(options, resource.WithFromEnv())
	options = append(options, resource.WithAttributes(
		semconv.ServiceNameKey.String(name),
		semconv.ServiceVersionKey.String(version),
		semconv.TelemetrySDKLanguageGo,
	))

	return resource.New(
		cxt,
		options...,
	)
}

// NewError records the formatted error on span, marks the span failed and
// returns the error.
func NewError(span trace.Span, msg string, args ...any) error {
	err := fmt.Errorf(msg, args...)
	if span == nil {
		return fmt.Errorf("span is nil: %w", err)
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	return err
}
