package trace

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	_, span := tp.Tracer("test").Start(context.Background(), "upload")
	err := NewError(span, "failed to upload %s", "updates/1/metadata.json")
	span.End()

	require.EqualError(t, err, "failed to upload updates/1/metadata.json")

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "failed to upload updates/1/metadata.json", spans[0].Status().Description)
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "exception", spans[0].Events()[0].Name)
}

func TestNewErrorNilSpan(t *testing.T) {
	err := NewError(nil, "failed to copy %s", "a.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "span is nil")
	assert.Contains(t, err.Error(), "failed to copy a.json")
}

func TestNewProviderStdoutExporter(t *testing.T) {
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	ctx := context.Background()
	var buf bytes.Buffer

	tp, err := newProvider(ctx, ExporterStdout, "otastore-test", "0.0.1", &buf)
	require.NoError(t, err)

	_, span := Start(ctx, "LocalFileBlob.UploadFile")
	span.End()

	require.NoError(t, tp.ForceFlush(ctx))
	require.NoError(t, tp.Shutdown(ctx))

	assert.Contains(t, buf.String(), "LocalFileBlob.UploadFile")
	assert.Contains(t, buf.String(), "otastore-test")
}

func TestNewProviderUnknownExporterIsNoop(t *testing.T) {
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	tp, err := NewProvider(context.Background(), "none", "otastore-test", "0.0.1")
	require.NoError(t, err)
	assert.NoError(t, tp.Shutdown(context.Background()))
}
