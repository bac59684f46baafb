package observability

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerName names the tracer used for DAP request spans.
const TracerName = "github.com/dshills/dapbridge/internal/adapter"

// Tracer returns the tracer for request spans from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// InitTracing installs a global tracer provider that writes spans to w as
// JSON. The returned function flushes and shuts it down.
func InitTracing(w io.Writer) (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(w),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}
