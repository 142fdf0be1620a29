package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerConfig controls span creation for the reading pipeline. Exporting
// is left to whatever SpanExporter the collaborator wires in at boot; the
// core only ever asks for a trace.Tracer by name.
type TracerConfig struct {
	Enabled     bool
	ServiceName string
	Exporter    sdktrace.SpanExporter
}

// InitTracer installs (and returns) a global TracerProvider. With tracing
// disabled it installs nothing and returns the existing global provider
// unchanged, so GetTracer always works.
func InitTracer(ctx context.Context, cfg TracerConfig) (trace.TracerProvider, error) {
	if !cfg.Enabled {
		return otel.GetTracerProvider(), nil
	}

	opts := []sdktrace.TracerProviderOption{}
	if cfg.Exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(cfg.Exporter))
	}
	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	return tp, nil
}

// GetTracer returns a named tracer from the current global provider.
func GetTracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
