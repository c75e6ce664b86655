// Package tracing sets up OpenTelemetry export and names the spans a render
// produces.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "diagram-go"

// TracerConfig holds configuration for the OpenTelemetry tracer.
type TracerConfig struct {
	Endpoint       string
	ServiceName    string
	ServiceVersion string
	Environment    string
	// SampleRatio is the share of new traces recorded; values outside (0, 1)
	// record everything.
	SampleRatio float64
	Enabled     bool
}

// DefaultTracerConfig returns tracing disabled against a local collector.
func DefaultTracerConfig() TracerConfig {
	return TracerConfig{
		Endpoint:       "localhost:4318",
		ServiceName:    serviceName,
		ServiceVersion: "dev",
		Environment:    "development",
		SampleRatio:    1,
		Enabled:        false,
	}
}

// InitTracer initializes the OpenTelemetry tracer provider and returns its
// shutdown function.
func InitTracer(ctx context.Context, cfg TracerConfig) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	client := otlptracehttp.NewClient(
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(),
	)

	exporter, err := otlptrace.New(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			attribute.String("environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRatio)),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// sampler follows the parent's decision and samples root spans by ratio.
func sampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

// Tracer returns the default tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(serviceName)
}

// StartSpan creates a new span with the given name and attributes.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// RenderSpan creates the span covering one dispatched diagram request.
func RenderSpan(ctx context.Context, lang, diagramType string) (context.Context, trace.Span) {
	return StartSpan(ctx, "diagram.render",
		attribute.String("diagram.lang", lang),
		attribute.String("diagram.type", diagramType),
	)
}

// FetchSpan creates a span for a call to a remote renderer.
func FetchSpan(ctx context.Context, backend, url string) (context.Context, trace.Span) {
	return StartSpan(ctx, backend+".fetch",
		attribute.String("http.url", url),
	)
}

// BrowserSpan creates a span for a headless browser session.
func BrowserSpan(ctx context.Context, layout, theme string) (context.Context, trace.Span) {
	return StartSpan(ctx, "d2.browser",
		attribute.String("d2.layout", layout),
		attribute.String("d2.theme", theme),
	)
}

// End records err on span, if any, and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
