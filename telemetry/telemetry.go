// Package telemetry wires OpenTelemetry distributed tracing (C11) across the
// request pipeline: one span per unary or streaming call, with a child span
// around each upstream HTTP attempt. Grounded on
// eugener-gandalf/internal/telemetry/tracing.go's OTLP-gRPC exporter and
// sampler setup, adapted so tracing is a no-op when no endpoint is
// configured rather than mandatory.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ShutdownFunc flushes and stops the tracer provider on application exit.
type ShutdownFunc func(context.Context) error

// Setup initializes OpenTelemetry tracing with an OTLP/gRPC exporter when
// endpoint is non-empty. When endpoint is empty, tracing is left on the
// no-op global provider that otel.Tracer returns by default, and Setup
// returns a no-op shutdown function — the gateway runs fully functional
// without a collector configured.
func Setup(ctx context.Context, endpoint string, sampleRate float64, logger *zap.Logger) (ShutdownFunc, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if endpoint == "" {
		logger.Info("tracing disabled: no endpoint configured")
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String("gemigate"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(samplerFor(sampleRate)),
	)

	otel.SetTracerProvider(tp)
	logger.Info("tracing enabled", zap.String("endpoint", endpoint), zap.Float64("sample_rate", sampleRate))

	return tp.Shutdown, nil
}

func samplerFor(sampleRate float64) sdktrace.Sampler {
	switch {
	case sampleRate >= 1.0:
		return sdktrace.AlwaysSample()
	case sampleRate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRate))
	}
}

// Tracer returns a named tracer off the global provider — the no-op
// implementation when tracing is disabled, or the configured OTLP provider
// otherwise. Callers never need to branch on whether tracing is enabled.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// gatewayTracerName is the tracer name the orchestrator instruments its own
// spans under.
const gatewayTracerName = "github.com/basuigw/gemigate/orchestrator"

// StartRequestSpan opens the top-level span for one chat request, tagging
// it with the attributes every downstream span inherits.
func StartRequestSpan(ctx context.Context, dialectName, model string, streamed bool) (context.Context, trace.Span) {
	return Tracer(gatewayTracerName).Start(ctx, "chat.request",
		trace.WithAttributes(
			attribute.String("gateway.dialect", dialectName),
			attribute.String("gateway.model", model),
			attribute.Bool("gateway.streamed", streamed),
		),
	)
}

// StartUpstreamSpan opens a child span around one upstream HTTP attempt.
func StartUpstreamSpan(ctx context.Context, model string, attempt int) (context.Context, trace.Span) {
	return Tracer(gatewayTracerName).Start(ctx, "upstream.call",
		trace.WithAttributes(
			attribute.String("gateway.model", model),
			attribute.Int("gateway.attempt", attempt),
		),
	)
}

// EndRequestSpan records the final outcome on the request span and ends it.
func EndRequestSpan(span trace.Span, success bool, httpStatus int, credential string) {
	span.SetAttributes(
		attribute.Bool("gateway.success", success),
		attribute.Int("gateway.http_status", httpStatus),
		attribute.String("gateway.credential", credential),
	)
	span.End()
}
