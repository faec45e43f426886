package providers

import (
	"context"

	"github.com/gbdevw/gocable/cmd/cableserver/configuration"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
)

// # Description
//
// Provide the tracer provider which exports spans to the OTLP/HTTP backend. When tracing is
// disabled, nil is returned and the global NopTracerProvider is used instead.
func ProvideTracerProvider(lc fx.Lifecycle, ctx context.Context, config configuration.Configuration) (trace.TracerProvider, error) {
	if !config.TracingEnabled {
		return nil, nil
	}
	exp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(config.TracingEndpoint), otlptracehttp.WithInsecure())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String("gocable.cableserver"),
			semconv.DeploymentEnvironmentKey.String(config.SentryEnvironment),
		)),
	)
	// Register tracer provider as global tracer provider
	otel.SetTracerProvider(tp)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})
	return tp, nil
}
