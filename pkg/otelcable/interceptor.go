// Package otelcable traces channel callbacks with OpenTelemetry.
package otelcable

import (
	"context"

	"github.com/gbdevw/gocable/pkg/cable"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// # Description
//
// Build and return an interceptor which starts a span for each callback.
//
// # Inputs
//
//   - tracerProvider: Tracer provider used to get a tracer. If nil, global tracer provider will be used.
//
// # Returns
//
// An interceptor which records a span named cable.callback.<callback> for each invocation. The
// span status is Error when the callback fails and Ok otherwise.
func New(tracerProvider trace.TracerProvider) cable.Interceptor {
	if tracerProvider == nil {
		// Use global tracer provider as instead
		tracerProvider = otel.GetTracerProvider()
	}
	tracer := tracerProvider.Tracer(pkgName, trace.WithInstrumentationVersion(pkgVersion))
	return func(next cable.Handler) cable.Handler {
		return func(ctx context.Context, inv *cable.Invocation) error {
			attrs := []attribute.KeyValue{
				attribute.String(AttrChannel, inv.Channel),
				attribute.String(AttrCallback, inv.Callback),
				attribute.String(AttrInvocation, inv.Kind.String()),
				attribute.String(AttrConnectionId, inv.ConnectionID),
			}
			if inv.Identifier != "" {
				attrs = append(attrs, attribute.String(AttrIdentifier, inv.Identifier))
			}
			// Start a span
			ctx, span := tracer.Start(ctx, SpanPrefix+inv.Callback,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(attrs...))
			defer span.End()
			// Call next, handle and return results
			return handlePotentialError(next(ctx, inv), span)
		}
	}
}
