package otelcable

import (
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	pkgName    = "otelcable"
	pkgVersion = "0.1.0"
)

// Prefix of the spans started for callbacks. The callback name is appended.
const SpanPrefix = "cable.callback."

// Span attributes
const (
	AttrChannel      = "cable.channel"
	AttrCallback     = "cable.callback"
	AttrInvocation   = "cable.invocation"
	AttrConnectionId = "cable.connection_id"
	AttrIdentifier   = "cable.identifier"
)

// # Description
//
// If the error is not nil, the function records the input error in the provided span and set the
// span status with an error code and description. In the other case, the span status is set with
// a Ok code. The function returns the provided error in all cases.
func handlePotentialError(err error, span trace.Span) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, codes.Error.String())
		return err
	}
	span.SetStatus(codes.Ok, codes.Ok.String())
	return nil
}
