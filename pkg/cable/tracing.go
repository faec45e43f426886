package cable

import (
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

/*************************************************************************************************/
/* TRACING RELATED CONSTANTS                                                                     */
/*************************************************************************************************/

// Constants used for tracing purpose.
const (
	// Package name used by library tracer and meter
	pkgName = "cable"
	// Package version
	pkgVersion = "0.1.0"

	// Namespace used by spans, events and attributes
	namespace = "cable"
	// Sub-namespace used by spans related to server background tasks
	serverNamespace = namespace + ".server"
	// Sub-namespace used by spans related to a client connection
	connectionNamespace = namespace + ".connection"

	// Name of span used to trace Start public method
	spanServerStart = serverNamespace + ".start"
	// Name of span used to trace Stop public method
	spanServerStop = serverNamespace + ".stop"
	// Name of span used to trace connection upgrade
	spanServerAccept = serverNamespace + ".accept"
	// Name of span used to trace Broadcast public method
	spanServerBroadcast = serverNamespace + ".broadcast"
	// Name of span used to trace the processing of a single command
	spanConnectionCommand = connectionNamespace + ".command"
	// Name of span used to trace a ping
	spanConnectionPing = connectionNamespace + ".ping"

	// Event used in span to signal a connection has been closed
	eventConnectionClosed = namespace + ".connection_closed"

	// Attribute used to store the connection ID
	attrConnectionId = namespace + ".connection_id"
	// Attribute used to store the command name
	attrCommand = namespace + ".command"
	// Attribute used to store the broadcasting name
	attrBroadcasting = namespace + ".broadcasting"
	// Attribute used to store the listen address
	attrHost = namespace + ".host"
	// Attribute used to indicate close reason code
	attrCloseCode = namespace + ".close_code"
	// Attribute used to indicate received message length
	attrMsgLength = namespace + ".message.length"

	// Metric: total number of accepted connections
	metricConnectionsCounter = "connections_total"
	// Metric: number of active connections
	metricActiveConnectionsGauge = "connections_active"
	// Metric: server started state flag
	metricStartedGauge = "started_info"
)

// # Description
//
// If the error is not nil, the function records the input error in the provided span and set the
// span status with an error code and description. In the other case, the span status is set with
// a Ok code. The function returns the provided error in all cases.
//
// # Usage tips
//
// The function is meant to replace code blocks like this one:
//
//		if err != nil {
//				span.RecordError(err)
//				span.SetStatus(codes.Error, codes.Error.String())
//				return err
//		} else {
//			span.SetStatus(codes.Ok, codes.Ok.String())
//			return nil
//	}
//
// By:
//
//	return handlePotentialError(err, span)
func handlePotentialError(err error, span trace.Span) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, codes.Error.String())
		return err
	}
	span.SetStatus(codes.Ok, codes.Ok.String())
	return nil
}
