package cable

import (
	"context"
	"net/http"
)

// Kind of callback an Invocation executes.
type InvocationKind int

const (
	// connect and disconnect callbacks of the connection
	ConnectionInvocation InvocationKind = iota
	// subscribed and unsubscribed callbacks of a channel
	SubscriptionInvocation
	// action performed on a channel
	ActionInvocation
)

// String representation used in logs and span attributes.
func (kind InvocationKind) String() string {
	switch kind {
	case ConnectionInvocation:
		return "connection"
	case SubscriptionInvocation:
		return "subscription"
	case ActionInvocation:
		return "action"
	default:
		return "unknown"
	}
}

// Data describing a single callback execution. Interceptors receive it for every connection,
// subscription and action callback.
type Invocation struct {
	// Kind of callback
	Kind InvocationKind
	// Name of the channel, or of the connection for connection callbacks
	Channel string
	// Name of the callback: connect, disconnect, subscribed, unsubscribed or the action name
	Callback string
	// ID of the connection
	ConnectionID string
	// HTTP request used to upgrade the connection. Can be nil.
	Request *http.Request
	// Subscription identifier. Empty for connection callbacks.
	Identifier string
	// Subscription parameters. Nil for connection callbacks.
	Params Params
	// Action payload. Nil unless Kind is ActionInvocation.
	Data map[string]any
}

// Return the name of the invocation formatted as <Channel>#<callback>.
func (inv *Invocation) TransactionName() string {
	return inv.Channel + "#" + inv.Callback
}

// Function which executes an invocation.
type Handler func(ctx context.Context, inv *Invocation) error

// Middleware which wraps a Handler. Interceptors must call next to execute the callback and
// should return the error returned by next.
type Interceptor func(next Handler) Handler

// # Description
//
// Compose interceptors into a single one. The first interceptor is the outermost: it sees the
// invocation first and the result last.
func Chain(interceptors ...Interceptor) Interceptor {
	return func(next Handler) Handler {
		for i := len(interceptors) - 1; i >= 0; i-- {
			if interceptors[i] != nil {
				next = interceptors[i](next)
			}
		}
		return next
	}
}
