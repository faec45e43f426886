// Package sentrycable reports errors and performance data of channel callbacks to Sentry.
//
// The interceptor returned by New captures an error event for every callback which fails or
// panics and, when tracing is enabled on the Sentry client, emits one transaction per callback.
// Events carry the transaction name <Channel>#<callback> and an 'action_cable' context holding
// the subscription params and, for actions, the action payload.
package sentrycable

import (
	"context"
	"fmt"
	"time"

	"github.com/gbdevw/gocable/pkg/cable"
	"github.com/getsentry/sentry-go"
)

const (
	// Op of the transactions started for callbacks
	OpName = "rails.action_cable"
	// Key of the context set on events
	ContextKey = "action_cable"
	// Key of the subscription params in the context
	ContextParamsKey = "params"
	// Key of the action payload in the context
	ContextDataKey = "data"
)

// Options used to configure the interceptor.
type Options struct {
	// Repanic configures whether to panic again after recovering from a panic in a callback.
	// When false, the panic is returned as a PanicError. Defaults to false.
	Repanic bool
	// WaitForDelivery configures whether to block until events are sent after a panic. Defaults
	// to false.
	WaitForDelivery bool
	// Timeout for the event delivery requests. Defaults to 2 seconds.
	Timeout time.Duration
}

type handler struct {
	repanic         bool
	waitForDelivery bool
	timeout         time.Duration
}

// # Description
//
// Create an interceptor which reports callbacks to the hub found on the callback context, or to
// the current hub if the context carries none. Callbacks are called untouched when the hub has
// no client.
//
// Each callback runs with a clone of the hub put on its context so scope changes made by a
// callback do not leak to other callbacks.
func New(options Options) cable.Interceptor {
	if options.Timeout == 0 {
		options.Timeout = 2 * time.Second
	}
	h := &handler{
		repanic:         options.Repanic,
		waitForDelivery: options.WaitForDelivery,
		timeout:         options.Timeout,
	}
	return h.intercept
}

func (h *handler) intercept(next cable.Handler) cable.Handler {
	return func(ctx context.Context, inv *cable.Invocation) (err error) {
		hub := sentry.GetHubFromContext(ctx)
		if hub == nil {
			hub = sentry.CurrentHub()
		}
		if hub.Client() == nil {
			return next(ctx, inv)
		}
		hub = hub.Clone()
		ctx = sentry.SetHubOnContext(ctx, hub)
		configureScope(hub.Scope(), inv)
		options := []sentry.SpanOption{
			sentry.WithOpName(OpName),
			sentry.WithTransactionSource(sentry.SourceView),
		}
		if inv.Request != nil {
			options = append(options, sentry.ContinueFromRequest(inv.Request))
		}
		transaction := sentry.StartTransaction(ctx, inv.TransactionName(), options...)
		transaction.SetData("cable.connection_id", inv.ConnectionID)
		transaction.SetData("cable.invocation", inv.Kind.String())
		// Error events are captured before the transaction is finished
		defer func() {
			value := recover()
			if value != nil {
				hub.RecoverWithContext(transaction.Context(), value)
				transaction.Status = sentry.SpanStatusInternalError
			}
			transaction.Finish()
			if value == nil {
				return
			}
			if h.waitForDelivery {
				hub.Flush(h.timeout)
			}
			if h.repanic {
				panic(value)
			}
			err = PanicError{Transaction: inv.TransactionName(), Value: value}
		}()
		err = next(transaction.Context(), inv)
		if err != nil {
			hub.CaptureException(err)
			transaction.Status = sentry.SpanStatusInternalError
		} else {
			transaction.Status = sentry.SpanStatusOK
		}
		return err
	}
}

// Set request, transaction name and action_cable context on the scope
func configureScope(scope *sentry.Scope, inv *cable.Invocation) {
	if inv.Request != nil {
		scope.SetRequest(inv.Request)
	}
	// Error events take the name of the callback. Transactions keep the name they were started with.
	name := inv.TransactionName()
	scope.AddEventProcessor(func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
		if event.Transaction == "" {
			event.Transaction = name
		}
		return event
	})
	switch inv.Kind {
	case cable.SubscriptionInvocation:
		scope.SetContext(ContextKey, sentry.Context{
			ContextParamsKey: paramsOf(inv),
		})
	case cable.ActionInvocation:
		scope.SetContext(ContextKey, sentry.Context{
			ContextParamsKey: paramsOf(inv),
			ContextDataKey:   inv.Data,
		})
	}
}

func paramsOf(inv *cable.Invocation) map[string]any {
	if inv.Params == nil {
		return map[string]any{}
	}
	return inv.Params
}

// Error returned in place of a recovered panic when Repanic is disabled.
type PanicError struct {
	// Name of the transaction which panicked
	Transaction string
	// Recovered value
	Value any
}

func (err PanicError) Error() string {
	return fmt.Sprintf("panic during %s: %v", err.Transaction, err.Value)
}

// Return the recovered value if it is an error.
func (err PanicError) Unwrap() error {
	if inner, ok := err.Value.(error); ok {
		return inner
	}
	return nil
}
