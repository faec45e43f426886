package providers

import (
	"context"
	"time"

	"github.com/gbdevw/gocable/cmd/cableserver/configuration"
	"github.com/getsentry/sentry-go"
	"go.uber.org/fx"
)

// Delay used to flush buffered events on shutdown
const sentryFlushTimeout = 2 * time.Second

// # Description
//
// Provide the Sentry hub used to report callback errors. An empty DSN yields a client which drops
// all events. Buffered events are flushed when the application stops.
func ProvideSentryHub(lc fx.Lifecycle, config configuration.Configuration) (*sentry.Hub, error) {
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              config.SentryDsn,
		Environment:      config.SentryEnvironment,
		EnableTracing:    config.SentryTracesSampleRate > 0,
		TracesSampleRate: config.SentryTracesSampleRate,
	})
	if err != nil {
		return nil, err
	}
	hub := sentry.NewHub(client, sentry.NewScope())
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			hub.Flush(sentryFlushTimeout)
			return nil
		},
	})
	return hub, nil
}
