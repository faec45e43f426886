package providers

import (
	"context"
	"testing"

	"github.com/gbdevw/gocable/cmd/cableserver/configuration"
	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
)

// Test the application context carries the provided hub.
func TestProvideApplicationContext(t *testing.T) {
	hub := sentry.NewHub(nil, sentry.NewScope())
	ctx := ProvideApplicationContext(hub)
	require.Same(t, hub, sentry.GetHubFromContext(ctx))
}

// Test the logger is provided for each supported level.
func TestProvideLogger(t *testing.T) {
	for _, level := range []string{"debug", "info"} {
		logger, err := ProvideLogger(configuration.Configuration{LogLevel: level})
		require.NoError(t, err)
		require.NotNil(t, logger)
	}
}

// Test no tracer provider is provided when tracing is disabled.
func TestProvideTracerProviderDisabled(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	tp, err := ProvideTracerProvider(lc, context.Background(), configuration.Configuration{})
	require.NoError(t, err)
	require.Nil(t, tp)
}

// Test the provided hub has a client, even without DSN.
func TestProvideSentryHub(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	hub, err := ProvideSentryHub(lc, configuration.Configuration{SentryEnvironment: "test"})
	require.NoError(t, err)
	require.NotNil(t, hub.Client())
	require.Equal(t, "test", hub.Client().Options().Environment)
	lc.RequireStart().RequireStop()
}

// Test the cable server is started and stopped with the application lifecycle.
func TestProvideCableServer(t *testing.T) {
	config := configuration.Configuration{
		Address:             "localhost:0",
		MountPath:           "/cable",
		PingIntervalSeconds: 3,
		ShutdownTimeoutMs:   1000,
		LogLevel:            "info",
	}
	lc := fxtest.NewLifecycle(t)
	hub, err := ProvideSentryHub(lc, config)
	require.NoError(t, err)
	logger, err := ProvideLogger(config)
	require.NoError(t, err)
	registry, err := ProvideRegistry()
	require.NoError(t, err)
	srv, err := ProvideCableServer(lc, ProvideApplicationContext(hub), config, registry, logger, nil)
	require.NoError(t, err)
	lc.RequireStart()
	require.True(t, srv.IsStarted())
	lc.RequireStop()
	require.False(t, srv.IsStarted())
}
