package providers

import (
	"context"
	"net/http"

	"github.com/gbdevw/gocable/cmd/cableserver/channels"
	"github.com/gbdevw/gocable/cmd/cableserver/configuration"
	"github.com/gbdevw/gocable/pkg/cable"
	"github.com/gbdevw/gocable/pkg/otelcable"
	"github.com/gbdevw/gocable/pkg/sentrycable"
	"github.com/gbdevw/gocable/pkg/zapcable"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Provide the cable server and register start/stop hooks to start/stop the server
func ProvideCableServer(
	lc fx.Lifecycle,
	ctx context.Context,
	config configuration.Configuration,
	registry *cable.Registry,
	logger *zap.Logger,
	tracerProvider trace.TracerProvider) (*cable.Server, error) {
	opts := cable.NewServerConfigurationOptions().
		WithMountPath(config.MountPath).
		WithPingIntervalSeconds(config.PingIntervalSeconds).
		WithOriginPatterns(config.OriginPatterns...).
		WithShutdownTimeoutMs(config.ShutdownTimeoutMs)
	// Build server
	srv, err := cable.NewServer(ctx, &http.Server{Addr: config.Address}, registry, opts, logger, tracerProvider, nil)
	if err != nil {
		return nil, err
	}
	// Sentry is the outermost interceptor
	srv.Use(
		sentrycable.New(sentrycable.Options{}),
		otelcable.New(tracerProvider),
		zapcable.New(logger),
	)
	srv.SetConnectionHandler(channels.NewConnectionHandler(config.RequireUser, logger))
	// Register Start and Stop hooks to Start and Stop the cable server
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("starting cable server", zap.String("address", config.Address), zap.String("mount_path", config.MountPath))
			return srv.Start()
		},
		OnStop: func(ctx context.Context) error {
			return srv.Stop()
		},
	})
	return srv, nil
}
