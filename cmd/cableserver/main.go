package main

import (
	"github.com/gbdevw/gocable/cmd/cableserver/configuration"
	"github.com/gbdevw/gocable/cmd/cableserver/providers"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		fx.Provide(configuration.LoadConfiguration),
		fx.Provide(providers.ProvideSentryHub),
		fx.Provide(providers.ProvideApplicationContext),
		fx.Provide(providers.ProvideLogger),
		fx.Provide(providers.ProvideTracerProvider),
		fx.Provide(providers.ProvideRegistry),
		// Use invoke to force the server to be instanciated and its hooks to be registered
		fx.Invoke(providers.ProvideCableServer),
	).Run()
}
