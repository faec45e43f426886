package providers

import (
	"strings"

	"github.com/gbdevw/gocable/cmd/cableserver/configuration"
	"go.uber.org/zap"
)

// Provide a development logger when the log level is debug, a production logger otherwise.
func ProvideLogger(config configuration.Configuration) (*zap.Logger, error) {
	if strings.ToLower(config.LogLevel) == "debug" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
