// Package configuration loads the cable server configuration from environment variables.
package configuration

import (
	"github.com/caarlos0/env/v7"
)

// Prefix of all environment variables
const EnvPrefix = "CABLE_"

// Configuration of the cable server. All variables are prefixed with CABLE_.
type Configuration struct {
	// Address the server listens on
	Address string `env:"ADDRESS" envDefault:"localhost:8080"`
	// Path the server accepts websocket upgrades on
	MountPath string `env:"MOUNT_PATH" envDefault:"/cable"`
	// Delay between two pings sent to clients
	PingIntervalSeconds int `env:"PING_INTERVAL_SECONDS" envDefault:"3"`
	// Comma separated host patterns authorized for cross origin requests
	OriginPatterns []string `env:"ORIGIN_PATTERNS" envSeparator:","`
	// Delay to stop the server (milliseconds)
	ShutdownTimeoutMs int64 `env:"SHUTDOWN_TIMEOUT_MS" envDefault:"10000"`
	// Reject connections which do not provide a user query parameter
	RequireUser bool `env:"REQUIRE_USER" envDefault:"false"`
	// Log level: debug or info
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	// Sentry DSN. Errors are not reported when empty.
	SentryDsn string `env:"SENTRY_DSN"`
	// Sentry environment
	SentryEnvironment string `env:"SENTRY_ENVIRONMENT" envDefault:"development"`
	// Sentry traces sample rate. Tracing is disabled when 0.
	SentryTracesSampleRate float64 `env:"SENTRY_TRACES_SAMPLE_RATE" envDefault:"0"`
	// Indicates whether OpenTelemetry tracing is enabled or not
	TracingEnabled bool `env:"TRACING_ENABLED" envDefault:"false"`
	// Host and port of the OTLP/HTTP tracing backend
	TracingEndpoint string `env:"TRACING_ENDPOINT" envDefault:"localhost:4318"`
}

// Load the configuration from environment variables.
func LoadConfiguration() (Configuration, error) {
	cfg := Configuration{}
	if err := env.Parse(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Configuration{}, err
	}
	return cfg, nil
}
