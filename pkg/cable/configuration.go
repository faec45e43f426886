package cable

import (
	"github.com/go-playground/validator/v10"
)

// Defines configuration options for the cable server.
//
// Use the factory function to get a new instance of the struct with nice defaults and then modify
// settings using With*** methods.
type ServerConfigurationOptions struct {
	// Path the server accepts websocket upgrades on. Other paths are answered with 404.
	//
	// Defaults to /cable. Must start with a /.
	MountPath string `validate:"required,startswith=/"`
	// Name reported for connection callbacks (connect/disconnect).
	//
	// Defaults to Connection. Must not be empty.
	ConnectionName string `validate:"required"`
	// Delay between two ping messages sent to each client (seconds).
	//
	// Defaults to 3. Must be at least 1.
	PingIntervalSeconds int `validate:"gte=1"`
	// Maximum size of a message read from a client (bytes). A value of 0 keeps the websocket
	// library default (32768 bytes).
	//
	// Defaults to 0. Must be greater or equal to 0.
	ReadLimitBytes int64 `validate:"gte=0"`
	// Host patterns for authorized cross origin requests. Same origin requests are always
	// accepted.
	//
	// Defaults to none.
	OriginPatterns []string
	// Delay to complete Stop() method: close client connections and shutdown the HTTP server
	// (milliseconds).
	//
	// Defaults to 10000 (10 seconds) - 0 disables the timeout.
	ShutdownTimeoutMs int64 `validate:"gte=0"`
}

// # Description
//
// Set opts.MountPath and return the modified object. Method does not validate inputs.
func (opts *ServerConfigurationOptions) WithMountPath(value string) *ServerConfigurationOptions {
	opts.MountPath = value
	return opts
}

// # Description
//
// Set opts.ConnectionName and return the modified object. Method does not validate inputs.
//
// # ConnectionName
//
// This option defines the name used in place of a channel name for connect and disconnect
// callbacks. Interceptors report transactions as <ConnectionName>#connect.
func (opts *ServerConfigurationOptions) WithConnectionName(value string) *ServerConfigurationOptions {
	opts.ConnectionName = value
	return opts
}

// # Description
//
// Set opts.PingIntervalSeconds and return the modified object. Method does not validate inputs.
func (opts *ServerConfigurationOptions) WithPingIntervalSeconds(value int) *ServerConfigurationOptions {
	opts.PingIntervalSeconds = value
	return opts
}

// # Description
//
// Set opts.ReadLimitBytes and return the modified object. Method does not validate inputs.
func (opts *ServerConfigurationOptions) WithReadLimitBytes(value int64) *ServerConfigurationOptions {
	opts.ReadLimitBytes = value
	return opts
}

// # Description
//
// Set opts.OriginPatterns and return the modified object. Method does not validate inputs.
//
// # OriginPatterns
//
// Patterns are matched against the host of the Origin header with path.Match. Example:
// "*.example.com".
func (opts *ServerConfigurationOptions) WithOriginPatterns(value ...string) *ServerConfigurationOptions {
	opts.OriginPatterns = value
	return opts
}

// # Description
//
// Set opts.ShutdownTimeoutMs and return the modified object. Method does not validate inputs.
func (opts *ServerConfigurationOptions) WithShutdownTimeoutMs(value int64) *ServerConfigurationOptions {
	opts.ShutdownTimeoutMs = value
	return opts
}

// # Description
//
// Factory which creates a new ServerConfigurationOptions object with nice defaults. Settings can
// then be modified by the user by using With*** methods.
//
// # Default settings
//
//   - MountPath = /cable
//   - ConnectionName = Connection
//   - PingIntervalSeconds = 3
//   - ReadLimitBytes = 0 , websocket library default is used.
//   - OriginPatterns = none , only same origin requests are accepted.
//   - ShutdownTimeoutMs = 10000 (10 seconds).
func NewServerConfigurationOptions() *ServerConfigurationOptions {
	return &ServerConfigurationOptions{
		MountPath:           "/cable",
		ConnectionName:      DefaultConnectionName,
		PingIntervalSeconds: 3,
		ReadLimitBytes:      0,
		OriginPatterns:      nil,
		ShutdownTimeoutMs:   10000,
	}
}

// # Description
//
// Helper function which validates ServerConfigurationOptions. Options are valid if:
//   - opts is not nil
//   - opts.MountPath is not empty and starts with /
//   - opts.ConnectionName is not empty
//   - opts.PingIntervalSeconds is greater or equal to 1
//   - opts.ReadLimitBytes is greater or equal to 0
//   - opts.ShutdownTimeoutMs is greater or equal to 0
//
// # Returns
//
// InvalidValidationError for bad values passed in and nil or ValidationErrors as error otherwise.
// You will need to assert the error if it's not nil eg. err.(validator.ValidationErrors) to access
// the array of errors.
func Validate(opts *ServerConfigurationOptions) error {
	return validator.New().Struct(opts)
}
