package providers

import (
	"github.com/gbdevw/gocable/cmd/cableserver/channels"
	"github.com/gbdevw/gocable/pkg/cable"
)

// Provide the registry of the channels served by the server
func ProvideRegistry() (*cable.Registry, error) {
	return channels.NewRegistry()
}
