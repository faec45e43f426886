package channels

import (
	"github.com/gbdevw/gocable/pkg/cable"
)

// Create a registry with the demo channels
func NewRegistry() (*cable.Registry, error) {
	registry := cable.NewRegistry()
	if err := registry.Register(ChatChannelName, func() cable.Channel { return new(ChatChannel) }); err != nil {
		return nil, err
	}
	if err := registry.Register(AppearanceChannelName, func() cable.Channel { return new(AppearanceChannel) }); err != nil {
		return nil, err
	}
	return registry, nil
}
