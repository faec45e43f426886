package cable

import (
	"context"
	"fmt"
	"sync"
)

// Interface which defines the callbacks called when a client subscribes to or unsubscribes from
// a channel. A new channel instance is created for each subscription.
type Channel interface {

	// # Description
	//
	// Callback called when a client subscribes to the channel. Returning an error rejects the
	// subscription. Calling sub.Reject() rejects the subscription without reporting an error.
	//
	// # Inputs
	//
	//	- ctx: context bound to the connection lifecycle and to this callback.
	//	- sub: The new subscription. Use it to transmit messages or stream broadcastings.
	Subscribed(ctx context.Context, sub *Subscription) error

	// # Description
	//
	// Callback called when a client unsubscribes from the channel or when the connection is
	// closed. The subscription is removed even if an error is returned.
	Unsubscribed(ctx context.Context, sub *Subscription) error
}

// Function called when a client performs an action on a subscribed channel. The data contains
// the whole payload sent by the client, 'action' key included.
type ActionFunc func(ctx context.Context, sub *Subscription, data map[string]any) error

// Optional interface a channel implements to expose actions clients can perform.
type Actionable interface {
	// Return the actions exposed by the channel, indexed by name.
	Actions() map[string]ActionFunc
}

// Noop Channel implementation which can be embedded by channels which do not need to implement
// all callbacks.
type BaseChannel struct{}

// Noop
func (BaseChannel) Subscribed(ctx context.Context, sub *Subscription) error { return nil }

// Noop
func (BaseChannel) Unsubscribed(ctx context.Context, sub *Subscription) error { return nil }

// Factory used to create a new channel instance for each subscription.
type ChannelFactory func() Channel

// Registry of channels clients can subscribe to.
type Registry struct {
	factories map[string]ChannelFactory
	mu        sync.RWMutex
}

// Factory which creates a new, empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: map[string]ChannelFactory{},
	}
}

// # Description
//
// Register a channel factory under the provided name. The name is the one clients use in the
// 'channel' key of their identifiers and the one reported in transaction names.
//
// # Returns
//
// An error if name is empty, factory is nil or a channel has already been registered with the
// same name.
func (registry *Registry) Register(name string, factory ChannelFactory) error {
	if name == "" {
		return fmt.Errorf("provided channel name is empty")
	}
	if factory == nil {
		return fmt.Errorf("provided factory for channel %s is nil", name)
	}
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if _, ok := registry.factories[name]; ok {
		return fmt.Errorf("channel %s is already registered", name)
	}
	registry.factories[name] = factory
	return nil
}

// # Description
//
// Create a new instance of the channel registered with the provided name.
//
// # Returns
//
// The new channel or a ChannelNotFoundError.
func (registry *Registry) Lookup(name string) (Channel, error) {
	registry.mu.RLock()
	factory, ok := registry.factories[name]
	registry.mu.RUnlock()
	if !ok {
		return nil, ChannelNotFoundError{Channel: name}
	}
	return factory(), nil
}

// Return the names of registered channels.
func (registry *Registry) Names() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	names := make([]string, 0, len(registry.factories))
	for name := range registry.factories {
		names = append(names, name)
	}
	return names
}
