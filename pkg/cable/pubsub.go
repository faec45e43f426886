package cable

import (
	"context"
	"sync"
)

// Function called for each message broadcast to a stream.
type StreamCallback func(ctx context.Context, message any)

// Interface for the component which delivers broadcastings to subscriptions.
type PubSub interface {
	// Register callback for the broadcasting under the provided subscriber id.
	Subscribe(broadcasting string, subscriberId string, callback StreamCallback) error
	// Remove the subscriber from the broadcasting. Noop if not subscribed.
	Unsubscribe(broadcasting string, subscriberId string) error
	// Deliver message to all current subscribers of the broadcasting.
	Broadcast(ctx context.Context, broadcasting string, message any) error
}

// In-memory PubSub implementation. Broadcasts are delivered synchronously.
type memoryPubSub struct {
	streams map[string]map[string]StreamCallback
	mu      sync.RWMutex
}

// Factory which creates a new in-memory PubSub.
func NewMemoryPubSub() PubSub {
	return &memoryPubSub{
		streams: map[string]map[string]StreamCallback{},
	}
}

func (ps *memoryPubSub) Subscribe(broadcasting string, subscriberId string, callback StreamCallback) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	subscribers, ok := ps.streams[broadcasting]
	if !ok {
		subscribers = map[string]StreamCallback{}
		ps.streams[broadcasting] = subscribers
	}
	subscribers[subscriberId] = callback
	return nil
}

func (ps *memoryPubSub) Unsubscribe(broadcasting string, subscriberId string) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	subscribers, ok := ps.streams[broadcasting]
	if !ok {
		return nil
	}
	delete(subscribers, subscriberId)
	if len(subscribers) == 0 {
		delete(ps.streams, broadcasting)
	}
	return nil
}

func (ps *memoryPubSub) Broadcast(ctx context.Context, broadcasting string, message any) error {
	// Copy callbacks so they can unsubscribe while being called
	ps.mu.RLock()
	callbacks := make([]StreamCallback, 0, len(ps.streams[broadcasting]))
	for _, callback := range ps.streams[broadcasting] {
		callbacks = append(callbacks, callback)
	}
	ps.mu.RUnlock()
	for _, callback := range callbacks {
		callback(ctx, message)
	}
	return nil
}
