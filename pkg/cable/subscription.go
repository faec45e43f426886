package cable

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Subscription of a connection to a channel.
type Subscription struct {
	// JSON identifier sent by the client
	identifier string
	// Name of the subscribed channel
	channelName string
	// Parameters decoded from the identifier
	params Params
	// Channel instance bound to this subscription
	channel Channel
	// Connection which owns the subscription
	conn *Connection
	// Broadcastings the subscription streams from
	streams map[string]struct{}
	// Indicates that the channel has rejected the subscription
	rejected bool
	// Internal mutex used to protect streams and rejected flag
	mu sync.Mutex
}

// Factory used by the connection when a client subscribes
func newSubscription(conn *Connection, identifier string, channelName string, params Params, channel Channel) *Subscription {
	if params == nil {
		params = Params{}
	}
	return &Subscription{
		identifier:  identifier,
		channelName: channelName,
		params:      params,
		channel:     channel,
		conn:        conn,
		streams:     map[string]struct{}{},
	}
}

// Return the JSON identifier of the subscription.
func (sub *Subscription) Identifier() string {
	return sub.identifier
}

// Return the name of the subscribed channel.
func (sub *Subscription) ChannelName() string {
	return sub.channelName
}

// Return the subscription parameters.
func (sub *Subscription) Params() Params {
	return sub.params
}

// Return the channel instance bound to the subscription.
func (sub *Subscription) Channel() Channel {
	return sub.channel
}

// Return the connection which owns the subscription.
func (sub *Subscription) Connection() *Connection {
	return sub.conn
}

// # Description
//
// Send a message to the client on this subscription. The data is used as message payload.
func (sub *Subscription) Transmit(ctx context.Context, data any) error {
	return sub.conn.transmit(ctx, &Message{
		Identifier: sub.identifier,
		Message:    data,
	})
}

// # Description
//
// Reject the subscription. Only meaningful from the Subscribed callback: the client receives a
// reject_subscription message and the subscription is dropped once the callback completes.
func (sub *Subscription) Reject() {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	sub.rejected = true
}

// Indicates whether the subscription has been rejected.
func (sub *Subscription) IsRejected() bool {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.rejected
}

// # Description
//
// Start streaming messages broadcast to the provided broadcasting to the client.
func (sub *Subscription) StreamFrom(broadcasting string) error {
	err := sub.conn.pubsub.Subscribe(broadcasting, sub.streamId(), func(ctx context.Context, message any) {
		if err := sub.Transmit(ctx, message); err != nil {
			sub.conn.logger.Warn("could not transmit broadcast",
				zap.String("connection_id", sub.conn.id),
				zap.String("broadcasting", broadcasting),
				zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	sub.mu.Lock()
	defer sub.mu.Unlock()
	sub.streams[broadcasting] = struct{}{}
	return nil
}

// # Description
//
// Deliver message to every subscription which streams from the broadcasting, through the PubSub
// of the connection.
func (sub *Subscription) Broadcast(ctx context.Context, broadcasting string, message any) error {
	return sub.conn.pubsub.Broadcast(ctx, broadcasting, message)
}

// Return the broadcastings the subscription streams from.
func (sub *Subscription) Streams() []string {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	streams := make([]string, 0, len(sub.streams))
	for broadcasting := range sub.streams {
		streams = append(streams, broadcasting)
	}
	return streams
}

// # Description
//
// Stop all streams started with StreamFrom.
func (sub *Subscription) StopAllStreams() error {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	var errs []error
	for broadcasting := range sub.streams {
		if err := sub.conn.pubsub.Unsubscribe(broadcasting, sub.streamId()); err != nil {
			errs = append(errs, err)
		}
		delete(sub.streams, broadcasting)
	}
	return errors.Join(errs...)
}

// ID used to register the subscription to the pubsub
func (sub *Subscription) streamId() string {
	return sub.conn.id + "/" + sub.identifier
}
