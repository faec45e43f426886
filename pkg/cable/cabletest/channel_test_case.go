package cabletest

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gbdevw/gocable/pkg/cable"
)

// Drives a single subscription of a stub connection to a registered channel. Messages sent to the
// client are recorded by Transmitter.
type ChannelTestCase struct {
	// Recorder for messages sent to the client
	Transmitter *RecordingTransmitter
	registry    *cable.Registry
	channel     string
	request     *http.Request
	handler     cable.ConnectionHandler
	// Interceptors applied to every callback
	interceptors []cable.Interceptor
	conn         *cable.Connection
	connected    bool
	identifier   string
}

// # Description
//
// Factory which creates a ChannelTestCase for the channel registered under the provided name.
// The stub connection is created on the first call to Connect or Subscribe.
func NewChannelTestCase(registry *cable.Registry, channel string, interceptors ...cable.Interceptor) *ChannelTestCase {
	return &ChannelTestCase{
		Transmitter:  NewRecordingTransmitter(),
		registry:     registry,
		channel:      channel,
		interceptors: interceptors,
	}
}

// Set the upgrade request of the stub connection. Must be called before Connect or Subscribe.
func (tc *ChannelTestCase) WithRequest(r *http.Request) *ChannelTestCase {
	tc.request = r
	return tc
}

// Set the connection handler of the stub connection. Must be called before Connect or Subscribe.
func (tc *ChannelTestCase) WithConnectionHandler(handler cable.ConnectionHandler) *ChannelTestCase {
	tc.handler = handler
	return tc
}

// # Description
//
// Open the stub connection: the connect callback is called through the interceptors and the
// welcome message is sent. Calling Connect more than once is a noop.
func (tc *ChannelTestCase) Connect(ctx context.Context) error {
	if tc.connected {
		return nil
	}
	if err := tc.stub(); err != nil {
		return err
	}
	tc.connected = true
	return tc.conn.Open(ctx)
}

// Create the stub connection if needed. The connection is not opened.
func (tc *ChannelTestCase) stub() error {
	if tc.conn != nil {
		return nil
	}
	conn, err := cable.NewConnection(cable.ConnectionOptions{
		Request:      tc.request,
		Registry:     tc.registry,
		Transmitter:  tc.Transmitter,
		Handler:      tc.handler,
		Interceptors: tc.interceptors,
	})
	if err != nil {
		return err
	}
	tc.conn = conn
	return nil
}

// # Description
//
// Subscribe to the channel with the provided params. The connect callback is not called unless
// Connect has been used before.
func (tc *ChannelTestCase) Subscribe(ctx context.Context, params cable.Params) error {
	if err := tc.stub(); err != nil {
		return err
	}
	identifier, err := cable.BuildIdentifier(tc.channel, params)
	if err != nil {
		return err
	}
	tc.identifier = identifier
	return tc.conn.Subscribe(ctx, identifier)
}

// # Description
//
// Perform the action with the provided data. The action name is added to data under the
// 'action' key. Provided data is not modified.
func (tc *ChannelTestCase) Perform(ctx context.Context, action string, data map[string]any) error {
	if tc.conn == nil {
		return fmt.Errorf("test case is not subscribed")
	}
	payload := make(map[string]any, len(data)+1)
	for k, v := range data {
		payload[k] = v
	}
	payload[cable.DATA_ACTION_KEY] = action
	return tc.conn.Perform(ctx, tc.identifier, payload)
}

// Remove the subscription.
func (tc *ChannelTestCase) Unsubscribe(ctx context.Context) error {
	if tc.conn == nil {
		return fmt.Errorf("test case is not subscribed")
	}
	return tc.conn.Unsubscribe(ctx, tc.identifier)
}

// Close the stub connection: remaining subscriptions are removed and the disconnect callback is
// called if Connect has been used.
func (tc *ChannelTestCase) Disconnect(ctx context.Context) error {
	if tc.conn == nil {
		return nil
	}
	return tc.conn.Close(ctx)
}

// Return the stub connection. Nil before Connect or Subscribe.
func (tc *ChannelTestCase) Connection() *cable.Connection {
	return tc.conn
}

// Return the current subscription, if any.
func (tc *ChannelTestCase) Subscription() (*cable.Subscription, bool) {
	if tc.conn == nil {
		return nil, false
	}
	return tc.conn.Subscription(tc.identifier)
}

// Indicates whether the subscription has been confirmed and is still active.
func (tc *ChannelTestCase) IsConfirmed() bool {
	if _, ok := tc.Subscription(); !ok {
		return false
	}
	return tc.hasMessage(cable.MSG_TYPE_CONFIRM_SUBSCRIPTION)
}

// Indicates whether the subscription has been rejected.
func (tc *ChannelTestCase) IsRejected() bool {
	return tc.hasMessage(cable.MSG_TYPE_REJECT_SUBSCRIPTION)
}

// Return the payloads transmitted on the subscription.
func (tc *ChannelTestCase) Transmissions() []any {
	payloads := []any{}
	for _, msg := range tc.Transmitter.MessagesOfType("") {
		if msg.Identifier == tc.identifier {
			payloads = append(payloads, msg.Message)
		}
	}
	return payloads
}

func (tc *ChannelTestCase) hasMessage(msgType string) bool {
	for _, msg := range tc.Transmitter.MessagesOfType(msgType) {
		if msg.Identifier == tc.identifier {
			return true
		}
	}
	return false
}
