package cable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Default name used for connection callbacks
const DefaultConnectionName = "Connection"

// Interface for the component which writes server messages to the client.
type Transmitter interface {
	// Write the message to the client.
	Transmit(ctx context.Context, msg *Message) error
}

// Optional callbacks called when a connection is opened and closed.
type ConnectionHandler interface {

	// # Description
	//
	// Callback called once when the connection has been opened, before the welcome message is
	// sent. Return ErrUnauthorized (or an error wrapping it) to reject the connection. Other
	// errors close the connection as a server error.
	Connect(ctx context.Context, conn *Connection) error

	// # Description
	//
	// Callback called once when the connection is closed, after all subscriptions have been
	// removed. Not called when Connect has failed or rejected the connection.
	Disconnect(ctx context.Context, conn *Connection) error
}

// Options used to build a new Connection.
type ConnectionOptions struct {
	// Connection ID. A random UUID is used if empty.
	ID string
	// Name reported for connect/disconnect callbacks. Defaults to DefaultConnectionName.
	Name string
	// HTTP request used to upgrade the connection. Can be nil.
	Request *http.Request
	// Registry used to resolve channels. Must not be nil.
	Registry *Registry
	// Transmitter used to write messages to the client. Must not be nil.
	Transmitter Transmitter
	// PubSub used to stream broadcastings. A new in-memory PubSub is used if nil.
	PubSub PubSub
	// Optional connection handler.
	Handler ConnectionHandler
	// Interceptors applied to every callback, outermost first.
	Interceptors []Interceptor
	// Logger. A Nop logger is used if nil.
	Logger *zap.Logger
}

// A client connection and its subscriptions.
type Connection struct {
	id            string
	name          string
	request       *http.Request
	identifiers   map[string]any
	registry      *Registry
	transmitter   Transmitter
	pubsub        PubSub
	handler       ConnectionHandler
	intercept     Interceptor
	subscriptions map[string]*Subscription
	// Identifiers whose subscribed callback is running
	subscribing map[string]struct{}
	// Indicates that Open has completed successfully
	opened bool
	// Indicates that the connection handler has rejected the connection
	rejected bool
	// Indicates that Close has been called
	closed bool
	// Internal mutex used to protect connection state
	mu     sync.Mutex
	logger *zap.Logger
}

// # Description
//
// Factory which creates a new, non-opened Connection.
//
// # Returns
//
// The new connection or an error if the registry or the transmitter is nil.
func NewConnection(opts ConnectionOptions) (*Connection, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("provided registry is nil")
	}
	if opts.Transmitter == nil {
		return nil, fmt.Errorf("provided transmitter is nil")
	}
	if opts.ID == "" {
		uuid4, err := uuid.NewRandom()
		if err != nil {
			return nil, fmt.Errorf("could not generate connection id: %w", err)
		}
		opts.ID = uuid4.String()
	}
	if opts.Name == "" {
		opts.Name = DefaultConnectionName
	}
	if opts.PubSub == nil {
		opts.PubSub = NewMemoryPubSub()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Connection{
		id:            opts.ID,
		name:          opts.Name,
		request:       opts.Request,
		identifiers:   map[string]any{},
		registry:      opts.Registry,
		transmitter:   opts.Transmitter,
		pubsub:        opts.PubSub,
		handler:       opts.Handler,
		intercept:     Chain(opts.Interceptors...),
		subscriptions: map[string]*Subscription{},
		subscribing:   map[string]struct{}{},
		logger:        opts.Logger.With(zap.String("connection_id", opts.ID)),
	}, nil
}

// Return the connection ID.
func (c *Connection) ID() string {
	return c.id
}

// Return the name reported for connection callbacks.
func (c *Connection) Name() string {
	return c.name
}

// Return the HTTP request used to upgrade the connection. Can be nil.
func (c *Connection) Request() *http.Request {
	return c.request
}

// Store a value which identifies the connection (ex: current user).
func (c *Connection) Identify(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.identifiers[key] = value
}

// Return a copy of the values which identify the connection.
func (c *Connection) Identifiers() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	identifiers := make(map[string]any, len(c.identifiers))
	for k, v := range c.identifiers {
		identifiers[k] = v
	}
	return identifiers
}

// Indicates whether the connection handler has rejected the connection.
func (c *Connection) IsRejected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rejected
}

// Return the sorted identifiers of the current subscriptions.
func (c *Connection) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	identifiers := make([]string, 0, len(c.subscriptions))
	for identifier := range c.subscriptions {
		identifiers = append(identifiers, identifier)
	}
	sort.Strings(identifiers)
	return identifiers
}

// Return the subscription with the provided identifier.
func (c *Connection) Subscription(identifier string) (*Subscription, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub, ok := c.subscriptions[identifier]
	return sub, ok
}

/*************************************************************************************************/
/* LIFECYCLE                                                                                     */
/*************************************************************************************************/

// # Description
//
// Run the connect callback and send the welcome message. If the connection handler rejects the
// connection, an 'unauthorized' disconnect message is sent instead and ErrUnauthorized is
// returned. If the connection handler fails, a 'server_error' disconnect message is sent and the
// handler error is returned. In both cases, the caller must close the underlying connection.
func (c *Connection) Open(ctx context.Context) error {
	inv := &Invocation{
		Kind:         ConnectionInvocation,
		Channel:      c.name,
		Callback:     CallbackConnect,
		ConnectionID: c.id,
		Request:      c.request,
	}
	err := c.invoke(ctx, inv, func(ctx context.Context, inv *Invocation) error {
		if c.handler == nil {
			return nil
		}
		err := c.handler.Connect(ctx, c)
		if errors.Is(err, ErrUnauthorized) {
			// Rejection is part of the normal connection flow
			c.mu.Lock()
			c.rejected = true
			c.mu.Unlock()
			return nil
		}
		return err
	})
	if err != nil {
		c.logger.Error("connection handler failed", zap.Error(err))
		c.transmitOrLog(ctx, newDisconnectMessage(DISCONNECT_REASON_SERVER_ERROR, true))
		return err
	}
	if c.IsRejected() {
		c.logger.Info("connection rejected")
		c.transmitOrLog(ctx, newDisconnectMessage(DISCONNECT_REASON_UNAUTHORIZED, false))
		return ErrUnauthorized
	}
	c.mu.Lock()
	c.opened = true
	c.mu.Unlock()
	return c.transmit(ctx, &Message{Type: MSG_TYPE_WELCOME})
}

// # Description
//
// Remove all subscriptions (unsubscribed callbacks are called) and run the disconnect callback
// if the connection has been opened. Calling Close more than once is a noop.
//
// # Returns
//
// All errors returned by the callbacks, joined.
func (c *Connection) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	opened := c.opened
	subs := make([]*Subscription, 0, len(c.subscriptions))
	for _, sub := range c.subscriptions {
		subs = append(subs, sub)
	}
	c.subscriptions = map[string]*Subscription{}
	c.mu.Unlock()
	sort.Slice(subs, func(i, j int) bool { return subs[i].identifier < subs[j].identifier })
	// Unsubscribe from all channels
	var errs []error
	for _, sub := range subs {
		if err := c.unsubscribe(ctx, sub); err != nil {
			errs = append(errs, err)
		}
	}
	// Call disconnect callback
	if opened {
		inv := &Invocation{
			Kind:         ConnectionInvocation,
			Channel:      c.name,
			Callback:     CallbackDisconnect,
			ConnectionID: c.id,
			Request:      c.request,
		}
		err := c.invoke(ctx, inv, func(ctx context.Context, inv *Invocation) error {
			if c.handler == nil {
				return nil
			}
			return c.handler.Disconnect(ctx, c)
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

/*************************************************************************************************/
/* COMMANDS                                                                                      */
/*************************************************************************************************/

// # Description
//
// Decode and execute a single command received from the client.
//
// # Returns
//
// A MalformedCommandError if the command could not be decoded, an UnknownCommandError if the
// command is not known or the error returned by the executed command.
func (c *Connection) HandleCommand(ctx context.Context, raw []byte) error {
	cmd := new(Command)
	if err := json.Unmarshal(raw, cmd); err != nil {
		return MalformedCommandError{Err: err}
	}
	switch cmd.Command {
	case COMMAND_SUBSCRIBE:
		return c.Subscribe(ctx, cmd.Identifier)
	case COMMAND_UNSUBSCRIBE:
		return c.Unsubscribe(ctx, cmd.Identifier)
	case COMMAND_MESSAGE:
		data, err := decodeData(cmd.Data)
		if err != nil {
			return MalformedCommandError{Err: err}
		}
		return c.Perform(ctx, cmd.Identifier, data)
	default:
		return UnknownCommandError{Command: cmd.Command}
	}
}

// # Description
//
// Subscribe to the channel described by the identifier. The subscribed callback is called
// through the interceptors. The client receives a confirm_subscription message on success and a
// reject_subscription message when the channel is unknown, the callback fails or the channel
// rejects the subscription.
//
// # Returns
//
// ErrAlreadySubscribed, a ChannelNotFoundError or the error returned by the callback.
func (c *Connection) Subscribe(ctx context.Context, identifier string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("connection %s is closed", c.id)
	}
	_, subscribed := c.subscriptions[identifier]
	_, subscribing := c.subscribing[identifier]
	if subscribed || subscribing {
		c.mu.Unlock()
		return ErrAlreadySubscribed
	}
	// Reserve the identifier until the subscription is stored or dropped
	c.subscribing[identifier] = struct{}{}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.subscribing, identifier)
		c.mu.Unlock()
	}()
	reject := &Message{Type: MSG_TYPE_REJECT_SUBSCRIPTION, Identifier: identifier}
	channelName, params, err := ParseIdentifier(identifier)
	if err != nil {
		c.transmitOrLog(ctx, reject)
		return err
	}
	channel, err := c.registry.Lookup(channelName)
	if err != nil {
		c.transmitOrLog(ctx, reject)
		return err
	}
	sub := newSubscription(c, identifier, channelName, params, channel)
	inv := &Invocation{
		Kind:         SubscriptionInvocation,
		Channel:      channelName,
		Callback:     CallbackSubscribed,
		ConnectionID: c.id,
		Request:      c.request,
		Identifier:   identifier,
		Params:       sub.params,
	}
	err = c.invoke(ctx, inv, func(ctx context.Context, inv *Invocation) error {
		return channel.Subscribed(ctx, sub)
	})
	if err != nil || sub.IsRejected() {
		if errStreams := sub.StopAllStreams(); errStreams != nil {
			c.logger.Warn("could not stop streams of rejected subscription", zap.Error(errStreams))
		}
		c.transmitOrLog(ctx, reject)
		return err
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		if errStreams := sub.StopAllStreams(); errStreams != nil {
			c.logger.Warn("could not stop streams of subscription", zap.Error(errStreams))
		}
		return fmt.Errorf("connection %s is closed", c.id)
	}
	c.subscriptions[identifier] = sub
	c.mu.Unlock()
	return c.transmit(ctx, &Message{Type: MSG_TYPE_CONFIRM_SUBSCRIPTION, Identifier: identifier})
}

// # Description
//
// Remove the subscription with the provided identifier. The unsubscribed callback is called
// through the interceptors and the subscription streams are stopped. The subscription is removed
// even if the callback fails.
//
// # Returns
//
// A SubscriptionNotFoundError or the error returned by the callback.
func (c *Connection) Unsubscribe(ctx context.Context, identifier string) error {
	c.mu.Lock()
	sub, ok := c.subscriptions[identifier]
	delete(c.subscriptions, identifier)
	c.mu.Unlock()
	if !ok {
		return SubscriptionNotFoundError{Identifier: identifier}
	}
	return c.unsubscribe(ctx, sub)
}

// # Description
//
// Perform an action on the subscription with the provided identifier. The action name is read
// from the 'action' key of data and defaults to 'receive'. The action is called through the
// interceptors with the whole data as payload.
//
// # Returns
//
// A SubscriptionNotFoundError, an ActionNotFoundError or the error returned by the action.
func (c *Connection) Perform(ctx context.Context, identifier string, data map[string]any) error {
	sub, ok := c.Subscription(identifier)
	if !ok {
		return SubscriptionNotFoundError{Identifier: identifier}
	}
	if data == nil {
		data = map[string]any{}
	}
	action := DEFAULT_ACTION
	if name, ok := data[DATA_ACTION_KEY].(string); ok && name != "" {
		action = name
	}
	var fn ActionFunc
	if actionable, ok := sub.channel.(Actionable); ok {
		fn = actionable.Actions()[action]
	}
	if fn == nil {
		return ActionNotFoundError{Channel: sub.channelName, Action: action}
	}
	inv := &Invocation{
		Kind:         ActionInvocation,
		Channel:      sub.channelName,
		Callback:     action,
		ConnectionID: c.id,
		Request:      c.request,
		Identifier:   identifier,
		Params:       sub.params,
		Data:         data,
	}
	return c.invoke(ctx, inv, func(ctx context.Context, inv *Invocation) error {
		return fn(ctx, sub, inv.Data)
	})
}

/*************************************************************************************************/
/* UTILS                                                                                         */
/*************************************************************************************************/

// Call the unsubscribed callback and stop all streams of an already removed subscription
func (c *Connection) unsubscribe(ctx context.Context, sub *Subscription) error {
	defer func() {
		if err := sub.StopAllStreams(); err != nil {
			c.logger.Warn("could not stop streams", zap.String("identifier", sub.identifier), zap.Error(err))
		}
	}()
	inv := &Invocation{
		Kind:         SubscriptionInvocation,
		Channel:      sub.channelName,
		Callback:     CallbackUnsubscribed,
		ConnectionID: c.id,
		Request:      c.request,
		Identifier:   sub.identifier,
		Params:       sub.params,
	}
	return c.invoke(ctx, inv, func(ctx context.Context, inv *Invocation) error {
		return sub.channel.Unsubscribed(ctx, sub)
	})
}

// Run the final handler through the interceptors
func (c *Connection) invoke(ctx context.Context, inv *Invocation, final Handler) error {
	return c.intercept(final)(ctx, inv)
}

// Write a message to the client
func (c *Connection) transmit(ctx context.Context, msg *Message) error {
	return c.transmitter.Transmit(ctx, msg)
}

// Write a message to the client and log the error if any
func (c *Connection) transmitOrLog(ctx context.Context, msg *Message) {
	if err := c.transmit(ctx, msg); err != nil {
		c.logger.Warn("could not transmit message", zap.String("type", msg.Type), zap.Error(err))
	}
}
