// This package contains a minimal websocket channel host with the following features:
//   - subscribe/unsubscribe to channels identified by a JSON identifier
//   - perform channel actions with a JSON payload
//   - stream broadcastings from server to subscribed clients
//   - intercept every connection, subscription and action callback
package cable

// Constants used in messages exchanged with clients
const (
	// Websocket sub-protocol negotiated with clients
	PROTOCOL_JSON_V1 = "actioncable-v1-json"
	// Command: subscribe to a channel
	COMMAND_SUBSCRIBE = "subscribe"
	// Command: unsubscribe from a channel
	COMMAND_UNSUBSCRIBE = "unsubscribe"
	// Command: perform an action on a subscribed channel
	COMMAND_MESSAGE = "message"
	// Message type: welcome, sent once the connection is opened
	MSG_TYPE_WELCOME = "welcome"
	// Message type: ping, sent by server on a regular basis
	MSG_TYPE_PING = "ping"
	// Message type: subscription has been confirmed
	MSG_TYPE_CONFIRM_SUBSCRIPTION = "confirm_subscription"
	// Message type: subscription has been rejected
	MSG_TYPE_REJECT_SUBSCRIPTION = "reject_subscription"
	// Message type: server is about to close the connection
	MSG_TYPE_DISCONNECT = "disconnect"
	// Disconnect reason: connection rejected by the connection handler
	DISCONNECT_REASON_UNAUTHORIZED = "unauthorized"
	// Disconnect reason: connection handler failed
	DISCONNECT_REASON_SERVER_ERROR = "server_error"
	// Disconnect reason: server shutdown
	DISCONNECT_REASON_SERVER_RESTART = "server_restart"
	// Disconnect reason: client sent an invalid request
	DISCONNECT_REASON_INVALID_REQUEST = "invalid_request"
	// Key of the identifier which holds the channel name
	IDENTIFIER_CHANNEL_KEY = "channel"
	// Key of the action in the data of a message command
	DATA_ACTION_KEY = "action"
	// Action used when a message command does not specify any action
	DEFAULT_ACTION = "receive"
)

// Names of the intercepted callbacks
const (
	// Connection has been opened
	CallbackConnect = "connect"
	// Connection has been closed
	CallbackDisconnect = "disconnect"
	// Channel has been subscribed
	CallbackSubscribed = "subscribed"
	// Channel has been unsubscribed
	CallbackUnsubscribed = "unsubscribed"
)
