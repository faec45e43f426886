// Package cableclient contains a client for cable servers built on gorilla/websocket
// (https://github.com/gorilla/websocket).
package cableclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gbdevw/gocable/pkg/cable"
	"github.com/gorilla/websocket"
)

// Error returned by Receive when the connection has been closed.
type CloseError struct {
	// Close code
	Code int
	// Close reason
	Reason string
	// Error from the websocket library
	Err error
}

func (err CloseError) Error() string {
	return fmt.Sprintf("connection closed with code %d: %s", err.Code, err.Reason)
}

func (err CloseError) Unwrap() error {
	return err.Err
}

// Client connected to a cable server.
type Client struct {
	// Underlying websocket connection
	conn *websocket.Conn
	// Mutex used to serialize writes
	writeMu sync.Mutex
	// Mutex used to serialize reads
	readMu sync.Mutex
}

// # Description
//
// Dial opens a connection to the cable server and performs a WebSocket handshake.
//
// # Inputs
//
//   - ctx: Context used for timeout purpose
//   - target: Server URL. Example: ws://localhost:8080/cable
//   - header: Optional headers used during the handshake (Origin, Cookie, sentry-trace, ...)
//   - dialer: Optional dialer. If nil, a copy of the default dialer of gorilla library is used.
//     The actioncable-v1-json subprotocol is requested when the dialer requests none.
//
// # Returns
//
// The connected client, the server response to the handshake or an error if any.
func Dial(ctx context.Context, target string, header http.Header, dialer *websocket.Dialer) (*Client, *http.Response, error) {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	d := *dialer
	if len(d.Subprotocols) == 0 {
		d.Subprotocols = []string{cable.PROTOCOL_JSON_V1}
	}
	conn, res, err := d.DialContext(ctx, target, header)
	if err != nil {
		return nil, res, err
	}
	return &Client{conn: conn}, res, nil
}

// Return the subprotocol negotiated with the server.
func (c *Client) Subprotocol() string {
	return c.conn.Subprotocol()
}

// # Description
//
// Send a subscribe command for the channel with the provided params.
//
// # Returns
//
// The identifier of the subscription or an error if any.
func (c *Client) Subscribe(ctx context.Context, channel string, params cable.Params) (string, error) {
	identifier, err := cable.BuildIdentifier(channel, params)
	if err != nil {
		return "", err
	}
	return identifier, c.Send(ctx, &cable.Command{Command: cable.COMMAND_SUBSCRIBE, Identifier: identifier})
}

// Send an unsubscribe command for the subscription.
func (c *Client) Unsubscribe(ctx context.Context, identifier string) error {
	return c.Send(ctx, &cable.Command{Command: cable.COMMAND_UNSUBSCRIBE, Identifier: identifier})
}

// # Description
//
// Send a message command which performs the action on the subscription. The action name is
// added to data under the 'action' key.
func (c *Client) Perform(ctx context.Context, identifier string, action string, data map[string]any) error {
	payload := make(map[string]any, len(data)+1)
	for k, v := range data {
		payload[k] = v
	}
	payload[cable.DATA_ACTION_KEY] = action
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("could not marshal data: %w", err)
	}
	return c.Send(ctx, &cable.Command{Command: cable.COMMAND_MESSAGE, Identifier: identifier, Data: string(raw)})
}

// Send a raw command to the server.
func (c *Client) Send(ctx context.Context, cmd *cable.Command) error {
	raw, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("could not marshal command: %w", err)
	}
	return c.Write(ctx, raw)
}

// Write a text message to the server.
func (c *Client) Write(ctx context.Context, raw []byte) error {
	return c.write(ctx, websocket.TextMessage, raw)
}

// Write a binary message to the server. Binary messages are not part of the protocol.
func (c *Client) WriteBinary(ctx context.Context, raw []byte) error {
	return c.write(ctx, websocket.BinaryMessage, raw)
}

func (c *Client) write(ctx context.Context, msgType int, raw []byte) error {
	select {
	case <-ctx.Done():
		// Shortcut if context is done (timeout/cancel)
		return ctx.Err()
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	deadline, _ := ctx.Deadline()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteMessage(msgType, raw)
}

// # Description
//
// Read messages from the server until a message which is not a ping is received. Receive blocks
// until a message is received, until connection closes or until ctx is done. The connection is
// not usable anymore once ctx is done during a Receive call.
//
// # Returns
//
// The received message, a CloseError if the connection has been closed or an error.
func (c *Client) Receive(ctx context.Context) (*cable.Message, error) {
	select {
	case <-ctx.Done():
		// Shortcut if context is done (timeout/cancel)
		return nil, ctx.Err()
	default:
	}
	c.readMu.Lock()
	defer c.readMu.Unlock()
	deadline, _ := ctx.Deadline()
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	// Unblock the pending read when ctx is canceled
	stop := context.AfterFunc(ctx, func() { c.conn.SetReadDeadline(time.Now()) })
	defer stop()
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				return nil, CloseError{Code: ce.Code, Reason: ce.Text, Err: err}
			}
			if errors.Is(err, io.EOF) ||
				strings.Contains(strings.ToLower(err.Error()), "use of closed network connection") {
				return nil, CloseError{Code: websocket.CloseAbnormalClosure, Reason: err.Error(), Err: err}
			}
			return nil, err
		}
		msg := new(cable.Message)
		if err := json.Unmarshal(raw, msg); err != nil {
			return nil, fmt.Errorf("could not decode message %q: %w", string(raw), err)
		}
		if msg.Type == cable.MSG_TYPE_PING {
			continue
		}
		return msg, nil
	}
}

// # Description
//
// Read messages until one matches. Messages which do not match are discarded.
func (c *Client) ReceiveUntil(ctx context.Context, match func(msg *cable.Message) bool) (*cable.Message, error) {
	for {
		msg, err := c.Receive(ctx)
		if err != nil {
			return nil, err
		}
		if match(msg) {
			return msg, nil
		}
	}
}

// Send a close message with a normal closure status and close the connection.
func (c *Client) Close() error {
	c.writeMu.Lock()
	err := c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(5*time.Second))
	c.writeMu.Unlock()
	return errors.Join(err, c.conn.Close())
}
