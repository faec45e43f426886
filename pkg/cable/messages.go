package cable

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

/*****************************************************************************/
/* CLIENT COMMANDS                                                           */
/*****************************************************************************/

// Command sent by a client.
type Command struct {
	// Mandatory command name: subscribe, unsubscribe or message
	Command string `json:"command"`
	// JSON encoded channel identifier
	Identifier string `json:"identifier"`
	// JSON encoded action data. Only used by message commands.
	Data string `json:"data,omitempty"`
}

/*****************************************************************************/
/* SERVER MESSAGES                                                           */
/*****************************************************************************/

// Message sent by the server to a client. Control messages carry a Type while channel messages
// carry an Identifier and a Message payload.
type Message struct {
	// Control message type. Empty for channel messages.
	Type string `json:"type,omitempty"`
	// Identifier of the subscription the message relates to
	Identifier string `json:"identifier,omitempty"`
	// Message payload
	Message any `json:"message,omitempty"`
	// Disconnect reason
	Reason string `json:"reason,omitempty"`
	// Indicates whether the client should try to reconnect after a disconnect message
	Reconnect *bool `json:"reconnect,omitempty"`
}

// Build a disconnect message
func newDisconnectMessage(reason string, reconnect bool) *Message {
	return &Message{
		Type:      MSG_TYPE_DISCONNECT,
		Reason:    reason,
		Reconnect: &reconnect,
	}
}

/*****************************************************************************/
/* IDENTIFIERS                                                               */
/*****************************************************************************/

// Subscription parameters decoded from a channel identifier.
type Params map[string]any

// # Description
//
// Decode a JSON channel identifier. The channel name is extracted from the 'channel' key and all
// other keys are returned as subscription parameters. Numbers are kept as json.Number so they
// are reported as they were sent.
//
// # Returns
//
// The channel name and the subscription parameters or an error if the identifier is not a JSON
// object or does not contain a channel name.
func ParseIdentifier(identifier string) (string, Params, error) {
	decoded := map[string]any{}
	if err := decodeObject(identifier, &decoded); err != nil {
		return "", nil, fmt.Errorf("could not decode identifier %q: %w", identifier, err)
	}
	channel, ok := decoded[IDENTIFIER_CHANNEL_KEY].(string)
	if !ok || channel == "" {
		return "", nil, ErrMissingChannel
	}
	delete(decoded, IDENTIFIER_CHANNEL_KEY)
	return channel, Params(decoded), nil
}

// # Description
//
// Build a JSON channel identifier for the provided channel and parameters. Keys are sorted by
// encoding/json so the same channel and parameters always produce the same identifier.
func BuildIdentifier(channel string, params Params) (string, error) {
	if channel == "" {
		return "", ErrMissingChannel
	}
	identifier := make(map[string]any, len(params)+1)
	for k, v := range params {
		identifier[k] = v
	}
	identifier[IDENTIFIER_CHANNEL_KEY] = channel
	raw, err := json.Marshal(identifier)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Decode the JSON data of a message command
func decodeData(data string) (map[string]any, error) {
	decoded := map[string]any{}
	if data == "" {
		return decoded, nil
	}
	if err := decodeObject(data, &decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}

// Decode a single JSON value with numbers kept as json.Number. Trailing data is an error.
func decodeObject(raw string, v any) error {
	decoder := json.NewDecoder(strings.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(v); err != nil {
		return err
	}
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("unexpected data after JSON value")
	}
	return nil
}
