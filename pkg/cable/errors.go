package cable

import (
	"errors"
	"fmt"
)

var (
	// Returned when a client subscribes twice with the same identifier
	ErrAlreadySubscribed = errors.New("already subscribed")
	// Returned by a ConnectionHandler to reject a connection. The rejection is not reported as
	// a callback failure: the connection is closed with an 'unauthorized' disconnect message.
	ErrUnauthorized = errors.New("unauthorized connection")
	// Returned when an identifier does not contain a channel name
	ErrMissingChannel = errors.New("identifier does not contain a channel name")
)

/*************************************************************************************************/
/* CHANNEL NOT FOUND ERROR                                                                       */
/*************************************************************************************************/

// Error returned when a client subscribes to a channel that is not registered.
type ChannelNotFoundError struct {
	// Requested channel name
	Channel string
}

func (err ChannelNotFoundError) Error() string {
	return fmt.Sprintf("channel not found: %s", err.Channel)
}

/*************************************************************************************************/
/* SUBSCRIPTION NOT FOUND ERROR                                                                  */
/*************************************************************************************************/

// Error returned when a command targets a subscription the connection does not have.
type SubscriptionNotFoundError struct {
	// Identifier used by the command
	Identifier string
}

func (err SubscriptionNotFoundError) Error() string {
	return fmt.Sprintf("unable to find subscription with identifier: %s", err.Identifier)
}

/*************************************************************************************************/
/* ACTION NOT FOUND ERROR                                                                        */
/*************************************************************************************************/

// Error returned when a client performs an action the channel does not expose.
type ActionNotFoundError struct {
	// Channel name
	Channel string
	// Requested action
	Action string
}

func (err ActionNotFoundError) Error() string {
	return fmt.Sprintf("unable to process %s#%s", err.Channel, err.Action)
}

/*************************************************************************************************/
/* COMMAND ERRORS                                                                                */
/*************************************************************************************************/

// Error returned when a command could not be decoded.
type MalformedCommandError struct {
	// Embedded error
	Err error
}

func (err MalformedCommandError) Error() string {
	return fmt.Sprintf("malformed command: %v", err.Err)
}

func (err MalformedCommandError) Unwrap() error {
	return err.Err
}

// Error returned when a command is not known by the server.
type UnknownCommandError struct {
	// Received command
	Command string
}

func (err UnknownCommandError) Error() string {
	return fmt.Sprintf("received unrecognized command: %s", err.Command)
}

/*************************************************************************************************/
/* SERVER START ERROR                                                                            */
/*************************************************************************************************/

// Specific error type for errors which occurs when server starts.
type ServerStartError struct {
	// Embedded error
	Err error
}

func (err ServerStartError) Error() string {
	return fmt.Sprintf("cable server failed to start: %v", err.Err)
}

func (err ServerStartError) Unwrap() error {
	return err.Err
}
