package cable

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// Test error messages and wrapping of typed errors.
func TestErrors(t *testing.T) {
	require.Equal(t, "channel not found: ChatChannel", ChannelNotFoundError{Channel: "ChatChannel"}.Error())
	require.Equal(t, "unable to process AppearanceChannel#appear", ActionNotFoundError{Channel: "AppearanceChannel", Action: "appear"}.Error())
	require.Contains(t, SubscriptionNotFoundError{Identifier: "id"}.Error(), "id")
	require.Contains(t, UnknownCommandError{Command: "foo"}.Error(), "foo")
	inner := errors.New("inner")
	require.ErrorIs(t, MalformedCommandError{Err: inner}, inner)
	require.ErrorIs(t, ServerStartError{Err: inner}, inner)
	require.Equal(t, "cable server failed to start: inner", ServerStartError{Err: inner}.Error())
	// Typed errors can be found in a wrapped chain
	wrapped := fmt.Errorf("wrapped: %w", ChannelNotFoundError{Channel: "X"})
	target := new(ChannelNotFoundError)
	require.ErrorAs(t, wrapped, target)
	require.Equal(t, "X", target.Channel)
}
