package channels

import (
	"context"
	"fmt"

	"github.com/gbdevw/gocable/pkg/cable"
)

// Name of the chat channel
const ChatChannelName = "ChatChannel"

// Channel which relays messages between the users of a room. Clients must subscribe with a
// room_id parameter.
type ChatChannel struct {
	cable.BaseChannel
}

// Return the broadcasting of a room
func ChatRoom(roomId any) string {
	return fmt.Sprintf("chat_%v", roomId)
}

func (ch *ChatChannel) Subscribed(ctx context.Context, sub *cable.Subscription) error {
	roomId, ok := sub.Params()["room_id"]
	if !ok {
		return fmt.Errorf("missing room_id parameter")
	}
	return sub.StreamFrom(ChatRoom(roomId))
}

func (ch *ChatChannel) Actions() map[string]cable.ActionFunc {
	return map[string]cable.ActionFunc{
		"speak": ch.speak,
	}
}

// Broadcast the text to the room
func (ch *ChatChannel) speak(ctx context.Context, sub *cable.Subscription, data map[string]any) error {
	text, ok := data["text"].(string)
	if !ok || text == "" {
		return fmt.Errorf("missing text")
	}
	return sub.Broadcast(ctx, ChatRoom(sub.Params()["room_id"]), map[string]any{
		"user": userOf(sub),
		"text": text,
	})
}
