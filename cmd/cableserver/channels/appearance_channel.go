package channels

import (
	"context"
	"fmt"

	"github.com/gbdevw/gocable/pkg/cable"
)

const (
	// Name of the appearance channel
	AppearanceChannelName = "AppearanceChannel"
	// Broadcasting of appearance updates
	AppearanceBroadcasting = "appearance"
)

// Channel which tracks users presence.
type AppearanceChannel struct {
	cable.BaseChannel
}

func (ch *AppearanceChannel) Subscribed(ctx context.Context, sub *cable.Subscription) error {
	if err := sub.StreamFrom(AppearanceBroadcasting); err != nil {
		return err
	}
	return ch.update(ctx, sub, "online", nil)
}

func (ch *AppearanceChannel) Unsubscribed(ctx context.Context, sub *cable.Subscription) error {
	return ch.update(ctx, sub, "offline", nil)
}

func (ch *AppearanceChannel) Actions() map[string]cable.ActionFunc {
	return map[string]cable.ActionFunc{
		"appear": func(ctx context.Context, sub *cable.Subscription, data map[string]any) error {
			on, ok := data["on"].(string)
			if !ok || on == "" {
				return fmt.Errorf("missing on")
			}
			return ch.update(ctx, sub, "appear", map[string]any{"on": on})
		},
		"away": func(ctx context.Context, sub *cable.Subscription, data map[string]any) error {
			return ch.update(ctx, sub, "away", nil)
		},
	}
}

// Broadcast the status of the subscription user
func (ch *AppearanceChannel) update(ctx context.Context, sub *cable.Subscription, status string, extra map[string]any) error {
	update := map[string]any{
		"user":   userOf(sub),
		"status": status,
	}
	for k, v := range extra {
		update[k] = v
	}
	return sub.Broadcast(ctx, AppearanceBroadcasting, update)
}
