package providers

import (
	"context"

	"github.com/getsentry/sentry-go"
)

// Provide the root context of the application. The context carries the Sentry hub so that
// callbacks report to the configured client.
func ProvideApplicationContext(hub *sentry.Hub) context.Context {
	return sentry.SetHubOnContext(context.Background(), hub)
}
