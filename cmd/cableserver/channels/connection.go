// Package channels contains the channels served by the demo cable server.
package channels

import (
	"context"

	"github.com/gbdevw/gocable/pkg/cable"
	"go.uber.org/zap"
)

// Key of the connection identifier which holds the user name
const UserIdentifier = "user"

// Connection handler which identifies users with the 'user' query parameter of the upgrade
// request.
type ConnectionHandler struct {
	requireUser bool
	logger      *zap.Logger
}

// Factory which creates a new ConnectionHandler. When requireUser is set, connections without a
// user are rejected.
func NewConnectionHandler(requireUser bool, logger *zap.Logger) *ConnectionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConnectionHandler{requireUser: requireUser, logger: logger}
}

func (h *ConnectionHandler) Connect(ctx context.Context, conn *cable.Connection) error {
	user := ""
	if conn.Request() != nil {
		user = conn.Request().URL.Query().Get(UserIdentifier)
	}
	if user == "" {
		if h.requireUser {
			return cable.ErrUnauthorized
		}
		user = "anonymous"
	}
	conn.Identify(UserIdentifier, user)
	h.logger.Info("user connected", zap.String("user", user), zap.String("connection_id", conn.ID()))
	return nil
}

func (h *ConnectionHandler) Disconnect(ctx context.Context, conn *cable.Connection) error {
	h.logger.Info("user disconnected", zap.Any("user", conn.Identifiers()[UserIdentifier]), zap.String("connection_id", conn.ID()))
	return nil
}

// Return the user which owns the subscription
func userOf(sub *cable.Subscription) string {
	if user, ok := sub.Connection().Identifiers()[UserIdentifier].(string); ok {
		return user
	}
	return "anonymous"
}
