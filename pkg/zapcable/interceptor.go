// Package zapcable logs channel callbacks with zap.
package zapcable

import (
	"context"
	"time"

	"github.com/gbdevw/gocable/pkg/cable"
	"go.uber.org/zap"
)

// # Description
//
// Build and return an interceptor which writes one log entry per callback: Debug level when the
// callback succeeds, Error level with the error when it fails. A Nop logger is used if nil.
func New(logger *zap.Logger) cable.Interceptor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next cable.Handler) cable.Handler {
		return func(ctx context.Context, inv *cable.Invocation) error {
			start := time.Now()
			err := next(ctx, inv)
			fields := []zap.Field{
				zap.String("transaction", inv.TransactionName()),
				zap.Stringer("invocation", inv.Kind),
				zap.String("connection_id", inv.ConnectionID),
				zap.Duration("duration", time.Since(start)),
			}
			if inv.Identifier != "" {
				fields = append(fields, zap.String("identifier", inv.Identifier))
			}
			if err != nil {
				logger.Error("callback failed", append(fields, zap.Error(err))...)
				return err
			}
			logger.Debug("callback completed", fields...)
			return nil
		}
	}
}
