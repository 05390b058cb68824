package middleware

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"objbridge/message"
)

// RecoverMiddleware turns a panic in the handler into an exception reply so one faulty
// remote method does not take down the connection.
func RecoverMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.L()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req message.Message) (reply message.Message) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("handler panic",
						zap.String("command", req.Command()),
						zap.Any("panic", r),
						zap.Stack("stack"))
					reply = message.Exception(fmt.Sprintf("internal error: %v", r))
				}
			}()
			return next(ctx, req)
		}
	}
}
