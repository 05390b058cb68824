package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"objbridge/message"
)

// LoggingMiddleware logs every request with its command, duration and, for exception
// replies, the error text.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.L()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req message.Message) message.Message {
			start := time.Now()
			reply := next(ctx, req)
			fields := []zap.Field{
				zap.String("command", req.Command()),
				zap.Duration("duration", time.Since(start)),
			}
			if name := req.String(message.KeyName); name != "" {
				fields = append(fields, zap.String("name", name))
			}
			if err := message.CheckException(reply); err != nil {
				logger.Info("request failed", append(fields, zap.Error(err))...)
				return reply
			}
			logger.Info("request handled", fields...)
			return reply
		}
	}
}
