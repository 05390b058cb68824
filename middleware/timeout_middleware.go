package middleware

import (
	"context"
	"time"

	"objbridge/message"
)

// TimeOutMiddleware answers with an exception when the handler takes longer than timeout.
// The handler keeps running; its result is discarded.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req message.Message) message.Message {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan message.Message, 1)
			go func() {
				done <- next(ctx, req)
			}()

			select {
			case reply := <-done:
				return reply
			case <-ctx.Done():
				return message.Exception("request timed out")
			}
		}
	}
}
