package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"objbridge/message"
)

// RateLimitMiddleware limits requests with a token bucket. The handshake and destructors
// are never limited.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	limit := func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req message.Message) message.Message {
			if !limiter.Allow() {
				return message.Exception("rate limit exceeded")
			}
			return next(ctx, req)
		}
	}
	return Skip(limit, message.CmdConnect, message.CmdDestructor)
}
