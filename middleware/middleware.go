// Package middleware wraps the request handler of the reference server.
//
// A handler turns one request into exactly one reply; failures are reported as exception
// envelopes, never as a missing reply, because the client waits for every request.
package middleware

import (
	"context"

	"objbridge/message"
)

// HandlerFunc answers one request.
type HandlerFunc func(ctx context.Context, req message.Message) message.Message

type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares into one. The first one is outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// Skip applies mw to every request except the listed commands.
func Skip(mw Middleware, commands ...string) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		wrapped := mw(next)
		return func(ctx context.Context, req message.Message) message.Message {
			for _, c := range commands {
				if req.Command() == c {
					return next(ctx, req)
				}
			}
			return wrapped(ctx, req)
		}
	}
}
