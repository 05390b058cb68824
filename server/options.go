package server

import (
	"time"

	"go.uber.org/zap"

	"objbridge/middleware"
)

// DefaultVersion is the protocol version reported in the handshake.
const DefaultVersion = "2.5.0"

// Option configures a Server.
type Option func(*Server)

// WithVersion sets the version reported by the handshake. An empty version makes the
// server answer like a legacy server, without a version key.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithLogger sets the server logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithRateLimit rejects requests beyond r per second with an exception reply.
func WithRateLimit(r float64, burst int) Option {
	return func(s *Server) { s.Use(middleware.RateLimitMiddleware(r, burst)) }
}

// WithRequestTimeout answers requests that take longer than d with an exception.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.Use(middleware.TimeOutMiddleware(d)) }
}

// WithRequestLogging logs every request at info level.
func WithRequestLogging() Option {
	return func(s *Server) { s.logRequests = true }
}
