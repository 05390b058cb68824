package bridge

import (
	"time"

	"go.uber.org/zap"

	"objbridge/codec"
)

// Option configures a Session.
type Option func(*options)

type options struct {
	logger           *zap.Logger
	convertCamelCase bool
	connectTimeout   time.Duration
	callTimeout      time.Duration
	releaseTimeout   time.Duration
	codec            codec.CodecType
	strict           bool
	debug            bool
	expectedVersion  string
}

func defaultOptions() options {
	return options{
		convertCamelCase: true,
		connectTimeout:   DefaultConnectTimeout,
		codec:            codec.CodecTypeJSON,
		expectedVersion:  ExpectedVersion,
	}
}

// WithLogger sets the session logger. The global zap logger is used otherwise.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithConvertCamelCase controls whether proxy method names are rewritten to snake_case.
// It is on by default and never changes the names sent to the server.
func WithConvertCamelCase(convert bool) Option {
	return func(o *options) { o.convertCamelCase = convert }
}

// WithConnectTimeout bounds the handshake.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.connectTimeout = d
		}
	}
}

// WithCallTimeout bounds every construction, field access and method call. Zero, the
// default, waits indefinitely.
func WithCallTimeout(d time.Duration) Option {
	return func(o *options) { o.callTimeout = d }
}

// WithReleaseTimeout bounds how long releasing a proxy waits for the server.
func WithReleaseTimeout(d time.Duration) Option {
	return func(o *options) { o.releaseTimeout = d }
}

// WithCodec selects the codec for frames this client sends.
func WithCodec(t codec.CodecType) Option {
	return func(o *options) { o.codec = t }
}

// WithStrictOverloads turns overload ties into value.ErrAmbiguousOverload.
func WithStrictOverloads(strict bool) Option {
	return func(o *options) { o.strict = strict }
}

// WithDebug logs channel connects and binds at debug level.
func WithDebug(debug bool) Option {
	return func(o *options) { o.debug = debug }
}

// WithExpectedVersion overrides the server version the client is built against.
// An empty version keeps the default.
func WithExpectedVersion(v string) Option {
	return func(o *options) {
		if v != "" {
			o.expectedVersion = v
		}
	}
}
