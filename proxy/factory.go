package proxy

import (
	"io"
	"time"

	"go.uber.org/zap"

	"objbridge/schema"
	"objbridge/value"
)

// DefaultReleaseTimeout bounds how long Release waits for the server's acknowledgement.
const DefaultReleaseTimeout = 2 * time.Second

// Factory creates proxies that share one type cache and one set of call settings.
type Factory struct {
	cache          *Cache
	logger         *zap.Logger
	strict         bool
	callTimeout    time.Duration
	releaseTimeout time.Duration
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithStrictOverloads makes calls fail with value.ErrAmbiguousOverload when several
// overloads fit equally well instead of taking the last one.
func WithStrictOverloads(strict bool) FactoryOption {
	return func(f *Factory) { f.strict = strict }
}

// WithCallTimeout bounds every field access and call. Zero waits indefinitely.
func WithCallTimeout(d time.Duration) FactoryOption {
	return func(f *Factory) { f.callTimeout = d }
}

// WithReleaseTimeout bounds Release. It must be positive.
func WithReleaseTimeout(d time.Duration) FactoryOption {
	return func(f *Factory) {
		if d > 0 {
			f.releaseTimeout = d
		}
	}
}

// WithLogger sets the factory logger.
func WithLogger(l *zap.Logger) FactoryOption {
	return func(f *Factory) { f.logger = l }
}

// NewFactory returns a factory drawing types from cache.
func NewFactory(cache *Cache, opts ...FactoryOption) *Factory {
	f := &Factory{
		cache:          cache,
		logger:         zap.L(),
		releaseTimeout: DefaultReleaseTimeout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Cache returns the type cache.
func (f *Factory) Cache() *Cache { return f.cache }

// Bind wraps so in a proxy bound to ch.
func (f *Factory) Bind(ch Channel, so schema.SerializedObject) *Object {
	return &Object{
		typ:     f.cache.Get(so.TypeDescription),
		factory: f,
		state:   bound,
		id:      so.ID,
		ch:      ch,
	}
}

// BindOwned is Bind for a proxy that owns ch. Release closes owner once the destructor
// has been sent.
func (f *Factory) BindOwned(ch Channel, so schema.SerializedObject, owner io.Closer) *Object {
	o := f.Bind(ch, so)
	o.owned = owner
	return o
}

// Unbound returns a proxy of desc with no remote identity. It exists so construction can
// fail without leaving a handle that would need releasing.
func (f *Factory) Unbound(desc schema.TypeDescription) *Object {
	return &Object{typ: f.cache.Get(desc), factory: f}
}

// Resolve picks an overload using the factory's tie policy.
func (f *Factory) Resolve(candidates []schema.MethodSignature, args []any) (schema.MethodSignature, error) {
	return f.resolve(candidates, args)
}

func (f *Factory) resolve(candidates []schema.MethodSignature, args []any) (schema.MethodSignature, error) {
	sig, err := value.Resolve(candidates, args, f.strict)
	if err == nil && !f.strict && value.Ambiguous(candidates, args) {
		f.logger.Debug("ambiguous overload, using last candidate", zap.Stringer("signature", sig))
	}
	return sig, err
}

func (f *Factory) resolver(ch Channel) value.Resolver {
	return channelResolver{factory: f, ch: ch}
}

// channelResolver binds returned objects to the channel of the call that produced them.
type channelResolver struct {
	factory *Factory
	ch      Channel
}

func (r channelResolver) Resolve(so schema.SerializedObject) (any, error) {
	return r.factory.Bind(r.ch, so), nil
}
