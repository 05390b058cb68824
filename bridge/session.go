// Package bridge is the client entry point: a Session connects to a remote object server,
// checks its version, and hands out proxies for remote objects.
//
//	s, err := bridge.Connect("127.0.0.1:4827")
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
//	core, err := s.Singleton(bridge.ClassCore)
//	if err != nil {
//		return err
//	}
//	defer core.Release()
//	exposure, err := core.Call("get_exposure")
package bridge

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"objbridge/message"
	"objbridge/proxy"
	"objbridge/schema"
	"objbridge/transport"
	"objbridge/value"
)

const (
	DefaultPort           = 4827
	DefaultConnectTimeout = 500 * time.Millisecond

	// ExpectedVersion is the server protocol version this client is built against.
	ExpectedVersion = "2.5.0"
	// LegacyVersion is assumed when the server does not report a version.
	LegacyVersion = "2.0.0"
)

// Well-known singleton entry points exposed by the server.
const (
	ClassCore     = "mmcorej.CMMCore"
	ClassStudio   = "org.micromanager.Studio"
	ClassMagellan = "org.micromanager.magellan.api.MagellanAPI"
)

var (
	ErrConnectTimeout = errors.New("bridge: no handshake reply from server")
	ErrNoConstructor  = errors.New("bridge: no constructor for class")
	ErrClosed         = errors.New("bridge: session closed")
)

// Session owns the primary channel to the server and the proxy type cache.
type Session struct {
	addr    string
	host    string
	opts    options
	logger  *zap.Logger
	ch      *transport.ReqChannel
	factory *proxy.Factory

	version  string
	mismatch bool

	mu      sync.Mutex
	closed  bool
	closers []closer
}

type closer interface {
	Close() error
}

// Connect opens a session to the server at addr and performs the handshake. A server
// that does not answer within the connect timeout yields ErrConnectTimeout; an exception
// reply yields *message.RemoteFault. A version other than the expected one is logged as
// a warning and does not fail the session.
func Connect(addr string, opts ...Option) (*Session, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.L()
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("bridge: address %q: %w", addr, err)
	}

	s := &Session{addr: addr, host: host, opts: o, logger: o.logger}
	ch, err := transport.Dial(addr, s.channelOptions(transport.WithDialTimeout(o.connectTimeout))...)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, fmt.Errorf("%w: %v", ErrConnectTimeout, err)
		}
		return nil, fmt.Errorf("bridge: connect %s: %w", addr, err)
	}
	s.ch = ch

	if err := s.handshake(); err != nil {
		ch.Close()
		return nil, err
	}

	s.factory = proxy.NewFactory(
		proxy.NewCache(o.convertCamelCase, o.logger),
		proxy.WithLogger(o.logger),
		proxy.WithStrictOverloads(o.strict),
		proxy.WithCallTimeout(o.callTimeout),
		proxy.WithReleaseTimeout(o.releaseTimeout),
	)
	return s, nil
}

func (s *Session) channelOptions(extra ...transport.Option) []transport.Option {
	logger := zap.NewNop()
	if s.opts.debug {
		logger = s.logger
	}
	return append([]transport.Option{
		transport.WithCodec(s.opts.codec),
		transport.WithLogger(logger),
	}, extra...)
}

func (s *Session) handshake() error {
	reply, err := s.ch.Request(message.Connect(), s.opts.connectTimeout)
	switch {
	case errors.Is(err, transport.ErrNoReply), errors.Is(err, transport.ErrTimeout):
		return ErrConnectTimeout
	case err != nil:
		return err
	}

	s.version = reply.String(message.KeyVersion)
	if s.version == "" {
		s.version = LegacyVersion
	}
	if s.version != s.opts.expectedVersion {
		s.mismatch = true
		s.logger.Warn("version mismatch between server and client",
			zap.String("server", s.version),
			zap.String("expected", s.opts.expectedVersion))
	}
	s.logger.Debug("session connected", zap.String("addr", s.addr), zap.String("version", s.version))
	return nil
}

// ServerVersion returns the version the server reported, LegacyVersion if none.
func (s *Session) ServerVersion() string { return s.version }

// VersionMismatch reports whether the server version differs from the expected one.
func (s *Session) VersionMismatch() bool { return s.mismatch }

// Factory returns the proxy factory shared by every object of the session.
func (s *Session) Factory() *proxy.Factory { return s.factory }

// ConstructOption configures one construction.
type ConstructOption func(*constructOptions)

type constructOptions struct {
	dedicated bool
}

// OnDedicatedChannel serves the new object on its own channel so its blocking calls do
// not stall the session's primary channel. The object owns the channel: releasing it
// closes the channel, and so does closing the session.
func OnDedicatedChannel() ConstructOption {
	return func(o *constructOptions) { o.dedicated = true }
}

// Construct creates a remote instance of classpath and returns its proxy. The
// constructor overload is resolved against args the same way method calls are.
func (s *Session) Construct(classpath string, args []any, opts ...ConstructOption) (*proxy.Object, error) {
	var co constructOptions
	for _, opt := range opts {
		opt(&co)
	}
	if s.isClosed() {
		return nil, ErrClosed
	}

	reply, err := s.ch.Request(message.GetConstructors(classpath), s.opts.callTimeout)
	if err != nil {
		return nil, err
	}
	all, err := schema.ParseSignatures(reply[message.KeyAPI])
	if err != nil {
		return nil, fmt.Errorf("bridge: constructors of %s: %w", classpath, err)
	}
	var candidates []schema.MethodSignature
	for _, sig := range all {
		if sig.Name == classpath {
			candidates = append(candidates, sig)
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoConstructor, classpath)
	}

	args, err = proxy.PresentArgs(args)
	if err != nil {
		return nil, err
	}
	sig, err := s.factory.Resolve(candidates, args)
	if err != nil {
		return nil, err
	}
	encoded, err := value.EncodeArgs(sig, args)
	if err != nil {
		return nil, err
	}

	req := message.Constructor(classpath, sig.ArgumentStrings(), encoded, co.dedicated)
	reply, err = s.ch.Request(req, s.opts.callTimeout)
	if err != nil {
		return nil, err
	}
	so, err := schema.ParseSerialized(reply)
	if err != nil {
		return nil, fmt.Errorf("bridge: construct %s: %w", classpath, err)
	}

	if !co.dedicated {
		return s.factory.Bind(s.ch, so), nil
	}
	dch, err := s.dialDedicated(so.Port)
	if err != nil {
		// The object exists on the server; release it over the primary channel.
		s.factory.Bind(s.ch, so).Release()
		return nil, err
	}
	return s.factory.BindOwned(dch, so, ownedChannel{s: s, ch: dch}), nil
}

// ownedChannel closes a dedicated channel on behalf of its object and drops it from
// the session.
type ownedChannel struct {
	s  *Session
	ch *transport.ReqChannel
}

func (o ownedChannel) Close() error {
	o.s.untrack(o.ch)
	return o.ch.Close()
}

// Singleton fetches one of the server's well-known entry objects, such as ClassCore.
func (s *Session) Singleton(class string) (*proxy.Object, error) {
	return s.Construct(class, nil)
}

func (s *Session) dialDedicated(port int) (*transport.ReqChannel, error) {
	if port <= 0 {
		return nil, fmt.Errorf("bridge: dedicated channel requested but server reported port %d", port)
	}
	addr := net.JoinHostPort(s.host, strconv.Itoa(port))
	ch, err := transport.Dial(addr, s.channelOptions(transport.WithDialTimeout(s.opts.connectTimeout))...)
	if err != nil {
		return nil, fmt.Errorf("bridge: dedicated channel %s: %w", addr, err)
	}
	if err := s.track(ch); err != nil {
		ch.Close()
		return nil, err
	}
	return ch, nil
}

// ConnectPush binds a push channel on port of the session host. The server connects
// to it to pull data the client pushes.
func (s *Session) ConnectPush(port int) (*transport.PushChannel, error) {
	addr := net.JoinHostPort(s.host, strconv.Itoa(port))
	push, err := transport.Bind(addr, s.channelOptions()...)
	if err != nil {
		return nil, err
	}
	if err := s.track(push); err != nil {
		push.Close()
		return nil, err
	}
	return push, nil
}

// ConnectPull connects a pull channel to a push channel the server bound on port.
func (s *Session) ConnectPull(port int) (*transport.PullChannel, error) {
	addr := net.JoinHostPort(s.host, strconv.Itoa(port))
	pull, err := transport.DialPull(addr, s.channelOptions(transport.WithDialTimeout(s.opts.connectTimeout))...)
	if err != nil {
		return nil, err
	}
	if err := s.track(pull); err != nil {
		pull.Close()
		return nil, err
	}
	return pull, nil
}

func (s *Session) track(c closer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.closers = append(s.closers, c)
	return nil
}

func (s *Session) untrack(c closer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, tracked := range s.closers {
		if tracked == c {
			s.closers = append(s.closers[:i], s.closers[i+1:]...)
			return
		}
	}
}

func (s *Session) openChannels() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.closers)
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close closes every channel of the session and drops the type cache. Proxies still
// alive afterwards release without error; any other operation fails with
// transport.ErrClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	closers := s.closers
	s.closers = nil
	s.mu.Unlock()

	var errs []error
	for _, c := range closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.ch.Close(); err != nil {
		errs = append(errs, err)
	}
	s.factory.Cache().Reset()
	return errors.Join(errs...)
}
