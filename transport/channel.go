package transport

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"objbridge/codec"
	"objbridge/message"
	"objbridge/protocol"
)

type frame struct {
	seq uint32
	msg message.Message
}

// ReqChannel is a request/reply channel to one server endpoint.
//
// Cancellation is not supported: when a bounded wait gives up, the server may still be
// processing the request. Its late reply is recognized by sequence number and dropped.
type ReqChannel struct {
	conn   *Conn
	logger *zap.Logger

	mu       sync.Mutex
	seq      uint32
	awaiting bool

	gate     chan struct{} // one slot, held across Send and Receive by Request
	replies  chan frame
	done     chan struct{}
	readDone chan struct{}
	readErr  error
	closed   atomic.Bool
	once     sync.Once
}

// Option configures a channel.
type Option func(*options)

type options struct {
	codec  codec.CodecType
	logger *zap.Logger
	dialer net.Dialer
}

// WithCodec selects the codec for outgoing frames. JSON is the default.
func WithCodec(t codec.CodecType) Option {
	return func(o *options) { o.codec = t }
}

// WithLogger sets the logger used for channel-level debug events.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithDialTimeout bounds the TCP connect.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) { o.dialer.Timeout = d }
}

func buildOptions(opts []Option) options {
	o := options{codec: codec.CodecTypeJSON}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.L()
	}
	return o
}

// Dial connects a request channel to addr.
func Dial(addr string, opts ...Option) (*ReqChannel, error) {
	o := buildOptions(opts)
	conn, err := o.dialer.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	o.logger.Debug("request channel connected", zap.String("addr", addr))
	return NewReqChannel(conn, opts...), nil
}

// NewReqChannel starts a request channel over an established connection.
func NewReqChannel(conn net.Conn, opts ...Option) *ReqChannel {
	o := buildOptions(opts)
	c := &ReqChannel{
		conn:     NewConn(conn, o.codec),
		logger:   o.logger,
		gate:     make(chan struct{}, 1),
		replies:  make(chan frame, 4),
		done:     make(chan struct{}),
		readDone: make(chan struct{}),
	}
	go c.recvLoop()
	return c
}

// Send writes a request. A positive timeout bounds the write and ErrTimeout reports that
// it did not complete. Send fails with ErrRequestInFlight while a reply is outstanding.
func (c *ReqChannel) Send(m message.Message, timeout time.Duration) error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.awaiting {
		return ErrRequestInFlight
	}
	c.seq++
	if err := c.conn.WriteMessage(protocol.MsgTypeRequest, c.seq, m, timeout); err != nil {
		if c.closed.Load() {
			return ErrClosed
		}
		return err
	}
	c.awaiting = true
	return nil
}

// Receive waits for the reply to the outstanding request. A zero timeout blocks until the
// reply arrives or the channel closes; a positive timeout returns ErrNoReply once it
// elapses, leaving the request outstanding. Exception replies are returned as
// *message.RemoteFault.
func (c *ReqChannel) Receive(timeout time.Duration) (message.Message, error) {
	c.mu.Lock()
	if !c.awaiting {
		c.mu.Unlock()
		return nil, ErrNoRequest
	}
	want := c.seq
	c.mu.Unlock()

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case f := <-c.replies:
			if reply, ok, err := c.accept(f, want); ok || err != nil {
				return reply, err
			}
		case <-deadline:
			return nil, ErrNoReply
		case <-c.done:
			return nil, ErrClosed
		case <-c.readDone:
			select {
			case f := <-c.replies:
				if reply, ok, err := c.accept(f, want); ok || err != nil {
					return reply, err
				}
			default:
				return nil, c.readErr
			}
		}
	}
}

func (c *ReqChannel) accept(f frame, want uint32) (message.Message, bool, error) {
	if f.seq != want {
		c.logger.Debug("dropping stale reply", zap.Uint32("seq", f.seq), zap.Uint32("want", want))
		return nil, false, nil
	}
	c.mu.Lock()
	c.awaiting = false
	c.mu.Unlock()
	if err := message.CheckException(f.msg); err != nil {
		return nil, true, err
	}
	return f.msg, true, nil
}

// Request sends m and waits for its reply. Concurrent callers are served one at a time.
// A positive timeout covers the wait for the channel as well as the reply, so a caller
// queued behind a request that never completes gets ErrNoReply. When the wait for the
// reply times out the request is abandoned so the channel stays usable.
func (c *ReqChannel) Request(m message.Message, timeout time.Duration) (message.Message, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := c.acquire(timeout); err != nil {
		return nil, err
	}
	defer func() { <-c.gate }()

	if !deadline.IsZero() {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return nil, ErrNoReply
		}
	}
	if err := c.Send(m, timeout); err != nil {
		return nil, err
	}
	reply, err := c.Receive(timeout)
	if err == ErrNoReply {
		c.abandon()
	}
	return reply, err
}

func (c *ReqChannel) acquire(timeout time.Duration) error {
	select {
	case c.gate <- struct{}{}:
		return nil
	default:
	}
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case c.gate <- struct{}{}:
		return nil
	case <-expired:
		return ErrNoReply
	case <-c.done:
		return ErrClosed
	}
}

func (c *ReqChannel) abandon() {
	c.mu.Lock()
	c.awaiting = false
	c.mu.Unlock()
}

// recvLoop is the only reader of the connection. It stops at the first read error,
// which every later Receive reports.
func (c *ReqChannel) recvLoop() {
	defer close(c.readDone)
	for {
		header, m, err := c.conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				c.readErr = ErrClosed
				return
			}
			c.logger.Debug("request channel read failed", zap.Error(err))
			c.readErr = err
			return
		}
		if header.MsgType != protocol.MsgTypeReply {
			continue
		}
		select {
		case c.replies <- frame{seq: header.Seq, msg: m}:
		case <-c.done:
			return
		}
	}
}

// Closed reports whether Close was called.
func (c *ReqChannel) Closed() bool {
	return c.closed.Load()
}

// Close closes the connection. Further calls fail with ErrClosed.
func (c *ReqChannel) Close() error {
	var err error
	c.once.Do(func() {
		c.closed.Store(true)
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

// Addr returns the remote address.
func (c *ReqChannel) Addr() net.Addr {
	return c.conn.RemoteAddr()
}
