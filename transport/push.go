package transport

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"objbridge/codec"
	"objbridge/message"
	"objbridge/protocol"
)

// PushChannel binds a port and sends one-way messages to the pull peers connected to it.
// Messages are spread over peers in round-robin order.
type PushChannel struct {
	listener net.Listener
	logger   *zap.Logger
	codec    codec.CodecType

	mu     sync.Mutex
	peers  []*Conn
	joined chan struct{} // closed and replaced whenever a peer connects

	counter uint64
	done    chan struct{}
	closed  atomic.Bool
	wg      sync.WaitGroup
}

// Bind listens on addr for pull peers.
func Bind(addr string, opts ...Option) (*PushChannel, error) {
	o := buildOptions(opts)
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	o.logger.Debug("push channel bound", zap.String("addr", l.Addr().String()))
	p := &PushChannel{
		listener: l,
		logger:   o.logger,
		codec:    o.codec,
		joined:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	p.wg.Add(1)
	go p.acceptLoop()
	return p, nil
}

func (p *PushChannel) acceptLoop() {
	defer p.wg.Done()
	for {
		conn, err := p.listener.Accept()
		if err != nil {
			if !p.closed.Load() {
				p.logger.Debug("push channel accept failed", zap.Error(err))
			}
			return
		}
		p.mu.Lock()
		p.peers = append(p.peers, NewConn(conn, p.codec))
		close(p.joined)
		p.joined = make(chan struct{})
		p.mu.Unlock()
	}
}

// Send delivers m to the next peer. With no peer connected it waits for one; a positive
// timeout bounds that wait and the write, returning ErrTimeout when exceeded.
func (p *PushChannel) Send(m message.Message, timeout time.Duration) error {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}
	for {
		if p.closed.Load() {
			return ErrClosed
		}
		peer, joined := p.pick()
		if peer == nil {
			select {
			case <-joined:
				continue
			case <-deadline:
				return ErrTimeout
			case <-p.done:
				return ErrClosed
			}
		}
		err := peer.WriteMessage(protocol.MsgTypePush, 0, m, timeout)
		if err == nil || errors.Is(err, ErrTimeout) {
			return err
		}
		p.drop(peer)
		p.logger.Debug("push peer dropped", zap.Error(err))
	}
}

// pick selects the next peer, or returns the channel that signals the next join.
func (p *PushChannel) pick() (*Conn, <-chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.peers) == 0 {
		return nil, p.joined
	}
	index := atomic.AddUint64(&p.counter, 1) % uint64(len(p.peers))
	return p.peers[index], nil
}

func (p *PushChannel) drop(peer *Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, c := range p.peers {
		if c == peer {
			p.peers = append(p.peers[:i], p.peers[i+1:]...)
			break
		}
	}
	peer.Close()
}

// Peers returns the number of connected pull peers.
func (p *PushChannel) Peers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.peers)
}

// Addr returns the bound address.
func (p *PushChannel) Addr() net.Addr {
	return p.listener.Addr()
}

// Close stops accepting and disconnects all peers.
func (p *PushChannel) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(p.done)
	err := p.listener.Close()
	p.wg.Wait()
	p.mu.Lock()
	for _, c := range p.peers {
		c.Close()
	}
	p.peers = nil
	p.mu.Unlock()
	return err
}

// PullChannel connects to a push peer and receives its messages.
type PullChannel struct {
	conn     *Conn
	logger   *zap.Logger
	messages chan message.Message
	readDone chan struct{}
	readErr  error
	done     chan struct{}
	closed   atomic.Bool
}

// DialPull connects to the push channel at addr.
func DialPull(addr string, opts ...Option) (*PullChannel, error) {
	o := buildOptions(opts)
	conn, err := o.dialer.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	o.logger.Debug("pull channel connected", zap.String("addr", addr))
	p := &PullChannel{
		conn:     NewConn(conn, o.codec),
		logger:   o.logger,
		messages: make(chan message.Message, 64),
		readDone: make(chan struct{}),
		done:     make(chan struct{}),
	}
	go p.recvLoop()
	return p, nil
}

func (p *PullChannel) recvLoop() {
	defer close(p.readDone)
	for {
		header, m, err := p.conn.ReadMessage()
		if err != nil {
			if p.closed.Load() {
				p.readErr = ErrClosed
			} else {
				p.readErr = err
			}
			return
		}
		if header.MsgType != protocol.MsgTypePush {
			continue
		}
		select {
		case p.messages <- m:
		case <-p.done:
			return
		}
	}
}

// Receive returns the next message. A zero timeout blocks; a positive timeout returns
// ErrNoReply when nothing arrives in time. Exception messages become *message.RemoteFault.
func (p *PullChannel) Receive(timeout time.Duration) (message.Message, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}
	deliver := func(m message.Message) (message.Message, error) {
		if err := message.CheckException(m); err != nil {
			return nil, err
		}
		return m, nil
	}
	select {
	case m := <-p.messages:
		return deliver(m)
	case <-deadline:
		return nil, ErrNoReply
	case <-p.done:
		return nil, ErrClosed
	case <-p.readDone:
		select {
		case m := <-p.messages:
			return deliver(m)
		default:
			return nil, p.readErr
		}
	}
}

// Close disconnects from the push peer.
func (p *PullChannel) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(p.done)
	return p.conn.Close()
}
