// Package server is a reference implementation of the remote object server.
//
// Go struct types are registered as classes; their exported methods and fields become
// the class API reported to clients. Each connection is served by one goroutine that
// handles its requests strictly in order:
//
//	Accept conn → handleConn
//	  → for each request: Middleware Chain → dispatch (reflect.Call) → write reply
//
// Constructing with new-port moves the object to a dedicated listener that is served
// the same way.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"reflect"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"objbridge/codec"
	"objbridge/message"
	"objbridge/middleware"
	"objbridge/protocol"
	"objbridge/schema"
	"objbridge/transport"
)

// Server serves registered classes to bridge clients.
type Server struct {
	version     string
	logger      *zap.Logger
	logRequests bool

	mu      sync.RWMutex
	classes map[string]*Class       // "mmcorej.CMMCore" → *Class
	byType  map[reflect.Type]*Class // *Core → *Class
	objects *objectTable

	middlewares []middleware.Middleware // applied in order
	handler     middleware.HandlerFunc  // middleware(middleware(...(dispatch)))

	lmu       sync.Mutex
	listeners []net.Listener
	conns     map[*transport.Conn]struct{}

	wg       sync.WaitGroup // in-flight requests
	shutdown atomic.Bool
}

// NewServer creates a server with no classes.
func NewServer(opts ...Option) *Server {
	s := &Server{
		version: DefaultVersion,
		logger:  zap.L(),
		classes: make(map[string]*Class),
		byType:  make(map[reflect.Type]*Class),
		objects: newObjectTable(),
		conns:   make(map[*transport.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logRequests {
		s.middlewares = append([]middleware.Middleware{middleware.LoggingMiddleware(s.logger)}, s.middlewares...)
	}
	return s
}

// Use registers a middleware. Middlewares are applied in the order they are added.
func (s *Server) Use(mw middleware.Middleware) {
	s.middlewares = append(s.middlewares, mw)
}

// Register exposes the struct type of sample, a struct pointer, as class name. Classes
// used as parameter or result types must be registered first. Without a Constructor
// option the class gets a no-argument constructor returning a new zero value, or the
// sample itself for a Singleton.
func (s *Server) Register(name string, sample any, opts ...ClassOption) (*Class, error) {
	typ := reflect.TypeOf(sample)
	if typ == nil || typ.Kind() != reflect.Pointer || typ.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("server: %s sample must point to a struct, got %v", name, typ)
	}
	c := &Class{
		name:    name,
		typ:     typ,
		sample:  reflect.ValueOf(sample),
		methods: make(map[string][]*overload),
		fields:  make(map[string]field),
	}

	s.mu.Lock()
	if _, ok := s.classes[name]; ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("server: class %s already registered", name)
	}
	s.byType[typ] = c
	s.mu.Unlock()

	c.scan(s)
	for _, opt := range opts {
		if err := opt(c, s); err != nil {
			s.mu.Lock()
			delete(s.byType, typ)
			s.mu.Unlock()
			return nil, err
		}
	}
	if len(c.constructors) == 0 {
		c.constructors = []*overload{c.defaultConstructor()}
	}

	s.mu.Lock()
	s.classes[name] = c
	s.mu.Unlock()
	return c, nil
}

func (c *Class) defaultConstructor() *overload {
	ft := reflect.FuncOf(nil, []reflect.Type{c.typ}, false)
	fn := reflect.MakeFunc(ft, func([]reflect.Value) []reflect.Value {
		if c.singleton {
			return []reflect.Value{c.sample}
		}
		return []reflect.Value{reflect.New(c.typ.Elem())}
	})
	return &overload{
		sig: schema.MethodSignature{Name: c.name, Arguments: []schema.TypeTag{}, ReturnType: schema.TypeTag(c.name)},
		fn:  fn,
		ret: c.typ,
	}
}

// Class returns a registered class.
func (s *Server) Class(name string) (*Class, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.classes[name]
	return c, ok
}

// Objects returns the number of objects clients currently hold.
func (s *Server) Objects() int {
	return s.objects.len()
}

// Serve listens on address and serves until Shutdown.
func (s *Server) Serve(network, address string) error {
	l, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	return s.ServeListener(l)
}

// ServeListener serves connections accepted from l until Shutdown.
func (s *Server) ServeListener(l net.Listener) error {
	// Chain(A, B, C)(h) → A(B(C(h)))
	s.lmu.Lock()
	if s.handler == nil {
		mws := append(append([]middleware.Middleware(nil), s.middlewares...), middleware.RecoverMiddleware(s.logger))
		s.handler = middleware.Chain(mws...)(s.dispatch)
	}
	s.listeners = append(s.listeners, l)
	s.lmu.Unlock()

	s.logger.Info("serving", zap.String("addr", l.Addr().String()), zap.String("version", s.version))
	return s.acceptLoop(l)
}

func (s *Server) acceptLoop(l net.Listener) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			// Shutdown closes the listener; that Accept error is expected.
			if s.shutdown.Load() {
				return nil
			}
			return err
		}
		go s.handleConn(conn)
	}
}

// handleConn serves one connection. Requests on a connection are strictly alternating,
// so they are handled in order on this goroutine.
func (s *Server) handleConn(raw net.Conn) {
	conn := transport.NewConn(raw, codec.CodecTypeJSON)
	if !s.trackConn(conn, true) {
		conn.Close()
		return
	}
	defer func() {
		s.trackConn(conn, false)
		conn.Close()
	}()

	for {
		header, req, err := conn.ReadMessage()
		if err != nil {
			if header == nil {
				if !errors.Is(err, io.EOF) && !s.shutdown.Load() {
					s.logger.Debug("connection closed", zap.Error(err))
				}
				return
			}
			// The frame was intact but its body did not decode.
			req = nil
		}
		if header.MsgType != protocol.MsgTypeRequest {
			continue
		}

		s.wg.Add(1)
		var reply message.Message
		if req == nil {
			reply = message.Exception(fmt.Sprintf("malformed request: %v", err))
		} else {
			reply = s.handler(context.Background(), req)
		}
		err = conn.WriteReply(header, reply, 0)
		s.wg.Done()
		if err != nil {
			s.logger.Debug("failed to write reply", zap.Error(err))
			return
		}
	}
}

func (s *Server) trackConn(c *transport.Conn, add bool) bool {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	if add {
		if s.shutdown.Load() {
			return false
		}
		s.conns[c] = struct{}{}
		return true
	}
	delete(s.conns, c)
	return true
}

// Shutdown performs graceful shutdown:
//  1. Set shutdown flag (so Accept errors are recognized as intentional)
//  2. Close every listener, dedicated ones included
//  3. Wait for in-flight requests to finish (with timeout)
//  4. Close the remaining connections
func (s *Server) Shutdown(timeout time.Duration) error {
	s.shutdown.Store(true)

	s.lmu.Lock()
	for _, l := range s.listeners {
		l.Close()
	}
	s.lmu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		err = fmt.Errorf("timeout waiting for ongoing requests to finish")
	}

	s.lmu.Lock()
	for c := range s.conns {
		c.Close()
	}
	s.lmu.Unlock()
	return err
}

// openDedicated starts a listener next to the listener the request came from and
// returns its port. The listener accepts a single connection and closes once it has it.
func (s *Server) openDedicated() (int, error) {
	if s.shutdown.Load() {
		return 0, errors.New("server shutting down")
	}
	host := "127.0.0.1"
	s.lmu.Lock()
	if len(s.listeners) > 0 {
		if h, _, err := net.SplitHostPort(s.listeners[0].Addr().String()); err == nil {
			host = h
		}
	}
	s.lmu.Unlock()

	l, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, err
	}
	s.lmu.Lock()
	s.listeners = append(s.listeners, l)
	s.lmu.Unlock()

	_, portText, _ := net.SplitHostPort(l.Addr().String())
	port, _ := strconv.Atoi(portText)
	s.logger.Debug("dedicated listener opened", zap.Int("port", port))
	go s.serveDedicated(l, port)
	return port, nil
}

func (s *Server) serveDedicated(l net.Listener, port int) {
	conn, err := l.Accept()
	s.dropListener(l)
	l.Close()
	if err != nil {
		if !s.shutdown.Load() {
			s.logger.Warn("dedicated listener stopped", zap.Int("port", port), zap.Error(err))
		}
		return
	}
	s.handleConn(conn)
	s.logger.Debug("dedicated channel closed", zap.Int("port", port))
}

func (s *Server) dropListener(l net.Listener) {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	for i, tracked := range s.listeners {
		if tracked == l {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			return
		}
	}
}

// Listeners returns the number of open listeners, dedicated ones included.
func (s *Server) Listeners() int {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	return len(s.listeners)
}

// Conns returns the number of open connections.
func (s *Server) Conns() int {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	return len(s.conns)
}
